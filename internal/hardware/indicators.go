package hardware

import (
	"fmt"
	"sort"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"assist-service/internal/logger"
)

// outputLine is the part of *gpiocdev.Line the indicators use.
type outputLine interface {
	SetValue(value int) error
	Close() error
}

// GpioIndicators drives engagement lamps on GPIO output lines.
type GpioIndicators struct {
	logger   *logger.Logger
	mappings map[string]LineMapping
	chips    map[string]*gpiocdev.Chip
	lines    map[string]outputLine
	state    map[string]bool
	mu       sync.Mutex
}

func NewGpioIndicators(mappings map[string]LineMapping, l *logger.Logger) *GpioIndicators {
	if mappings == nil {
		mappings = DefaultIndicatorMappings
	}
	return &GpioIndicators{
		logger:   l,
		mappings: mappings,
		chips:    make(map[string]*gpiocdev.Chip),
		lines:    make(map[string]outputLine),
		state:    make(map[string]bool),
	}
}

// Initialize requests every mapped line as an output, initially off.
func (g *GpioIndicators) Initialize() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	names := make([]string, 0, len(g.mappings))
	for name := range g.mappings {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		mapping := g.mappings[name]
		chip, ok := g.chips[mapping.Chip]
		if !ok {
			var err error
			chip, err = gpiocdev.NewChip(mapping.Chip)
			if err != nil {
				return fmt.Errorf("failed to open GPIO chip %s: %w", mapping.Chip, err)
			}
			g.chips[mapping.Chip] = chip
		}

		line, err := chip.RequestLine(mapping.Line,
			gpiocdev.AsOutput(0),
			gpiocdev.WithConsumer(consumerName))
		if err != nil {
			return fmt.Errorf("failed to request GPIO line %d: %w", mapping.Line, err)
		}
		g.lines[name] = line
		g.state[name] = false
		g.logger.Infof("Configured indicator %s: chip=%s, line=%d", name, mapping.Chip, mapping.Line)
	}
	return nil
}

// Set switches an indicator. The line is only written when the value changes.
func (g *GpioIndicators) Set(name string, on bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	line, ok := g.lines[name]
	if !ok {
		return fmt.Errorf("unknown indicator %s", name)
	}
	if g.state[name] == on {
		return nil
	}

	val := 0
	if on {
		val = 1
	}
	if err := line.SetValue(val); err != nil {
		return fmt.Errorf("failed to set indicator %s: %w", name, err)
	}
	g.state[name] = on
	g.logger.Debugf("Indicator %s => %v", name, on)
	return nil
}

func (g *GpioIndicators) Cleanup() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for name, line := range g.lines {
		if g.state[name] {
			line.SetValue(0)
		}
		line.Close()
	}
	for _, chip := range g.chips {
		chip.Close()
	}
	g.lines = make(map[string]outputLine)
	g.chips = make(map[string]*gpiocdev.Chip)
}

// NoopIndicators is used when no GPIO chip is configured.
type NoopIndicators struct{}

func (NoopIndicators) Initialize() error              { return nil }
func (NoopIndicators) Set(name string, on bool) error { return nil }
func (NoopIndicators) Cleanup()                       {}
