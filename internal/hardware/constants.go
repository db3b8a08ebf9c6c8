package hardware

// Indicator names driven by the assist loop.
const (
	IndicatorLateral      = "lateral"
	IndicatorLongitudinal = "longitudinal"
)

const consumerName = "assist-service"

// LineMapping locates one GPIO output line.
type LineMapping struct {
	Chip string `yaml:"chip"`
	Line int    `yaml:"line"`
}

// DefaultIndicatorMappings is the cluster lamp wiring of the reference harness.
var DefaultIndicatorMappings = map[string]LineMapping{
	IndicatorLateral:      {"gpiochip2", 12},
	IndicatorLongitudinal: {"gpiochip2", 13},
}
