package fusion

import (
	"time"

	"assist-service/internal/signals"
	"assist-service/internal/types"
)

// DefaultStaleTolerance is the number of nominal periods a checked message
// may go without an update.
const DefaultStaleTolerance = 10.0

// CheckStaleness returns the checks whose message is missing from the
// snapshot or older than tolerance periods. Unchecked (rate 0) messages are
// never stale.
func CheckStaleness(schema *signals.Schema, snap *types.Snapshot, now time.Duration, tolerance float64) []signals.MessageCheck {
	var stale []signals.MessageCheck
	for _, c := range schema.Checks {
		period := c.Period()
		if period == 0 {
			continue
		}
		f, ok := snap.Frame(c.Bus, c.Message)
		if !ok || now-f.UpdatedAt > time.Duration(tolerance*float64(period)) {
			stale = append(stale, c)
		}
	}
	return stale
}
