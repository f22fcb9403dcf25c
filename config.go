package txnset

import (
	s "github.com/bnclabs/gosettings"
)

// DefaultSettings returns the baseline configuration every Set starts
// from; callers override individual keys and pass the result to New.
//
// "reservoir.size" (int64, default: 32)
//		Default capacity used by Set.SampleReservoir when the caller
//		doesn't specify one explicitly.
//
// "stats.histogram" (bool, default: true)
//		Read into the set's configuration; no histogram is tracked, and
//		Set.Stats() reports counters only, whatever its value.
func DefaultSettings() s.Settings {
	return s.Settings{
		"reservoir.size":  int64(32),
		"stats.histogram": true,
	}
}

// config is the typed view of a Settings map, read once at construction
// the way llrb.readsettings reads LLRB's settings into its struct fields.
type config struct {
	reservoirSize  int64
	statsHistogram bool
	setts          s.Settings
}

func readConfig(setts s.Settings) config {
	setts = make(s.Settings).Mixin(DefaultSettings(), setts)
	return config{
		reservoirSize:  setts.Int64("reservoir.size"),
		statsHistogram: setts.Bool("stats.histogram"),
		setts:          setts,
	}
}
