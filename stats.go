package txnset

import (
	humanize "github.com/dustin/go-humanize"

	"github.com/bnclabs/golog"
)

// setStats accumulates the counters Set.Stats() reports, the trimmed
// txnset equivalent of llrb_stats.go's Fullstats(): no disk/LSM counters
// apply here, just what a transactional in-memory set can report.
type setStats struct {
	upserts   int64
	commits   int64
	conflicts int64
	samples   int64
}

// Stats returns a snapshot of counters and sizes, keyed the way
// llrb.Fullstats() keys its map, for a caller to print or export.
func (set *Set[E, K]) Stats() map[string]interface{} {
	return map[string]interface{}{
		"name":          set.name,
		"count":         set.visibleCount,
		"generation":    int64(set.generation),
		"upserts":       set.stats.upserts,
		"commits":       set.stats.commits,
		"conflicts":     set.stats.conflicts,
		"samples":       set.stats.samples,
		"size.humanize": humanize.Comma(int64(set.visibleCount)),
	}
}

// logSystemMemory prints a one-line system memory summary, the same
// texture as llrb.go's logarenasettings, using gosigar for the numbers
// and go-humanize for the formatting.
func logSystemMemory(logprefix string) {
	total, used, free := systemMemory()
	log.Infof("%v system memory: total=%v used=%v free=%v\n",
		logprefix, humanize.Bytes(total), humanize.Bytes(used), humanize.Bytes(free))
}
