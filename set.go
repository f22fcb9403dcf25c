package txnset

import (
	"fmt"
	"math/rand"

	s "github.com/bnclabs/gosettings"

	"github.com/bnclabs/txnset/avl"
	"github.com/bnclabs/txnset/multiset"
)

// maxGeneration never occurs on a real entry; paired with minGeneration it
// brackets "every generation of this identifier" for range lookups that
// operate on a bare key.
const maxGeneration = Generation(1<<63 - 1)

func topBoundaryEntry[E any, K any](id K) entry[E, K] {
	return entry[E, K]{id: id, generation: maxGeneration}
}

// storage is the structural contract both the avl and multiset packages
// satisfy: the node algebra a transactional set needs from its backing
// tree, independent of whether that tree is hand-balanced (avl.Tree) or a
// general-purpose B-tree (multiset.Tree).
type storage[E any, K any] interface {
	Len() int
	Find(key entry[E, K]) (entry[E, K], bool)
	LowerBound(key entry[E, K]) (entry[E, K], bool)
	UpperBound(key entry[E, K]) (entry[E, K], bool)
	Range(lo, hi entry[E, K], callback func(entry[E, K]) bool)
	ForEach(callback func(entry[E, K]))
	Sample(rnd *rand.Rand) (entry[E, K], bool)
	SampleRange(lo, hi entry[E, K], rnd *rand.Rand, predicate func(entry[E, K]) bool) (entry[E, K], bool)
	Insert(e entry[E, K]) bool
	Upsert(e entry[E, K]) bool
	Extract(key entry[E, K]) (entry[E, K], bool)
	Erase(key entry[E, K]) bool
	Clear()
}

// Variant selects the backing node algebra a Set is built on.
type Variant int

const (
	// VariantAVL backs the set with a hand-balanced generic AVL tree.
	VariantAVL Variant = iota
	// VariantMultiset backs the set with github.com/google/btree's BTreeG.
	VariantMultiset
)

func newStorage[E any, K any](variant Variant, less func(a, b entry[E, K]) bool) storage[E, K] {
	if variant == VariantMultiset {
		return multiset.New[entry[E, K]](less)
	}
	return avl.New[entry[E, K]](less)
}

// Set is a generic, ordered, transactional set of elements E identified by
// keys K. It is not safe for concurrent use from multiple goroutines; see
// Locked and the sharded subpackage for that.
//
// Grounded on original_source/include/ucset/consistent_avl.hpp's
// consistent_avl_gt, generalized over the storage variant the way LLRB's
// mvcc-mode generalizes over snapshot chains, and textured like llrb.go's
// NewLLRB/settings/logprefix/stats shape.
type Set[E any, K any] struct {
	entries      storage[E, K]
	cmp          Comparator[E, K]
	generation   Generation
	visibleCount int
	name         string
	logprefix    string
	cfg          config
	stats        setStats
}

// New builds an empty Set named name, ordered and keyed by cmp, backed by
// the requested storage variant.
func New[E any, K any](name string, cmp Comparator[E, K], variant Variant, setts s.Settings) *Set[E, K] {
	set := &Set[E, K]{
		cmp:       cmp,
		name:      name,
		logprefix: logprefix(name),
		cfg:       readConfig(setts),
	}
	set.entries = newStorage[E, K](variant, entryLess(cmp))
	logCreated(set.logprefix)
	logSystemMemory(set.logprefix)
	return set
}

func (set *Set[E, K]) newGeneration() Generation {
	set.generation++
	return set.generation
}

// Len reports the number of visible (committed, non-tombstone) elements.
func (set *Set[E, K]) Len() int { return set.visibleCount }

// findEntry returns the raw entry (possibly a deleted tombstone) visible
// for id, exactly as consistent_avl_gt::find does: the largest-generation
// entry among every generation stored for id whose visible flag is set.
// Used internally by transactions and compaction; the exported Find hides
// tombstones from callers.
func (set *Set[E, K]) findEntry(id K) (entry[E, K], bool) {
	lo := boundaryEntry[E, K](id)
	hi := topBoundaryEntry[E, K](id)
	var best entry[E, K]
	found := false
	set.entries.Range(lo, hi, func(e entry[E, K]) bool {
		if e.visible && (!found || e.generation > best.generation) {
			best, found = e, true
		}
		return true
	})
	return best, found
}

// Find reports element's current value for id, if any live (non-deleted)
// entry is visible for it.
func (set *Set[E, K]) Find(id K) (E, bool) {
	e, found := set.findEntry(id)
	if !found || e.deleted {
		var zero E
		return zero, false
	}
	return e.element, true
}

// upperBoundEntry returns the next visible entry (of any kind, including
// tombstones) whose identifier is strictly greater than id's.
func (set *Set[E, K]) upperBoundEntry(id K) (entry[E, K], bool) {
	cur := topBoundaryEntry[E, K](id)
	for {
		next, ok := set.entries.UpperBound(cur)
		if !ok {
			return entry[E, K]{}, false
		}
		if next.visible {
			return next, true
		}
		cur = next
	}
}

// UpperBound returns the first live element with identifier strictly
// greater than id, skipping over tombstones left by erased identifiers.
func (set *Set[E, K]) UpperBound(id K) (E, bool) {
	cur := id
	for {
		e, ok := set.upperBoundEntry(cur)
		if !ok {
			var zero E
			return zero, false
		}
		if !e.deleted {
			return e.element, true
		}
		cur = e.id
	}
}

// Upsert writes element outside of any transaction: it is immediately
// visible, and the previous generation for its identifier (if any) is
// compacted away in the same call.
func (set *Set[E, K]) Upsert(element E) error {
	id := set.cmp.KeyOf(element)
	generation := set.newGeneration()
	e := entry[E, K]{element: element, id: id, generation: generation, deleted: false, visible: true}
	set.entries.Upsert(e)
	set.visibleCount++
	set.stats.upserts++
	set.compactOlderGenerations(id, generation)
	return nil
}

// UpsertAll writes every element under a single generation, atomically in
// the sense that it is indistinguishable from N sequential Upserts each
// reusing the same generation stamp.
func (set *Set[E, K]) UpsertAll(elements []E) error {
	generation := set.newGeneration()
	for _, element := range elements {
		id := set.cmp.KeyOf(element)
		e := entry[E, K]{element: element, id: id, generation: generation, deleted: false, visible: true}
		if set.entries.Upsert(e) {
			set.visibleCount++
		}
		set.compactOlderGenerations(id, generation)
	}
	set.stats.upserts += int64(len(elements))
	return nil
}

// compactOlderGenerations removes the previously-visible entry for id once
// a new generation has taken over visibility, keeping at most one visible
// entry per identifier (testable property: at most one visible version per
// identifier).
func (set *Set[E, K]) compactOlderGenerations(id K, keep Generation) {
	lo := boundaryEntry[E, K](id)
	hi := topBoundaryEntry[E, K](id)
	var toExtract []entry[E, K]
	set.entries.Range(lo, hi, func(e entry[E, K]) bool {
		if e.generation != keep && e.visible {
			toExtract = append(toExtract, e)
		}
		return true
	})
	for _, e := range toExtract {
		set.entries.Erase(e)
		if !e.deleted {
			set.visibleCount--
		}
	}
}

// Range visits every live element with key in the half-open interval
// [lo, hi), in ascending key order, stopping early if callback returns
// false. Per the design notes, half-open is the uniform convention at this
// layer even though the underlying node algebra is closed-closed.
func (set *Set[E, K]) Range(lo, hi K, callback func(E) bool) {
	loBound := boundaryEntry[E, K](lo)
	hiBound := boundaryEntry[E, K](hi)
	set.entries.Range(loBound, hiBound, func(e entry[E, K]) bool {
		if !e.visible || e.deleted {
			return true
		}
		return callback(e.element)
	})
}

// EraseRange physically removes every entry (live or tombstoned) with key
// in [lo, hi). Unlike a transactional Erase, this is immediate, untracked
// by any watch, and not subject to conflict detection.
func (set *Set[E, K]) EraseRange(lo, hi K) error {
	loBound := boundaryEntry[E, K](lo)
	hiBound := boundaryEntry[E, K](hi)
	var toExtract []entry[E, K]
	set.entries.Range(loBound, hiBound, func(e entry[E, K]) bool {
		toExtract = append(toExtract, e)
		return true
	})
	for _, e := range toExtract {
		set.entries.Erase(e)
		if e.visible && !e.deleted {
			set.visibleCount--
		}
	}
	return nil
}

// SampleRange uniformly samples one live element with key in [lo, hi).
func (set *Set[E, K]) SampleRange(lo, hi K, rnd *rand.Rand) (E, bool) {
	loBound := boundaryEntry[E, K](lo)
	hiBound := boundaryEntry[E, K](hi)
	e, found := set.entries.SampleRange(loBound, hiBound, rnd, func(e entry[E, K]) bool {
		return e.visible && !e.deleted
	})
	set.stats.samples++
	if !found {
		var zero E
		return zero, false
	}
	return e.element, true
}

// SampleReservoir fills a reservoir of up to capacity elements, uniformly
// sampled from the live elements with key in [lo, hi), using the standard
// single-pass reservoir algorithm (replace a uniformly chosen existing slot
// with probability capacity/seen as more candidates are seen).
func (set *Set[E, K]) SampleReservoir(lo, hi K, rnd *rand.Rand, capacity int) []E {
	if capacity <= 0 {
		capacity = int(set.cfg.reservoirSize)
	}
	reservoir := make([]E, 0, capacity)
	seen := 0
	set.Range(lo, hi, func(element E) bool {
		if len(reservoir) < capacity {
			reservoir = append(reservoir, element)
		} else if slot := rnd.Intn(seen + 1); slot < capacity {
			reservoir[slot] = element
		}
		seen++
		return true
	})
	set.stats.samples++
	return reservoir
}

// Clear empties the set.
func (set *Set[E, K]) Clear() error {
	set.entries.Clear()
	set.generation = 0
	set.visibleCount = 0
	return nil
}

// Validate walks the set checking structural invariants: at most one
// visible entry per identifier. It is a diagnostic, not part of the hot
// path, the way llrb.go's Validate() is.
func (set *Set[E, K]) Validate() error {
	seen := make(map[string]int)
	valid := true
	set.entries.ForEach(func(e entry[E, K]) {
		if !e.visible {
			return
		}
		key := fmtKey(e.id)
		seen[key]++
		if seen[key] > 1 {
			valid = false
		}
	})
	if !valid {
		return StatusConsistency
	}
	return nil
}

func fmtKey[K any](k K) string {
	return fmt.Sprintf("%v", k)
}
