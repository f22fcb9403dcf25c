// Package multiset implements the ordered-multiset storage variant: the
// same node algebra surface as package avl (find, bound lookups, range
// walks, sampling, insert/upsert/extract), but backed by a general-purpose
// B-tree instead of a hand-balanced binary tree.
//
// Grounded on talent-plan-tinykv's scheduler/server/core/region_tree.go,
// which indexes ordered, range-queryable keys on top of github.com/google/btree
// the same way: a Less-comparable item type wrapping a BTreeG.
package multiset

import (
	"math/rand"

	"github.com/google/btree"
)

const degree = 32

// Less reports whether a orders before b under the tree's comparator.
type Less[T any] func(a, b T) bool

// Tree is an ordered multiset-shaped container over entries of type T.
// "Multiset" describes the storage layer's tolerance for entries that
// compare equal but are distinguishable by the caller's comparator (the
// base transactional set layers (identifier, generation) pairs on top of
// this so that multiple generations of the same identifier coexist here
// simultaneously).
type Tree[T any] struct {
	tree *btree.BTreeG[T]
	less Less[T]
}

// New returns an empty tree ordered by less.
func New[T any](less Less[T]) *Tree[T] {
	return &Tree[T]{
		tree: btree.NewG(degree, btree.LessFunc[T](less)),
		less: less,
	}
}

// Len reports the number of entries in the tree.
func (t *Tree[T]) Len() int { return t.tree.Len() }

// Find returns the entry comparing equal to key, and whether one was found.
func (t *Tree[T]) Find(key T) (T, bool) {
	return t.tree.Get(key)
}

// LowerBound returns the smallest entry greater than or equal to key.
func (t *Tree[T]) LowerBound(key T) (T, bool) {
	var result T
	found := false
	t.tree.AscendGreaterOrEqual(key, func(item T) bool {
		result, found = item, true
		return false
	})
	return result, found
}

// UpperBound returns the smallest entry strictly greater than key.
func (t *Tree[T]) UpperBound(key T) (T, bool) {
	var result T
	found := false
	t.tree.AscendGreaterOrEqual(key, func(item T) bool {
		if t.less(key, item) {
			result, found = item, true
			return false
		}
		return true
	})
	return result, found
}

// Min returns the smallest entry in the tree.
func (t *Tree[T]) Min() (T, bool) {
	return t.tree.Min()
}

// Max returns the largest entry in the tree.
func (t *Tree[T]) Max() (T, bool) {
	return t.tree.Max()
}

// Range visits every entry with lo <= entry <= hi in ascending order,
// stopping early if callback returns false. Closed-closed at this layer,
// matching package avl's Range contract.
func (t *Tree[T]) Range(lo, hi T, callback func(T) bool) {
	stopped := false
	t.tree.AscendRange(lo, hi, func(item T) bool {
		if !callback(item) {
			stopped = true
			return false
		}
		return true
	})
	if stopped {
		return
	}
	// AscendRange excludes hi (half-open internally); pick it up separately
	// to preserve the closed-closed contract this package promises.
	if hiEntry, ok := t.tree.Get(hi); ok {
		callback(hiEntry)
	}
}

// ForEach visits every entry in ascending order.
func (t *Tree[T]) ForEach(callback func(T)) {
	t.tree.Ascend(func(item T) bool {
		callback(item)
		return true
	})
}

// Sample picks one entry uniformly at random by reservoir sampling over a
// full ascend; O(n), since a B-tree's internal node sizes don't expose a
// cheap weighted-by-subtree-size shortcut the way AVL heights do.
func (t *Tree[T]) Sample(rnd *rand.Rand) (T, bool) {
	seen := 0
	var result T
	found := false
	t.tree.Ascend(func(item T) bool {
		seen++
		if rnd.Intn(seen) == 0 {
			result, found = item, true
		}
		return true
	})
	return result, found
}

// SampleRange uniformly samples one entry from [lo, hi] matching predicate
// via reservoir sampling.
func (t *Tree[T]) SampleRange(lo, hi T, rnd *rand.Rand, predicate func(T) bool) (T, bool) {
	seen := 0
	var result T
	found := false
	t.Range(lo, hi, func(item T) bool {
		if !predicate(item) {
			return true
		}
		seen++
		if rnd.Intn(seen) == 0 {
			result, found = item, true
		}
		return true
	})
	return result, found
}

// Insert adds entry if no equal entry is already present. It reports
// whether a new entry was inserted.
func (t *Tree[T]) Insert(entry T) bool {
	if _, exists := t.tree.Get(entry); exists {
		return false
	}
	t.tree.ReplaceOrInsert(entry)
	return true
}

// Upsert inserts entry, overwriting any existing entry that compares
// equal. It reports whether the key was newly inserted.
func (t *Tree[T]) Upsert(entry T) bool {
	_, existed := t.tree.ReplaceOrInsert(entry)
	return !existed
}

// Extract removes and returns the entry equal to key.
func (t *Tree[T]) Extract(key T) (T, bool) {
	return t.tree.Delete(key)
}

// Erase removes the entry equal to key, reporting whether one was present.
func (t *Tree[T]) Erase(key T) bool {
	_, ok := t.Extract(key)
	return ok
}

// Clear empties the tree.
func (t *Tree[T]) Clear() {
	t.tree.Clear(false)
}
