package txnset

// txnStage is the transaction state machine: Created -> Staged -> Created
// (after commit/reset/rollback). Grounded on
// consistent_avl.hpp's transaction_t::stage_t.
type txnStage int

const (
	txnCreated txnStage = iota
	txnStaged
)

// watchedIdentifier pairs an identifier with the Watch snapshot captured
// for it, either at Watch() time (the entry's live generation/deleted
// state) or at Stage() time (the transaction's own generation, once the
// change becomes a pending entry in the main tree).
type watchedIdentifier[K any] struct {
	id    K
	watch Watch
}

// Txn is a single optimistic transaction against a Set: it accumulates
// upserts/erasures and watched identifiers locally, then Stage() detects
// whether any watched identifier changed since it was watched, and
// Commit() makes the staged change visible.
//
// Grounded on consistent_avl.hpp's transaction_t; a Txn is not safe for
// concurrent use, and (for the base, unwrapped Set) Commit/Stage/etc. are
// not safe to interleave with operations on other transactions over the
// same Set without an external lock — see Locked.
type Txn[E any, K any] struct {
	store      *Set[E, K]
	changes    storage[E, K]
	watches    []watchedIdentifier[K]
	generation Generation
	stage      txnStage
}

// Transaction starts a new transaction against set.
func (set *Set[E, K]) Transaction() *Txn[E, K] {
	return &Txn[E, K]{
		store:      set,
		changes:    newStorage[E, K](VariantAVL, entryLess(set.cmp)),
		generation: set.newGeneration(),
	}
}

// Generation reports the generation this transaction's writes will be
// stamped with.
func (txn *Txn[E, K]) Generation() Generation { return txn.generation }

func (txn *Txn[E, K]) missingWatch() Watch {
	return Watch{Generation: txn.generation, Deleted: true}
}

// Reserve pre-allocates capacity for n watched identifiers.
func (txn *Txn[E, K]) Reserve(n int) error {
	if cap(txn.watches) < n {
		grown := make([]watchedIdentifier[K], len(txn.watches), n)
		copy(grown, txn.watches)
		txn.watches = grown
	}
	return nil
}

// Upsert stages element for write; it has no effect on the main set until
// Stage and Commit succeed.
func (txn *Txn[E, K]) Upsert(element E) error {
	id := txn.store.cmp.KeyOf(element)
	txn.changes.Upsert(entry[E, K]{element: element, id: id, generation: txn.generation})
	return nil
}

// Erase stages a tombstone for id; it has no effect on the main set until
// Stage and Commit succeed.
func (txn *Txn[E, K]) Erase(id K) error {
	var zero E
	txn.changes.Upsert(entry[E, K]{element: zero, id: id, generation: txn.generation, deleted: true})
	return nil
}

// Watch records id's current live generation/deleted state (or its absence)
// so that Stage can detect if another transaction changed it in the
// meantime.
func (txn *Txn[E, K]) Watch(id K) error {
	if e, found := txn.store.findEntry(id); found {
		txn.watches = append(txn.watches, watchedIdentifier[K]{id: id, watch: Watch{Generation: e.generation, Deleted: e.deleted}})
	} else {
		txn.watches = append(txn.watches, watchedIdentifier[K]{id: id, watch: txn.missingWatch()})
	}
	return nil
}

// Find looks up id, preferring this transaction's own uncommitted writes
// over the main set's committed state.
func (txn *Txn[E, K]) Find(id K) (E, bool) {
	if e, ok := txn.changes.Find(entry[E, K]{id: id, generation: txn.generation}); ok {
		if e.deleted {
			var zero E
			return zero, false
		}
		return e.element, true
	}
	return txn.store.Find(id)
}

// UpperBound returns the first live element with identifier strictly
// greater than id, merging this transaction's own uncommitted writes with
// the main set's committed state (local writes win ties).
func (txn *Txn[E, K]) UpperBound(id K) (E, bool) {
	internal, hasInternal := txn.changes.UpperBound(entry[E, K]{id: id, generation: txn.generation})
	for hasInternal && internal.deleted {
		internal, hasInternal = txn.changes.UpperBound(internal)
	}

	external := id
	for {
		extEntry, extFound := txn.store.upperBoundEntry(external)
		if extFound && extEntry.deleted {
			external = extEntry.id
			continue
		}
		if extFound {
			if changed, ok := txn.changes.Find(entry[E, K]{id: extEntry.id, generation: txn.generation}); ok && changed.deleted {
				// The store's next candidate is one this transaction has
				// locally erased; skip past it and keep looking.
				external = extEntry.id
				continue
			}
		}

		switch {
		case !extFound && !hasInternal:
			var zero E
			return zero, false
		case !extFound:
			return internal.element, true
		case !hasInternal:
			return extEntry.element, true
		case idsEqual(txn.store.cmp, extEntry.id, internal.id):
			if internal.deleted {
				var zero E
				return zero, false
			}
			return internal.element, true
		case txn.store.cmp.Less(extEntry.id, internal.id):
			return extEntry.element, true
		default:
			return internal.element, true
		}
	}
}

// Stage checks every watched identifier against the set's current state:
// if any changed since it was watched, Stage fails with StatusConsistency
// and the transaction is left staged as Created (call Reset to discard it
// or retry). On success, the transaction's writes are merged into the main
// tree as not-yet-visible entries, ready for Commit.
func (txn *Txn[E, K]) Stage() error {
	for _, w := range txn.watches {
		var live Watch
		if e, found := txn.store.findEntry(w.id); found {
			live = Watch{Generation: e.generation, Deleted: e.deleted}
		} else {
			live = txn.missingWatch()
		}
		if live != w.watch {
			txn.store.stats.conflicts++
			logConflict(txn.store.logprefix, w.id)
			return StatusConsistency
		}
	}

	txn.watches = txn.watches[:0]
	txn.changes.ForEach(func(e entry[E, K]) {
		txn.watches = append(txn.watches, watchedIdentifier[K]{id: e.id, watch: Watch{Generation: txn.generation, Deleted: e.deleted}})
	})
	txn.changes.ForEach(func(e entry[E, K]) {
		txn.store.entries.Upsert(e)
	})
	txn.changes.Clear()
	txn.stage = txnStaged
	return nil
}

// Reset discards the transaction: any entries merged into the main tree by
// Stage are deleted outright, and the transaction is reusable under a
// fresh generation.
func (txn *Txn[E, K]) Reset() error {
	if txn.stage == txnStaged {
		for _, w := range txn.watches {
			txn.store.entries.Erase(entry[E, K]{id: w.id, generation: w.watch.Generation})
		}
		logAbort(txn.store.logprefix, StatusOperationCanceled)
	}
	txn.watches = txn.watches[:0]
	txn.changes.Clear()
	txn.stage = txnCreated
	txn.generation = txn.store.newGeneration()
	return nil
}

// Rollback undoes a staged transaction, but (unlike Reset) recovers the
// staged writes back into the transaction's own change-set under its new
// generation, so the same edits can be retried with a bare Stage/Commit (or
// replaced first via a fresh Upsert/Erase on the same identifier).
func (txn *Txn[E, K]) Rollback() error {
	if txn.stage != txnStaged {
		return StatusOperationNotPermitted
	}
	newGeneration := txn.store.newGeneration()
	for _, w := range txn.watches {
		if e, ok := txn.store.entries.Extract(entry[E, K]{id: w.id, generation: w.watch.Generation}); ok {
			// Re-stamp with the transaction's new generation: Stage() tags
			// watches with the transaction's current generation, and
			// Commit()'s unmask_and_compact only unmasks an entry whose
			// stored generation matches that watch, so a recovered entry
			// left at its old, pre-rollback generation would never become
			// visible again and would leak as a permanently invisible entry.
			e.generation = newGeneration
			txn.changes.Upsert(e)
		}
	}
	logAbort(txn.store.logprefix, StatusOperationCanceled)
	txn.watches = txn.watches[:0]
	txn.stage = txnCreated
	txn.generation = newGeneration
	return nil
}

// Commit makes every staged write visible, compacting away the previously
// visible entry (if any) for each identifier this transaction touched.
func (txn *Txn[E, K]) Commit() error {
	if txn.stage != txnStaged {
		return StatusOperationNotPermitted
	}
	for _, w := range txn.watches {
		txn.store.unmaskAndCompact(w.id, w.watch.Generation)
	}
	txn.stage = txnCreated
	txn.store.stats.commits++
	return nil
}

func idsEqual[E any, K any](cmp Comparator[E, K], a, b K) bool {
	return !cmp.Less(a, b) && !cmp.Less(b, a)
}

// unmaskAndCompact flips visible=true on the entry matching generationToUnmask
// for id, and extracts whichever entry was visible immediately before it,
// maintaining the at-most-one-visible-entry-per-identifier invariant.
//
// Grounded on consistent_avl.hpp's consistent_avl_gt::unmask_and_compact.
func (set *Set[E, K]) unmaskAndCompact(id K, generationToUnmask Generation) {
	current, ok := set.entries.LowerBound(boundaryEntry[E, K](id))
	var lastVisible entry[E, K]
	hasLastVisible := false

	for ok && idsEqual(set.cmp, id, current.id) {
		next, hasNext := set.entries.UpperBound(current)

		if current.generation == generationToUnmask && !current.visible {
			current.visible = true
			set.entries.Upsert(current)
			if !current.deleted {
				set.visibleCount++
			}
		}

		if current.visible {
			if hasLastVisible {
				set.entries.Erase(lastVisible)
				if !lastVisible.deleted {
					set.visibleCount--
				}
			}
			lastVisible, hasLastVisible = current, true
		}

		if !hasNext {
			break
		}
		current, ok = next, true
	}
}
