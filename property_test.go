package txnset

import (
	"testing"

	s "github.com/bnclabs/gosettings"
	"pgregory.net/rapid"
)

// TestPropertySequentialUpsertEraseMatchesMapModel checks that a Set behaves
// like a plain Go map under sequential Upsert/Erase (via single-entry
// transactions) for a randomly generated operation sequence, and that the
// at-most-one-visible-entry-per-identifier invariant holds throughout.
func TestPropertySequentialUpsertEraseMatchesMapModel(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		set := New[item, int]("property", itemComparator(), VariantAVL, s.Settings{})
		model := make(map[int]string)

		ops := rapid.SliceOf(rapid.Custom(func(rt *rapid.T) struct {
			Erase bool
			ID    int
			Val   string
		} {
			return struct {
				Erase bool
				ID    int
				Val   string
			}{
				Erase: rapid.Bool().Draw(rt, "erase"),
				ID:    rapid.IntRange(0, 20).Draw(rt, "id"),
				Val:   rapid.String().Draw(rt, "val"),
			}
		})).Draw(rt, "ops")

		for _, op := range ops {
			txn := set.Transaction()
			if op.Erase {
				if err := txn.Erase(op.ID); err != nil {
					rt.Fatalf("erase: %v", err)
				}
			} else {
				if err := txn.Upsert(item{ID: op.ID, Val: op.Val}); err != nil {
					rt.Fatalf("upsert: %v", err)
				}
			}
			if err := txn.Stage(); err != nil {
				rt.Fatalf("stage: %v", err)
			}
			if err := txn.Commit(); err != nil {
				rt.Fatalf("commit: %v", err)
			}

			if op.Erase {
				delete(model, op.ID)
			} else {
				model[op.ID] = op.Val
			}
		}

		if err := set.Validate(); err != nil {
			rt.Fatalf("validate: %v", err)
		}
		if set.Len() != len(model) {
			rt.Fatalf("len mismatch: set=%v model=%v", set.Len(), len(model))
		}
		for id, val := range model {
			got, found := set.Find(id)
			if !found {
				rt.Fatalf("id %v missing from set", id)
			}
			if got.Val != val {
				rt.Fatalf("id %v: set=%v model=%v", id, got.Val, val)
			}
		}
	})
}

// TestPropertyNoOverlappingWatchesConflict checks that two transactions
// watching disjoint identifiers never conflict with each other, regardless
// of interleaving.
func TestPropertyNoOverlappingWatchesConflict(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		set := New[item, int]("property-disjoint", itemComparator(), VariantAVL, s.Settings{})

		idA := rapid.IntRange(0, 10).Draw(rt, "idA")
		idB := rapid.IntRange(11, 20).Draw(rt, "idB")

		txnA := set.Transaction()
		if err := txnA.Watch(idA); err != nil {
			rt.Fatalf("watch A: %v", err)
		}
		if err := txnA.Upsert(item{ID: idA, Val: "a"}); err != nil {
			rt.Fatalf("upsert A: %v", err)
		}

		txnB := set.Transaction()
		if err := txnB.Watch(idB); err != nil {
			rt.Fatalf("watch B: %v", err)
		}
		if err := txnB.Upsert(item{ID: idB, Val: "b"}); err != nil {
			rt.Fatalf("upsert B: %v", err)
		}

		if err := txnA.Stage(); err != nil {
			rt.Fatalf("stage A should not conflict on a disjoint identifier: %v", err)
		}
		if err := txnB.Stage(); err != nil {
			rt.Fatalf("stage B should not conflict on a disjoint identifier: %v", err)
		}
		if err := txnA.Commit(); err != nil {
			rt.Fatalf("commit A: %v", err)
		}
		if err := txnB.Commit(); err != nil {
			rt.Fatalf("commit B: %v", err)
		}
	})
}
