package reconcile

import (
	"github.com/evanofslack/dns-reconciler/record"
)

// Differ computes the changes needed to converge actual state to desired
// state. It is pure: no provider calls, no I/O, only the two sets given.
type Differ struct {
	// orderInsensitive holds record types whose rrdata compares as an
	// unordered multiset. Rrdata order is significant for everything
	// else, since some types (weighted or priority records) encode
	// meaning in ordering.
	orderInsensitive map[record.Type]struct{}
}

// NewDiffer returns a Differ treating the given types' rrdata as
// unordered.
func NewDiffer(orderInsensitiveTypes ...record.Type) *Differ {
	d := &Differ{orderInsensitive: make(map[record.Type]struct{}, len(orderInsensitiveTypes))}
	for _, t := range orderInsensitiveTypes {
		d.orderInsensitive[t] = struct{}{}
	}
	return d
}

// Diff computes the ordered change sequence converging actual to desired:
// a key only in desired becomes a CREATE, a key only in actual becomes a
// DELETE, a key in both with differing TTL or rrdata becomes an UPDATE.
// Records in zones entirely absent from desired are ordinary DELETE
// candidates; zone selection belongs to the caller, not the diff.
//
// CREATEs come first, then UPDATEs, then DELETEs, so a record being
// replaced under a CNAME or alias chain is never transiently deleted
// before its replacement exists. Within each action changes are sorted
// by (zone, name, type), making output deterministic.
func (d *Differ) Diff(desired, actual record.Set) []record.Change {
	var creates, updates, deletes []record.Change

	for _, key := range desired.Keys() {
		want := desired[key]
		have, exists := actual[key]
		if !exists {
			creates = append(creates, record.NewCreate(want))
			continue
		}
		if !d.equal(want, have) {
			updates = append(updates, record.NewUpdate(want, have))
		}
	}

	for _, key := range actual.Keys() {
		if _, wanted := desired[key]; !wanted {
			deletes = append(deletes, record.NewDelete(actual[key]))
		}
	}

	changes := make([]record.Change, 0, len(creates)+len(updates)+len(deletes))
	changes = append(changes, creates...)
	changes = append(changes, updates...)
	changes = append(changes, deletes...)
	return changes
}

func (d *Differ) equal(a, b record.Record) bool {
	if _, unordered := d.orderInsensitive[a.Type]; unordered {
		return a.EqualUnordered(b)
	}
	return a.Equal(b)
}

// Diff runs a default Differ with rrdata order significant for all types.
func Diff(desired, actual record.Set) []record.Change {
	return NewDiffer().Diff(desired, actual)
}
