// Package delta computes the set of inserted, updated, and deleted record
// indices between two checksum snapshots of the same DBF table. It is a
// pure function of its two inputs: no file access, no state, no knowledge
// of what a record index actually means once the file has been packed.
package delta

import (
	"fmt"
	"sort"

	"github.com/epokhe/dbfsync/internal/dbf"
)

// Deltas is the classification of index-keyed changes between an old and a
// new checksum snapshot, each sorted ascending.
type Deltas struct {
	Inserts []int
	Updates []int
	Deletes []int
}

// HasChanges reports whether any insert, update, or delete was detected.
func (d Deltas) HasChanges() bool {
	return len(d.Inserts) > 0 || len(d.Updates) > 0 || len(d.Deletes) > 0
}

// Summary renders a short human-readable description, e.g.
// "3 inserted, 1 updated, 0 deleted".
func (d Deltas) Summary() string {
	return fmt.Sprintf("%d inserted, %d updated, %d deleted", len(d.Inserts), len(d.Updates), len(d.Deletes))
}

// Compute classifies every index present in old, new, or both:
//   - present only in new: Insert
//   - present only in old: Delete
//   - present in both with different checksums: Update
//   - present in both with equal checksums: unchanged, omitted from Deltas
func Compute(old, new dbf.ChecksumMap) Deltas {
	var d Deltas

	for idx := range new {
		if _, ok := old[idx]; !ok {
			d.Inserts = append(d.Inserts, idx)
		}
	}

	for idx := range old {
		if _, ok := new[idx]; !ok {
			d.Deletes = append(d.Deletes, idx)
		}
	}

	for idx, oldSum := range old {
		newSum, ok := new[idx]
		if ok && oldSum != newSum {
			d.Updates = append(d.Updates, idx)
		}
	}

	sort.Ints(d.Inserts)
	sort.Ints(d.Updates)
	sort.Ints(d.Deletes)

	return d
}
