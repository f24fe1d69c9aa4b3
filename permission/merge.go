package permission

import (
	"errors"
	"fmt"
)

// ErrInvalidLevel is returned when recipient bits decode to an invalid level.
var ErrInvalidLevel = errors.New("invalid permission")

// Merge returns a new entry list in which every recipient's decoded level
// replaces the existing entry for the same entity. Recipient entries come
// first in recipient order, followed by the untouched entries of current in
// their original order. current is never modified.
//
// A recipient whose bits decode to an invalid level fails the whole merge.
func Merge(current []Entry, recipients []Recipient) ([]Entry, error) {
	granted := make([]Entry, 0, len(recipients)+len(current))
	seen := make(map[int]int, len(recipients))
	for _, r := range recipients {
		entry := NewEntry(r)
		if !entry.Level.Valid() {
			return nil, fmt.Errorf("%w: bits %d for entity %d", ErrInvalidLevel, r.Bits, r.Entity)
		}
		// a later grant for the same entity wins
		if i, ok := seen[r.Entity]; ok {
			granted[i] = entry
			continue
		}
		seen[r.Entity] = len(granted)
		granted = append(granted, entry)
	}

	if len(current) == 0 {
		return granted, nil
	}

	// last write wins for duplicate entities in current
	survivors := make(map[int]int, len(current))
	for i, e := range current {
		if _, superseded := seen[e.Entity]; superseded {
			continue
		}
		survivors[e.Entity] = i
	}
	for i, e := range current {
		if j, ok := survivors[e.Entity]; ok && j == i {
			granted = append(granted, e)
		}
	}
	return granted, nil
}
