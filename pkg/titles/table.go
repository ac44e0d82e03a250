package titles

import (
	"errors"
	"fmt"
	"sort"
)

// Unknown is returned by LabelAt for indices that do not name a tier.
const Unknown = "Unknown"

var (
	ErrEmptyTable   = errors.New("titles: table has no entries")
	ErrNotAscending = errors.New("titles: thresholds must be strictly increasing")
	ErrMissingLabel = errors.New("titles: entry has an empty label")
)

// Entry is one tier of a threshold table
type Entry struct {
	Threshold uint32
	Label     string
}

// Table maps a raw counter onto an ordered set of tiers. The tier for a
// value is the one with the greatest threshold not exceeding it.
type Table struct {
	entries []Entry
}

// New builds a table from entries given in ascending threshold order
func New(entries ...Entry) (*Table, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyTable
	}

	for i, e := range entries {
		if e.Label == "" {
			return nil, fmt.Errorf("%w (threshold %d)", ErrMissingLabel, e.Threshold)
		}
		if i > 0 && e.Threshold <= entries[i-1].Threshold {
			return nil, fmt.Errorf("%w: %d follows %d", ErrNotAscending, e.Threshold, entries[i-1].Threshold)
		}
	}

	t := &Table{entries: make([]Entry, len(entries))}
	copy(t.entries, entries)
	return t, nil
}

// MustNew is New for static tables; it panics on invalid input
func MustNew(entries ...Entry) *Table {
	t, err := New(entries...)
	if err != nil {
		panic(err)
	}
	return t
}

// Index returns the 1-based rank of the greatest threshold <= v, or 0 when
// v is below every threshold.
func (t *Table) Index(v uint32) uint32 {
	// first entry strictly above v; everything before it has been met
	return uint32(sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].Threshold > v
	}))
}

// Label returns the label of the tier v falls into. Values below the lowest
// threshold get the lowest label.
func (t *Table) Label(v uint32) string {
	idx := t.Index(v)
	if idx == 0 {
		return t.entries[0].Label
	}
	return t.entries[idx-1].Label
}

// LabelAt returns the label for a 1-based tier index
func (t *Table) LabelAt(index uint32) string {
	if index == 0 || int(index) > len(t.entries) {
		return Unknown
	}
	return t.entries[index-1].Label
}

// Len returns the number of tiers
func (t *Table) Len() int {
	return len(t.entries)
}

// Entries returns a copy of the tiers in ascending order
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}
