package trainer

import (
	"math"
	"sort"
)

// Entry is one retained checkpoint
type Entry struct {
	// Name is the file name inside the checkpoints directory
	Name  string
	Loss  float64
	Epoch int
}

// TopK keeps the K checkpoints with the lowest validation loss, best first
type TopK struct {
	K       int
	Entries []Entry
}

// Accepts reports whether a checkpoint with this loss would be retained.
// Non-finite losses are never retained.
func (t *TopK) Accepts(loss float64) bool {
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return false
	}
	if len(t.Entries) < t.K {
		return true
	}
	return loss < t.Entries[len(t.Entries)-1].Loss
}

// Push inserts e and returns the entries evicted to stay within K. Entries
// with a non-finite loss are not inserted.
func (t *TopK) Push(e Entry) []Entry {
	if math.IsNaN(e.Loss) || math.IsInf(e.Loss, 0) {
		return nil
	}
	t.Entries = append(t.Entries, e)
	sort.SliceStable(t.Entries, func(i, j int) bool { return t.Entries[i].Loss < t.Entries[j].Loss })
	if len(t.Entries) <= t.K {
		return nil
	}
	evicted := append([]Entry(nil), t.Entries[t.K:]...)
	t.Entries = t.Entries[:t.K]
	return evicted
}

// Best returns the lowest-loss entry
func (t *TopK) Best() (Entry, bool) {
	if len(t.Entries) == 0 {
		return Entry{}, false
	}
	return t.Entries[0], true
}

// Retain drops the entries for which keep returns false
func (t *TopK) Retain(keep func(Entry) bool) {
	kept := t.Entries[:0]
	for _, e := range t.Entries {
		if keep(e) {
			kept = append(kept, e)
		}
	}
	t.Entries = kept
}
