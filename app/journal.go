package app

import (
	"sync"
	"time"

	"github.com/google/btree"
)

const journalDegree = 32

// Event is one committed module event
type Event struct {
	Seq        uint64            `json:"seq"`
	Height     int64             `json:"height"`
	Time       time.Time         `json:"time"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Less implements btree.Item, ordering by sequence
func (e *Event) Less(than btree.Item) bool {
	return e.Seq < than.(*Event).Seq
}

// Journal keeps the most recent committed events for the events endpoint.
// It is in memory only; the ledger itself lives in the store.
type Journal struct {
	mu       sync.RWMutex
	tree     *btree.BTree
	next     uint64
	capacity int
}

// NewJournal creates a journal retaining at most capacity events
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = 1
	}
	return &Journal{
		tree:     btree.New(journalDegree),
		next:     1,
		capacity: capacity,
	}
}

// Append assigns sequence numbers and stores events, pruning the oldest
// beyond capacity. The stored copies are returned.
func (j *Journal) Append(events ...Event) []Event {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Event, 0, len(events))
	for _, e := range events {
		e.Seq = j.next
		j.next++
		item := e
		j.tree.ReplaceOrInsert(&item)
		out = append(out, e)
	}
	for j.tree.Len() > j.capacity {
		j.tree.DeleteMin()
	}
	return out
}

// Since returns up to limit events with Seq >= from in order
func (j *Journal) Since(from uint64, limit int) []Event {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Event, 0)
	j.tree.AscendGreaterOrEqual(&Event{Seq: from}, func(item btree.Item) bool {
		if limit > 0 && len(out) >= limit {
			return false
		}
		out = append(out, *item.(*Event))
		return true
	})
	return out
}

// Len returns the number of retained events
func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.tree.Len()
}

// LastSeq returns the sequence of the newest event, zero when empty
func (j *Journal) LastSeq() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.next - 1
}
