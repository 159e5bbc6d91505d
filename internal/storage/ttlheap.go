package storage

import (
	"container/heap"
	"time"
)

// Entry is one TTL record: the key expires at Expiry.
type Entry struct {
	Key    string
	Expiry time.Time
}

// ttlHeap is a min-heap of entries ordered by expiry.
type ttlHeap []Entry

func (h ttlHeap) Len() int           { return len(h) }
func (h ttlHeap) Less(i, j int) bool { return h[i].Expiry.Before(h[j].Expiry) }
func (h ttlHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *ttlHeap) Push(x any) {
	*h = append(*h, x.(Entry))
}

func (h *ttlHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

func (h *ttlHeap) push(e Entry) {
	heap.Push(h, e)
}

func (h *ttlHeap) pop() Entry {
	return heap.Pop(h).(Entry)
}

// peek returns the earliest entry. The heap must not be empty.
func (h ttlHeap) peek() Entry {
	return h[0]
}

func (h ttlHeap) clone() ttlHeap {
	out := make(ttlHeap, len(h))
	copy(out, h)
	return out
}

// rebuild replaces the heap contents with one entry per live key.
func (h *ttlHeap) rebuild(expiry map[string]time.Time) {
	out := make(ttlHeap, 0, len(expiry))
	for k, t := range expiry {
		out = append(out, Entry{Key: k, Expiry: t})
	}
	heap.Init(&out)
	*h = out
}
