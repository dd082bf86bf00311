package server

import "sync"

// Queue is the matchmaking queue: an ordered waiting list of authenticated
// connections seeking a match. Pairing is strict FIFO; no skill or
// preference matching.
type Queue struct {
	mu      sync.Mutex
	ids     []uint32
	present map[uint32]bool
}

// NewQueue creates an empty matchmaking queue.
func NewQueue() *Queue {
	return &Queue{present: make(map[uint32]bool)}
}

// Enqueue appends a connection id if not already present. Duplicate
// enqueue is a no-op and reports false.
func (q *Queue) Enqueue(connID uint32) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.present[connID] {
		return false
	}
	q.present[connID] = true
	q.ids = append(q.ids, connID)
	return true
}

// Remove drops a connection id from the queue, wherever it sits.
func (q *Queue) Remove(connID uint32) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.present[connID] {
		return false
	}
	delete(q.present, connID)
	for i, id := range q.ids {
		if id == connID {
			q.ids = append(q.ids[:i], q.ids[i+1:]...)
			break
		}
	}
	return true
}

// PopPair atomically removes and returns the two oldest entries. ok is
// false while fewer than two connections are waiting.
func (q *Queue) PopPair() (a, b uint32, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ids) < 2 {
		return 0, 0, false
	}
	a, b = q.ids[0], q.ids[1]
	q.ids = q.ids[2:]
	delete(q.present, a)
	delete(q.present, b)
	return a, b, true
}

// Len returns the number of waiting connections.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids)
}
