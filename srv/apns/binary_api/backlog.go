package binary_api

import (
	"sync"
)

// queuedMessage is a send that arrived while no gateway connection was
// available. The token is still in its base64 form; framing happens when
// the backlog is flushed.
type queuedMessage struct {
	devToken string
	payload  []byte
}

// backlogQueue is a bounded FIFO of sends buffered while disconnected.
// Enqueueing into a full queue evicts the oldest entry to admit the newest,
// so the queue never blocks and never grows past its capacity.
type backlogQueue struct {
	mu      sync.Mutex
	entries []queuedMessage
	head    int
	size    int
}

func newBacklogQueue(capacity int) *backlogQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &backlogQueue{entries: make([]queuedMessage, capacity)}
}

// enqueue adds m, evicting the oldest entry if the queue is full. It
// reports whether an entry was evicted.
func (q *backlogQueue) enqueue(m queuedMessage) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	evicted := false
	if q.size == len(q.entries) {
		q.head = (q.head + 1) % len(q.entries)
		q.size--
		evicted = true
	}
	q.entries[(q.head+q.size)%len(q.entries)] = m
	q.size++
	return evicted
}

// qsize returns the number of queued entries. By the time the caller acts
// on it, concurrent producers may have changed it; drainAll copes.
func (q *backlogQueue) qsize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// drainAll removes and returns queued entries in FIFO order. It drains at
// most the size observed on entry, so producers enqueueing concurrently are
// picked up by the next flush rather than extending this one.
func (q *backlogQueue) drainAll() []queuedMessage {
	n := q.qsize()
	if n == 0 {
		return nil
	}
	drained := make([]queuedMessage, 0, n)
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := 0; i < n && q.size > 0; i++ {
		drained = append(drained, q.entries[q.head])
		q.entries[q.head] = queuedMessage{}
		q.head = (q.head + 1) % len(q.entries)
		q.size--
	}
	return drained
}
