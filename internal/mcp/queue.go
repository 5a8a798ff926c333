package mcp

import "sync"

// streamQueue buffers deliveries for one stream without bound, so a slow
// client never blocks the broadcaster.
type streamQueue struct {
	mu     sync.Mutex
	items  [][]byte
	notify chan struct{}
}

func newStreamQueue() *streamQueue {
	return &streamQueue{notify: make(chan struct{}, 1)}
}

func (q *streamQueue) push(msg []byte) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *streamQueue) drain() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
