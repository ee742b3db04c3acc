package mqtt

import "sync"

// queuedMessage is a publish deferred until the session is connected.
type queuedMessage struct {
	topic   string
	payload []byte
	qos     byte
}

// publishQueue is a bounded FIFO. When full, pushing drops the oldest entry.
type publishQueue struct {
	mu    sync.Mutex
	buf   []queuedMessage
	head  int
	count int
}

func newPublishQueue(capacity int) *publishQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &publishQueue{buf: make([]queuedMessage, capacity)}
}

// push appends m and reports whether an older entry was dropped to make room.
func (q *publishQueue) push(m queuedMessage) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	capacity := len(q.buf)
	if q.count == capacity {
		q.buf[q.head] = queuedMessage{}
		q.head = (q.head + 1) % capacity
		q.count--
		dropped = true
	}
	q.buf[(q.head+q.count)%capacity] = m
	q.count++
	return dropped
}

// drain removes and returns all entries in enqueue order.
func (q *publishQueue) drain() []queuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]queuedMessage, 0, q.count)
	for i := 0; i < q.count; i++ {
		idx := (q.head + i) % len(q.buf)
		out = append(out, q.buf[idx])
		q.buf[idx] = queuedMessage{}
	}
	q.head = 0
	q.count = 0
	return out
}

func (q *publishQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
