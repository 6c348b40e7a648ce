package process

import "sync"

// Queue is an unbounded FIFO of output lines with a single consumer in
// mind. Push never blocks.
type Queue struct {
	mu    sync.Mutex
	lines []string
	ready chan struct{}
}

func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Push appends a line and wakes the consumer.
func (q *Queue) Push(line string) {
	q.mu.Lock()
	q.lines = append(q.lines, line)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Drain removes and returns every queued line in push order.
func (q *Queue) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	lines := q.lines
	q.lines = nil
	return lines
}

// Ready receives a value after one or more pushes since the last receive.
func (q *Queue) Ready() <-chan struct{} { return q.ready }

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lines)
}
