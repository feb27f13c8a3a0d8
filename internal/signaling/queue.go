package signaling

import (
	"sync"
)

type enqueueResult int

const (
	enqueued enqueueResult = iota
	queueClosed
	queueFull
)

// sendQueue is a byte-bounded FIFO of encoded frames waiting for the
// connection's writer goroutine.
//
// Enqueue never blocks so the relay can fan out presence updates while holding
// its registry lock.
type sendQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	closed   bool

	maxBytes int
	curBytes int
	frames   [][]byte
}

func newSendQueue(maxBytes int) *sendQueue {
	q := &sendQueue{maxBytes: maxBytes}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

func (q *sendQueue) Enqueue(frame []byte) enqueueResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queueClosed
	}
	if q.curBytes+len(frame) > q.maxBytes {
		return queueFull
	}

	q.frames = append(q.frames, frame)
	q.curBytes += len(frame)
	q.notEmpty.Signal()
	return enqueued
}

// Dequeue blocks until a frame is available or the queue is closed and empty.
func (q *sendQueue) Dequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.frames) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.frames) == 0 {
		return nil, false
	}
	frame := q.frames[0]
	q.frames[0] = nil
	q.frames = q.frames[1:]
	q.curBytes -= len(frame)
	return frame, true
}

// Seal stops accepting frames but lets Dequeue drain what is already queued.
func (q *sendQueue) Seal() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}

// Close stops accepting frames and discards anything still queued.
func (q *sendQueue) Close() {
	q.mu.Lock()
	q.closed = true
	clear(q.frames)
	q.frames = nil
	q.curBytes = 0
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}

func (q *sendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}
