package proactive

import "sync/atomic"

// DefaultQueueCapacity bounds the pending-message queue when no capacity is
// configured.
const DefaultQueueCapacity = 64

// Queue holds generated messages until the chat surface takes them. It is
// bounded; when full, the oldest pending message is discarded to make room.
type Queue struct {
	ch      chan string
	dropped atomic.Int64
}

// NewQueue creates a queue holding at most capacity messages.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Queue{ch: make(chan string, capacity)}
}

// Put enqueues msg without blocking.
func (q *Queue) Put(msg string) {
	for {
		select {
		case q.ch <- msg:
			return
		default:
		}
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
		}
	}
}

// TryTake removes and returns the oldest pending message, if any.
func (q *Queue) TryTake() (string, bool) {
	select {
	case msg := <-q.ch:
		return msg, true
	default:
		return "", false
	}
}

// Len returns the number of pending messages.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the queue capacity.
func (q *Queue) Cap() int { return cap(q.ch) }

// Dropped returns how many messages were discarded because the queue was full.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }
