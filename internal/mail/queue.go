package mail

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrQueueFull is returned when the queue cannot accept another message.
var ErrQueueFull = errors.New("mail queue full")

// ErrQueueClosed is returned after Close.
var ErrQueueClosed = errors.New("mail queue closed")

const sendTimeout = 30 * time.Second

// Queue delivers messages on a background worker so callers never block on SMTP.
type Queue struct {
	sender Sender
	jobs   chan Message

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewQueue starts a worker draining up to size buffered messages.
func NewQueue(sender Sender, size int) *Queue {
	if size <= 0 {
		size = 64
	}
	q := &Queue{
		sender: sender,
		jobs:   make(chan Message, size),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue schedules msg for delivery without blocking.
func (q *Queue) Enqueue(msg Message) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits for queued ones to be sent or ctx to end.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for msg := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := q.sender.Send(ctx, msg); err != nil {
			slog.Error("Failed to send email", "to", msg.To, "subject", msg.Subject, "error", err)
		} else {
			slog.Info("Email sent", "to", msg.To, "subject", msg.Subject)
		}
		cancel()
	}
}
