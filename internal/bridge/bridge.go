// Package bridge decouples real-time fan-out from message storage. Live
// publishes enqueue appends onto a worker that talks to the store on its
// own schedule, so a slow or failing database never blocks delivery to
// connected peers.
package bridge

import (
	"context"
	"log"
	"sync"
	"time"

	"chat-broker/internal/models"
	"chat-broker/internal/observability"
	"chat-broker/internal/repositories"
)

const (
	defaultQueueSize  = 256
	defaultAppendWait = 5 * time.Second
)

type appendRequest struct {
	roomID   int
	authorID int
	body     string
}

// Bridge appends messages to the persistent store and replays history on
// room join.
type Bridge struct {
	messages repositories.MessageRepository
	queue    chan appendRequest
	timeout  time.Duration

	startOnce sync.Once
	closeOnce sync.Once
	started   bool
	done      chan struct{}

	// mu orders EnqueueAppend against Close so no send can race the
	// queue being closed.
	mu     sync.Mutex
	closed bool
}

// New constructs a Bridge with the default queue size.
func New(messages repositories.MessageRepository) *Bridge {
	return &Bridge{
		messages: messages,
		queue:    make(chan appendRequest, defaultQueueSize),
		timeout:  defaultAppendWait,
		done:     make(chan struct{}),
	}
}

// Start launches the append worker.
func (b *Bridge) Start() {
	b.startOnce.Do(func() {
		b.started = true
		go b.run()
	})
}

func (b *Bridge) run() {
	defer close(b.done)
	for req := range b.queue {
		ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
		_, err := b.messages.Append(ctx, req.roomID, req.authorID, req.body)
		cancel()
		if err != nil {
			// The message was already seen live; the loss is only durable
			// history.
			log.Printf("message append failed room=%d author=%d: %v", req.roomID, req.authorID, err)
			observability.IncStoreAppendFailure()
		}
	}
}

// EnqueueAppend offers a message to the append worker without blocking the
// caller. Returns false when the queue is saturated; the message is then
// dropped from durable history and counted.
func (b *Bridge) EnqueueAppend(roomID, authorID int, body string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	select {
	case b.queue <- appendRequest{roomID: roomID, authorID: authorID, body: body}:
		return true
	default:
		log.Printf("append queue full, dropping message room=%d author=%d", roomID, authorID)
		observability.IncStoreAppendFailure()
		return false
	}
}

// Append stores a message synchronously and returns the stored record with
// its assigned id and timestamp. Used by the request/response surface where
// the caller wants the result.
func (b *Bridge) Append(ctx context.Context, roomID, authorID int, body string) (models.Message, error) {
	return b.messages.Append(ctx, roomID, authorID, body)
}

// History returns the room's messages oldest first. Repeatable with no
// side effects.
func (b *Bridge) History(ctx context.Context, roomID int) ([]models.Message, error) {
	return b.messages.History(ctx, roomID)
}

// Close drains the queue and stops the worker.
func (b *Bridge) Close() {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()
		close(b.queue)
		if b.started {
			<-b.done
		}
	})
}
