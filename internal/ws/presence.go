package ws

import (
	"sync"

	"chat-broker/internal/models"
)

// PresenceTracker maintains per-user live session counts. A user is online
// while at least one session is connected, so a second device connecting
// and disconnecting does not flap the status of the first.
//
// TODO(product): confirm whether shared presence across devices is the
// wanted behavior, or whether per-device presence should be exposed.
type PresenceTracker struct {
	mu     sync.Mutex
	counts map[int]int
}

// NewPresenceTracker creates an empty tracker.
func NewPresenceTracker() *PresenceTracker {
	return &PresenceTracker{counts: make(map[int]int)}
}

// Connect records a new live session. Returns true when the user just came
// online (first session).
func (t *PresenceTracker) Connect(userID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[userID]++
	return t.counts[userID] == 1
}

// Disconnect records a closed session. Returns true when this was the
// user's last session and they are now offline. Extra disconnects for an
// already-offline user are ignored.
func (t *PresenceTracker) Disconnect(userID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.counts[userID]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(t.counts, userID)
		return true
	}
	t.counts[userID] = n - 1
	return false
}

// Status reports the user's presence.
func (t *PresenceTracker) Status(userID int) models.PresenceStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.counts[userID] > 0 {
		return models.PresenceOnline
	}
	return models.PresenceOffline
}

// Sessions returns the number of live sessions for the user.
func (t *PresenceTracker) Sessions(userID int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[userID]
}
