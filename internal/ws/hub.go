package ws

import (
	"errors"
	"log"
	"sync"

	"chat-broker/internal/models"
	"chat-broker/internal/observability"
)

// ErrAlreadyJoined is returned when a session tries to join a room without
// leaving its current one first. Room-to-room moves are an explicit
// leave-then-join so the departure broadcast completes before the join
// starts.
var ErrAlreadyJoined = errors.New("session already joined to a room")

// Hub owns live room occupancy and message fan-out. Occupancy is ephemeral:
// it tracks connected sessions only and is distinct from the persisted
// membership relation.
type Hub struct {
	mu        sync.RWMutex
	occupancy map[int]map[*Session]struct{}
	presence  *PresenceTracker
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		occupancy: make(map[int]map[*Session]struct{}),
		presence:  NewPresenceTracker(),
	}
}

// Presence exposes the presence tracker.
func (h *Hub) Presence() *PresenceTracker {
	return h.presence
}

// Connect registers a live session for presence. Returns true when the
// user just came online.
func (h *Hub) Connect(s *Session) bool {
	return h.presence.Connect(s.UserID)
}

// Disconnect unwinds a closing session: any joined room is left and the
// user's presence count drops. Idempotent against double cleanup when a
// read error and an explicit leave race. Returns the left room (if any)
// and whether the user went offline.
func (h *Hub) Disconnect(s *Session) (*models.Room, bool) {
	room, _ := h.Leave(s)
	return room, h.presence.Disconnect(s.UserID)
}

// Join binds the session to the room and records occupancy. The session
// must not be joined elsewhere.
func (h *Hub) Join(s *Session, room *models.Room) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.room != nil {
		return ErrAlreadyJoined
	}
	set, ok := h.occupancy[room.ID]
	if !ok {
		set = make(map[*Session]struct{})
		h.occupancy[room.ID] = set
	}
	set[s] = struct{}{}
	s.room = room
	return nil
}

// Leave unbinds the session from its current room. A session with no
// current room is a no-op, not an error: disconnect cleanup must be safe
// to run twice.
func (h *Hub) Leave(s *Session) (*models.Room, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.room == nil {
		return nil, false
	}
	room := s.room
	s.room = nil
	h.removeOccupantLocked(room.ID, s)
	return room, true
}

// CurrentRoom returns the room the session is joined to, or nil.
func (h *Hub) CurrentRoom(s *Session) *models.Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return s.room
}

// Occupants returns the session ids currently joined to the room.
func (h *Hub) Occupants(roomID int) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.occupancy[roomID]))
	for s := range h.occupancy[roomID] {
		ids = append(ids, s.ID)
	}
	return ids
}

// Broadcast fans a payload out to every session joined to the room at the
// instant of the snapshot. Each delivery is independent and best-effort: a
// stale or slow recipient is dropped and closed without affecting the
// rest. Returns the ids of sessions that accepted the payload.
func (h *Hub) Broadcast(roomID int, payload []byte) []string {
	h.mu.RLock()
	snapshot := make([]*Session, 0, len(h.occupancy[roomID]))
	for s := range h.occupancy[roomID] {
		snapshot = append(snapshot, s)
	}
	h.mu.RUnlock()

	delivered := make([]string, 0, len(snapshot))
	for _, s := range snapshot {
		if s.enqueue(payload) {
			delivered = append(delivered, s.ID)
			continue
		}
		log.Printf("broadcast drop room=%d conn=%s user=%d: send buffer full or session closed", roomID, s.ID, s.UserID)
		observability.IncBroadcastDropped()
		s.Close()
	}
	observability.AddBroadcastDelivered(len(delivered))
	return delivered
}

// KickUser force-leaves every live session of the user in the room. Used
// when persisted membership is revoked while the user is joined, so
// occupancy never outlives membership. The connections stay open; the
// sessions are merely unbound. Returns the number of sessions kicked.
func (h *Hub) KickUser(roomID, userID int) int {
	h.mu.Lock()
	var kicked []*Session
	for s := range h.occupancy[roomID] {
		if s.UserID == userID {
			kicked = append(kicked, s)
		}
	}
	for _, s := range kicked {
		s.room = nil
		h.removeOccupantLocked(roomID, s)
	}
	h.mu.Unlock()

	for _, s := range kicked {
		if !s.enqueue(encodeServerEvent(EventError, ErrorPayload{Message: "removed from room"})) {
			s.Close()
		}
	}
	return len(kicked)
}

func (h *Hub) removeOccupantLocked(roomID int, s *Session) {
	set, ok := h.occupancy[roomID]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.occupancy, roomID)
	}
}
