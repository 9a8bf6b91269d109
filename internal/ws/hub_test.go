package ws

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-broker/internal/models"
)

func newTestSession(userID int, username string) *Session {
	return NewSession(nil, userID, username, ConnInfo{ConnID: fmt.Sprintf("conn-%s-%d", username, userID), ConnectedAt: time.Now()})
}

func recvPayload(t *testing.T, s *Session) []byte {
	t.Helper()
	select {
	case p := <-s.send:
		return p
	case <-time.After(time.Second):
		t.Fatalf("no payload received on %s", s.ID)
		return nil
	}
}

func assertNoPayload(t *testing.T, s *Session) {
	t.Helper()
	select {
	case p := <-s.send:
		t.Fatalf("unexpected payload on %s: %s", s.ID, p)
	default:
	}
}

func TestJoinLeaveOccupancy(t *testing.T) {
	hub := NewHub()
	room := &models.Room{ID: 1, Name: "general", Kind: models.RoomKindGroup}
	s := newTestSession(1, "alice")

	require.NoError(t, hub.Join(s, room))
	assert.Equal(t, room, hub.CurrentRoom(s))
	assert.Contains(t, hub.Occupants(room.ID), s.ID)

	// a bound session always appears in its room's occupancy, and joining
	// elsewhere requires an explicit leave first
	other := &models.Room{ID: 2, Name: "random"}
	require.ErrorIs(t, hub.Join(s, other), ErrAlreadyJoined)

	left, ok := hub.Leave(s)
	require.True(t, ok)
	assert.Equal(t, room, left)
	assert.Nil(t, hub.CurrentRoom(s))
	assert.Empty(t, hub.Occupants(room.ID))

	// leave without a current room is a no-op, not an error
	_, ok = hub.Leave(s)
	assert.False(t, ok)
}

func TestBroadcastDeliversInOrder(t *testing.T) {
	hub := NewHub()
	room := &models.Room{ID: 7, Name: "general"}
	s1 := newTestSession(1, "alice")
	s2 := newTestSession(2, "bob")
	require.NoError(t, hub.Join(s1, room))
	require.NoError(t, hub.Join(s2, room))

	first := []byte(`{"event":"room-event","data":{"author":"alice","text":"hi"}}`)
	second := []byte(`{"event":"room-event","data":{"author":"alice","text":"there"}}`)

	delivered := hub.Broadcast(room.ID, first)
	assert.Len(t, delivered, 2)
	delivered = hub.Broadcast(room.ID, second)
	assert.Len(t, delivered, 2)

	for _, s := range []*Session{s1, s2} {
		assert.Equal(t, first, recvPayload(t, s))
		assert.Equal(t, second, recvPayload(t, s))
	}
}

func TestBroadcastSnapshotExcludesUnjoined(t *testing.T) {
	hub := NewHub()
	room := &models.Room{ID: 3, Name: "general"}
	joined := newTestSession(1, "alice")
	outsider := newTestSession(2, "bob")
	require.NoError(t, hub.Join(joined, room))

	delivered := hub.Broadcast(room.ID, []byte("x"))
	assert.Equal(t, []string{joined.ID}, delivered)
	assertNoPayload(t, outsider)
}

func TestBroadcastSkipsClosedSession(t *testing.T) {
	hub := NewHub()
	room := &models.Room{ID: 4, Name: "general"}
	alive := newTestSession(1, "alice")
	stale := newTestSession(2, "bob")
	require.NoError(t, hub.Join(alive, room))
	require.NoError(t, hub.Join(stale, room))

	stale.Close()

	delivered := hub.Broadcast(room.ID, []byte("x"))
	assert.Equal(t, []string{alive.ID}, delivered)
	assert.Equal(t, []byte("x"), recvPayload(t, alive))
}

func TestKickUserEvictsOnlyThatUser(t *testing.T) {
	hub := NewHub()
	room := &models.Room{ID: 5, Name: "general"}
	target := newTestSession(2, "bob")
	bystander := newTestSession(1, "alice")
	require.NoError(t, hub.Join(target, room))
	require.NoError(t, hub.Join(bystander, room))

	kicked := hub.KickUser(room.ID, 2)
	assert.Equal(t, 1, kicked)
	assert.Nil(t, hub.CurrentRoom(target))
	assert.Equal(t, []string{bystander.ID}, hub.Occupants(room.ID))

	var env struct {
		Event string       `json:"event"`
		Data  ErrorPayload `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recvPayload(t, target), &env))
	assert.Equal(t, EventError, env.Event)
	assert.Equal(t, "removed from room", env.Data.Message)
}

func TestDisconnectLeavesAndIsIdempotent(t *testing.T) {
	hub := NewHub()
	room := &models.Room{ID: 6, Name: "general"}
	s := newTestSession(1, "alice")

	hub.Connect(s)
	require.NoError(t, hub.Join(s, room))

	left, wentOffline := hub.Disconnect(s)
	assert.Equal(t, room, left)
	assert.True(t, wentOffline)
	assert.Empty(t, hub.Occupants(room.ID))

	// a racing second cleanup must not flip state again
	left, wentOffline = hub.Disconnect(s)
	assert.Nil(t, left)
	assert.False(t, wentOffline)
}
