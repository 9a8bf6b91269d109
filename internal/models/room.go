package models

import "time"

// Room kinds. A direct room is a two-party conversation, a group room has
// open membership.
const (
	RoomKindDirect = "direct"
	RoomKindGroup  = "group"
)

// Room is a named channel grouping members and message history. Persisted
// membership lives in room_members; live occupancy is tracked by the hub
// and is never written to the store.
type Room struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Kind      string    `db:"kind" json:"kind"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RoomMember is the persisted (user, room) relation. Unique per pair.
type RoomMember struct {
	RoomID  int       `db:"room_id" json:"room_id"`
	UserID  int       `db:"user_id" json:"user_id"`
	AddedAt time.Time `db:"added_at" json:"added_at"`
}

// ValidRoomKind reports whether kind is one of the accepted room kinds.
func ValidRoomKind(kind string) bool {
	return kind == RoomKindDirect || kind == RoomKindGroup
}
