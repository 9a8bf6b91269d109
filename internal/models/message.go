package models

import "time"

// Message is one persisted chat message. Immutable once stored; the id is
// assigned by the store and increases monotonically within a room.
type Message struct {
	ID        int       `db:"id" json:"id"`
	RoomID    int       `db:"room_id" json:"room_id"`
	AuthorID  int       `db:"author_id" json:"author_id"`
	Author    string    `db:"author" json:"author"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RoomEvent is the payload delivered to every session joined to a room.
type RoomEvent struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Timestamp layout used on the wire. Second precision, matching stored
// message granularity.
const EventTimeLayout = "2006-01-02 15:04:05"

// RoomEventFromMessage renders a stored message as a wire event.
func RoomEventFromMessage(msg Message) RoomEvent {
	return RoomEvent{
		Author:    msg.Author,
		Text:      msg.Body,
		Timestamp: msg.CreatedAt.UTC().Format(EventTimeLayout),
	}
}
