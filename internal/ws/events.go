package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"chat-broker/internal/models"
)

// Client-to-server event names.
const (
	EventJoin    = "join"
	EventLeave   = "leave"
	EventMessage = "message"
	EventExit    = "exit"
)

// Server-to-client event names.
const (
	EventRoom  = "room-event"
	EventError = "error"
)

var validate = validator.New()

var errUnknownEvent = errors.New("unknown event")

// JoinPayload binds a session to a room.
type JoinPayload struct {
	User string `json:"user" validate:"required"`
	Room string `json:"room" validate:"required"`
}

// MessagePayload publishes a message to the session's current room.
type MessagePayload struct {
	Text      string `json:"text" validate:"required,max=2000"`
	Timestamp string `json:"timestamp"`
}

// ExitPayload leaves the room with a final farewell broadcast.
type ExitPayload struct {
	Text      string `json:"text" validate:"required,max=2000"`
	Timestamp string `json:"timestamp"`
}

// ErrorPayload is sent back to a client on a rejected event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ClientEvent is the tagged variant decoded from an inbound frame. Exactly
// one payload pointer is set, matching Type; required fields are validated
// before dispatch.
type ClientEvent struct {
	Type    string
	Join    *JoinPayload
	Message *MessagePayload
	Exit    *ExitPayload
}

type inboundEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// DecodeClientEvent parses and validates one inbound frame.
func DecodeClientEvent(raw []byte) (ClientEvent, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ClientEvent{}, fmt.Errorf("malformed event: %w", err)
	}

	switch env.Event {
	case EventJoin:
		var payload JoinPayload
		if err := decodePayload(env.Data, &payload); err != nil {
			return ClientEvent{}, err
		}
		return ClientEvent{Type: EventJoin, Join: &payload}, nil
	case EventLeave:
		return ClientEvent{Type: EventLeave}, nil
	case EventMessage:
		var payload MessagePayload
		if err := decodePayload(env.Data, &payload); err != nil {
			return ClientEvent{}, err
		}
		return ClientEvent{Type: EventMessage, Message: &payload}, nil
	case EventExit:
		var payload ExitPayload
		if err := decodePayload(env.Data, &payload); err != nil {
			return ClientEvent{}, err
		}
		return ClientEvent{Type: EventExit, Exit: &payload}, nil
	default:
		return ClientEvent{}, fmt.Errorf("%w: %q", errUnknownEvent, env.Event)
	}
}

func decodePayload(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return errors.New("missing event data")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("malformed event data: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("invalid event data: %w", err)
	}
	return nil
}

type serverEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func encodeServerEvent(event string, data any) []byte {
	payload, _ := json.Marshal(serverEnvelope{Event: event, Data: data})
	return payload
}

func encodeRoomEvent(ev models.RoomEvent) []byte {
	return encodeServerEvent(EventRoom, ev)
}
