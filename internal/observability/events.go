package observability

// EventEnvelope is the wire shape for events published to the topic
// exchange.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// WSEventPayload describes a websocket lifecycle event
// (connect/disconnect/error) together with the identity behind it.
type WSEventPayload struct {
	WS       WSDetails `json:"ws"`
	Identity Identity  `json:"identity"`
}

type WSDetails struct {
	Room       string `json:"room,omitempty"`
	Event      string `json:"event"`
	ConnID     string `json:"conn_id"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
}

type Identity struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
	IP       string `json:"ip,omitempty"`
}

// PresencePayload describes a user status transition.
type PresencePayload struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Status   string `json:"status"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
