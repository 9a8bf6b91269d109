package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-broker/internal/bridge"
	"chat-broker/internal/identity"
	"chat-broker/internal/models"
	"chat-broker/internal/observability"
	"chat-broker/internal/registry"
	"chat-broker/internal/repositories"
)

const wsEventsRoutingKey = "ws_events.rooms"
const presenceRoutingKey = "presence.users"

// ChatWebSocketHandler upgrades client connections and runs the per-session
// event loop: join/leave/message/exit in, room events out.
type ChatWebSocketHandler struct {
	hub      *Hub
	registry *registry.Service
	bridge   *bridge.Bridge
	identity *identity.Service
}

// NewChatWebSocketHandler constructs a ChatWebSocketHandler.
func NewChatWebSocketHandler(hub *Hub, reg *registry.Service, br *bridge.Bridge, ids *identity.Service) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{hub: hub, registry: reg, bridge: br, identity: ids}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates, upgrades the connection, and registers the session.
func (h *ChatWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-broker/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	claims, err := h.validateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      claims.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	session := NewSession(conn, claims.UserID, claims.Username, info)

	wentOnline := h.hub.Connect(session)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.publishWSEvent(ctx, session, "ws_connect", "")
	if wentOnline {
		h.publishPresence(ctx, session, models.PresenceOnline)
	}

	go session.writePump()
	go h.readLoop(ctx, session)
}

func (h *ChatWebSocketHandler) readLoop(ctx context.Context, s *Session) {
	var closeReason string
	defer func() {
		h.cleanup(ctx, s, closeReason)
	}()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				h.publishWSEvent(ctx, s, "ws_error", closeReason)
			}
			return
		}

		event, err := DecodeClientEvent(raw)
		if err != nil {
			s.enqueue(encodeServerEvent(EventError, ErrorPayload{Message: err.Error()}))
			continue
		}
		observability.IncWSEvent(event.Type)
		h.dispatch(ctx, s, event)
	}
}

func (h *ChatWebSocketHandler) dispatch(ctx context.Context, s *Session, event ClientEvent) {
	switch event.Type {
	case EventJoin:
		h.handleJoin(ctx, s, event.Join)
	case EventLeave:
		h.leaveCurrent(s)
	case EventMessage:
		h.handleMessage(s, event.Message)
	case EventExit:
		h.handleExit(s, event.Exit)
	}
}

// handleJoin binds the session to the room. An existing binding is fully
// left first, departure broadcast included, before the new join starts.
func (h *ChatWebSocketHandler) handleJoin(ctx context.Context, s *Session, payload *JoinPayload) {
	room, err := h.registry.GetRoom(ctx, payload.Room)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			s.enqueue(encodeServerEvent(EventError, ErrorPayload{Message: "room not found"}))
			return
		}
		s.enqueue(encodeServerEvent(EventError, ErrorPayload{Message: "room lookup failed"}))
		return
	}

	member, err := h.registry.IsMember(ctx, room.ID, s.UserID)
	if err != nil || !member {
		s.enqueue(encodeServerEvent(EventError, ErrorPayload{Message: "not a room member"}))
		return
	}

	h.leaveCurrent(s)

	if err := h.hub.Join(s, &room); err != nil {
		s.enqueue(encodeServerEvent(EventError, ErrorPayload{Message: err.Error()}))
		return
	}

	h.replayHistory(ctx, s, room.ID)

	h.hub.Broadcast(room.ID, encodeRoomEvent(models.RoomEvent{
		Author:    s.Username,
		Text:      "joined the room",
		Timestamp: time.Now().UTC().Format(models.EventTimeLayout),
	}))
}

// replayHistory sends the room's persisted messages to the joining session
// only, oldest first, ahead of any live traffic the session will receive.
// Replay paces itself against the write pump: a history longer than the
// send buffer must not lose frames or leave the buffer saturated for the
// join broadcast that follows.
func (h *ChatWebSocketHandler) replayHistory(ctx context.Context, s *Session, roomID int) {
	msgs, err := h.bridge.History(ctx, roomID)
	if err != nil {
		s.enqueue(encodeServerEvent(EventError, ErrorPayload{Message: "history unavailable"}))
		return
	}
	for _, msg := range msgs {
		if !s.enqueueWait(encodeRoomEvent(models.RoomEventFromMessage(msg))) {
			return
		}
	}
}

// handleMessage fans the message out to the current room and hands it to
// the persistence bridge. The live path never waits on the store.
func (h *ChatWebSocketHandler) handleMessage(s *Session, payload *MessagePayload) {
	room := h.hub.CurrentRoom(s)
	if room == nil {
		s.enqueue(encodeServerEvent(EventError, ErrorPayload{Message: "join a room first"}))
		return
	}

	timestamp := payload.Timestamp
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(models.EventTimeLayout)
	}

	h.hub.Broadcast(room.ID, encodeRoomEvent(models.RoomEvent{
		Author:    s.Username,
		Text:      payload.Text,
		Timestamp: timestamp,
	}))
	h.bridge.EnqueueAppend(room.ID, s.UserID, payload.Text)
}

// handleExit broadcasts the client-provided farewell to the room and then
// leaves. The farewell is delivery-only; it is not persisted.
func (h *ChatWebSocketHandler) handleExit(s *Session, payload *ExitPayload) {
	room := h.hub.CurrentRoom(s)
	if room == nil {
		s.enqueue(encodeServerEvent(EventError, ErrorPayload{Message: "join a room first"}))
		return
	}

	timestamp := payload.Timestamp
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(models.EventTimeLayout)
	}
	h.hub.Broadcast(room.ID, encodeRoomEvent(models.RoomEvent{
		Author:    s.Username,
		Text:      payload.Text,
		Timestamp: timestamp,
	}))
	h.hub.Leave(s)
}

// leaveCurrent unbinds the session and announces the departure to the
// remaining occupants. No-op when the session has no current room.
func (h *ChatWebSocketHandler) leaveCurrent(s *Session) {
	room, ok := h.hub.Leave(s)
	if !ok {
		return
	}
	h.hub.Broadcast(room.ID, encodeRoomEvent(models.RoomEvent{
		Author:    s.Username,
		Text:      "left the room",
		Timestamp: time.Now().UTC().Format(models.EventTimeLayout),
	}))
}

// cleanup unwinds a disconnecting session exactly once: implicit leave with
// departure broadcast, presence transition, metrics, and the disconnect
// event.
func (h *ChatWebSocketHandler) cleanup(ctx context.Context, s *Session, closeReason string) {
	h.leaveCurrent(s)
	_, wentOffline := h.hub.Disconnect(s)

	observability.DecWSActive()
	observability.IncWSEvent("ws_disconnect")
	h.publishWSEvent(ctx, s, "ws_disconnect", closeReason)
	if wentOffline {
		h.publishPresence(ctx, s, models.PresenceOffline)
	}
	s.Close()
}

func (h *ChatWebSocketHandler) publishWSEvent(ctx context.Context, s *Session, event, reason string) {
	payload := observability.WSEventPayload{
		WS: observability.WSDetails{
			Event:      event,
			ConnID:     s.Info.ConnID,
			DurationMS: time.Since(s.Info.ConnectedAt).Milliseconds(),
			Reason:     reason,
		},
		Identity: observability.Identity{
			UserID:   s.UserID,
			Username: s.Username,
			DeviceID: s.Info.DeviceID,
			IP:       s.Info.IP,
		},
	}
	if room := h.hub.CurrentRoom(s); room != nil {
		payload.WS.Room = room.Name
	}

	headers := observability.BuildHeaders(s.Info.RequestID, s.Info.TraceID)
	_ = observability.PublishEvent(ctx, wsEventsRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, headers)
}

func (h *ChatWebSocketHandler) publishPresence(ctx context.Context, s *Session, status models.PresenceStatus) {
	headers := observability.BuildHeaders(s.Info.RequestID, s.Info.TraceID)
	_ = observability.PublishEvent(ctx, presenceRoutingKey, observability.EventEnvelope{
		EventType: "presence",
		EventName: string(status),
		Payload: observability.PresencePayload{
			UserID:   s.UserID,
			Username: s.Username,
			Status:   string(status),
		},
	}, headers)
}

func (h *ChatWebSocketHandler) validateToken(header string) (*identity.Claims, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return h.identity.ValidateAccess(parts[1])
	}
	return nil, identity.ErrInvalidToken
}
