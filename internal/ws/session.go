package ws

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chat-broker/internal/models"
)

const (
	sendBufferSize = 64
	writeWait      = 10 * time.Second
)

// ConnInfo carries connection metadata attached to a session for
// observability events.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Session is the runtime state of one live client connection. It is owned
// by the connection's read loop; the hub holds only non-owning references
// for occupancy lookup. A session is bound to at most one room at a time.
type Session struct {
	ID       string
	UserID   int
	Username string
	Info     ConnInfo

	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once

	// room is the currently joined room, nil when unbound. Guarded by the
	// owning hub's mutex so occupancy and the back-reference change
	// together.
	room *models.Room
}

// NewSession wraps an upgraded connection. conn may be nil in tests.
func NewSession(conn *websocket.Conn, userID int, username string, info ConnInfo) *Session {
	return &Session{
		ID:       info.ConnID,
		UserID:   userID,
		Username: username,
		Info:     info,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}
}

// enqueue offers a payload to the outbound channel without blocking.
// Returns false when the session is closed or its buffer is full.
func (s *Session) enqueue(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- payload:
		return true
	default:
		return false
	}
}

// enqueueWait blocks until the payload is accepted or the session closes.
// Used where dropping a frame is not acceptable, such as history replay;
// live fan-out stays non-blocking via enqueue.
func (s *Session) enqueueWait(payload []byte) bool {
	select {
	case s.send <- payload:
		return true
	case <-s.done:
		return false
	}
}

// writePump drains the outbound channel onto the websocket connection.
// Runs in its own goroutine for the lifetime of the connection; per-session
// ordering is the channel's FIFO order.
func (s *Session) writePump() {
	for {
		select {
		case payload := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("websocket write error conn=%s: %v", s.ID, err)
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// Close tears the connection down. Safe to call more than once; the first
// caller wins and the read loop unwinds through its disconnect cleanup.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			_ = s.conn.Close()
		}
	})
}
