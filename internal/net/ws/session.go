package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const defaultWriteTimeout = 2 * time.Second

// Session is one websocket connection controlling one actor. Replies from the
// read loop and combo pushes from the tick goroutine share the connection, so
// writes are serialised.
type Session struct {
	id      string
	actor   string
	conn    *websocket.Conn
	writeMu sync.Mutex
	timeout time.Duration

	lastSeq atomic.Uint64
	closed  atomic.Bool
}

func newSession(id, actor string, conn *websocket.Conn, timeout time.Duration) *Session {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &Session{id: id, actor: actor, conn: conn, timeout: timeout}
}

// ID identifies the connection.
func (s *Session) ID() string { return s.id }

// Actor names the combat participant the session drives.
func (s *Session) Actor() string { return s.actor }

// WriteMessage sends one frame, honouring the write deadline.
func (s *Session) WriteMessage(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

// LastCommandSeq returns the highest acknowledged client sequence.
func (s *Session) LastCommandSeq() uint64 {
	return s.lastSeq.Load()
}

// StoreLastCommandSeq records an acknowledged client sequence.
func (s *Session) StoreLastCommandSeq(seq uint64) {
	for {
		current := s.lastSeq.Load()
		if seq <= current || s.lastSeq.CompareAndSwap(current, seq) {
			return
		}
	}
}

// Close shuts the connection down once.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.conn.Close()
}
