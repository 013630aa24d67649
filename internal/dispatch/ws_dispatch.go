package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
)

var ErrNoSession = errors.New("no ws session")

// WSSession is one connected rider app.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(payload)
}

// WSRegistry holds rider sessions keyed by rider ID.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry {
	return &WSRegistry{sessions: make(map[string]*WSSession)}
}

// Add registers the rider's session, displacing any previous one, and
// returns it so the caller can drop exactly this session when the socket
// closes.
func (r *WSRegistry) Add(riderID string, conn *websocket.Conn) *WSSession {
	s := &WSSession{conn: conn}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[riderID] = s
	return s
}

// Drop removes the rider's session only if it is still sess; a stale socket
// closing must not evict a newer session for the same rider.
func (r *WSRegistry) Drop(riderID string, sess *WSSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[riderID] == sess {
		delete(r.sessions, riderID)
	}
}

func (r *WSRegistry) Notify(_ context.Context, riderID string, payload any) error {
	r.mu.RLock()
	s, ok := r.sessions[riderID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.Send(payload)
}
