package domain

import "sync"

// Connection is one peer as seen by the registry and the router.
// Send must not block: it either enqueues the frame or returns an error.
type Connection interface {
	ID() string
	Send(data []byte) error
	Open() bool
	Close() error
	Session() *Session
}

// Session is the mutable per-connection state that is not room membership.
// Room membership lives in the registry.
type Session struct {
	mu           sync.Mutex
	username     string
	disconnected bool
}

func (s *Session) SetUsername(name string) {
	s.mu.Lock()
	s.username = name
	s.mu.Unlock()
}

func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// MarkDisconnected flips the session into its terminal state.
// It reports false if the session was already disconnected.
func (s *Session) MarkDisconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnected {
		return false
	}
	s.disconnected = true
	return true
}

func (s *Session) Disconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

// MessageHandler is driven by the transport: Connect once, Handle for every
// inbound frame in arrival order, Disconnect once when the peer goes away.
type MessageHandler interface {
	Connect(conn Connection)
	Handle(conn Connection, data []byte)
	Disconnect(conn Connection)
}
