package core

import "github.com/dkeye/Rooms/internal/domain"

// SessionID identifies one websocket connection.
type SessionID string

// Subscriber binds a room member to the socket it listens on.
// This is what the relay stores and fans out to.
type Subscriber struct {
	SID      SessionID
	MemberID domain.MemberID
	Conn     SignalConnection
}
