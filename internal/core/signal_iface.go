package core

import (
	"context"

	"github.com/dkeye/Rooms/internal/domain"
)

// Frame is a raw payload written to a socket.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// EventSink receives every state change of rooms and rounds.
type EventSink interface {
	Publish(ctx context.Context, ev domain.Event)
}

// PublishResult reports delivery stats to the caller.
type PublishResult struct {
	SendTo  int
	Dropped int
}
