package domain

import "time"

type EventKind string

const (
	EventJoined       EventKind = "joined"
	EventLeft         EventKind = "left"
	EventRoundStarted EventKind = "round_started"
	EventSubmitted    EventKind = "submitted"
	EventRoundClosed  EventKind = "round_closed"
	EventFinished     EventKind = "finished"
	EventChat         EventKind = "chat"
)

// Event is what the chat relay fans out to a room's sockets.
type Event struct {
	Kind   EventKind `json:"type"`
	RoomID RoomID    `json:"room"`
	From   MemberID  `json:"from,omitempty"`
	Data   any       `json:"data,omitempty"`
	At     time.Time `json:"at"`
}

func NewEvent(kind EventKind, roomID RoomID, data any) Event {
	return Event{Kind: kind, RoomID: roomID, Data: data, At: time.Now()}
}
