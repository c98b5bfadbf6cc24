package app

import (
	"fmt"

	"github.com/dkeye/Rooms/internal/domain"
)

type DisconnectAction int

const (
	KeepMembership DisconnectAction = iota
	LeaveRoom
)

func (a DisconnectAction) String() string {
	switch a {
	case LeaveRoom:
		return "leave"
	default:
		return "keep"
	}
}

// ParseDisconnectAction reads the relay.disconnect_policy setting.
func ParseDisconnectAction(s string) (DisconnectAction, error) {
	switch s {
	case "", "keep":
		return KeepMembership, nil
	case "leave":
		return LeaveRoom, nil
	}
	return KeepMembership, fmt.Errorf("unknown disconnect policy %q", s)
}

// Policy decides what a dropped socket means for room membership.
type Policy interface {
	OnDisconnect(roomID domain.RoomID, memberID domain.MemberID) DisconnectAction
}

type SimplePolicy struct {
	Action DisconnectAction
}

func (p SimplePolicy) OnDisconnect(domain.RoomID, domain.MemberID) DisconnectAction {
	return p.Action
}
