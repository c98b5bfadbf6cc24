package orch

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Rooms/internal/core"
	"github.com/dkeye/Rooms/internal/domain"
)

func logger(sid core.SessionID) *zerolog.Logger {
	l := log.With().Str("module", "app.orch").Str("sid", string(sid)).Logger()
	return &l
}

// Subscribe attaches the socket to a room channel as one of its present members.
// It never changes membership itself.
func (o *Orchestrator) Subscribe(ctx context.Context, sid core.SessionID, roomID domain.RoomID, memberID domain.MemberID) (*core.RoomView, error) {
	conn, ok := o.Registry.GetSession(sid)
	if !ok {
		return nil, ErrUnknownSocket
	}
	member, err := o.Rooms.PresentMember(ctx, roomID, memberID)
	if err != nil {
		return nil, err
	}
	// Members created by a browser belong to its client token.
	if member.UserID != "" && member.UserID != o.Registry.UserOf(sid) {
		logger(sid).Warn().Str("room", string(roomID)).Str("member", string(memberID)).Msg("subscribe as foreign member")
		return nil, domain.ErrMemberNotFound
	}
	o.Relay.Subscribe(roomID, core.Subscriber{SID: sid, MemberID: memberID, Conn: conn})

	// A leave racing with this subscribe would otherwise leave the socket listening.
	view, err := o.Rooms.GetRoom(ctx, roomID)
	if err == nil && !seated(view, memberID) {
		err = domain.ErrMemberNotFound
	}
	if err != nil {
		o.Relay.Unsubscribe(roomID, sid)
		return nil, err
	}
	logger(sid).Info().Str("room", string(roomID)).Str("member", string(memberID)).Msg("socket joined room channel")
	return view, nil
}

// Unsubscribe leaves the room channel; with leaveRoom the member also leaves the room.
func (o *Orchestrator) Unsubscribe(ctx context.Context, sid core.SessionID, roomID domain.RoomID, leaveRoom bool) error {
	sub, err := o.ResolveRoom(sid, roomID)
	if err != nil {
		return err
	}
	o.Relay.Unsubscribe(sub.RoomID, sid)
	if !leaveRoom {
		return nil
	}
	return o.Rooms.LeaveRoom(ctx, sub.RoomID, sub.MemberID)
}

func seated(view *core.RoomView, memberID domain.MemberID) bool {
	for _, m := range view.Members {
		if m.ID == memberID {
			return true
		}
	}
	return false
}
