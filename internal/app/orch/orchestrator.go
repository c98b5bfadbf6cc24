package orch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Rooms/internal/app"
	"github.com/dkeye/Rooms/internal/core"
	"github.com/dkeye/Rooms/internal/domain"
)

const MaxChatLen = 500

var (
	ErrNotSubscribed = fmt.Errorf("%w: socket is not subscribed to that room", domain.ErrInvalidInput)
	ErrAmbiguousRoom = fmt.Errorf("%w: socket listens to several rooms, name one", domain.ErrInvalidInput)
	ErrUnknownSocket = fmt.Errorf("%w: socket session is not registered", domain.ErrInvalidInput)
	ErrEmptyChat     = fmt.Errorf("%w: empty chat message", domain.ErrInvalidInput)
	ErrChatTooLong   = fmt.Errorf("%w: chat message too long", domain.ErrInvalidInput)
)

// Orchestrator glues the game services to the socket relay.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomStore
	Rounds   *app.RoundController
	Ranks    *app.RankAggregator
	Relay    *app.Relay
	Policy   app.Policy
}

// ResolveRoom picks which subscription of sid a message is meant for. An empty
// roomID is fine while the socket listens to exactly one room.
func (o *Orchestrator) ResolveRoom(sid core.SessionID, roomID domain.RoomID) (app.Subscription, error) {
	subs := o.Relay.Subscriptions(sid)
	if roomID == "" {
		switch len(subs) {
		case 0:
			return app.Subscription{}, ErrNotSubscribed
		case 1:
			return subs[0], nil
		default:
			return app.Subscription{}, ErrAmbiguousRoom
		}
	}
	for _, s := range subs {
		if s.RoomID == roomID {
			return s, nil
		}
	}
	return app.Subscription{}, ErrNotSubscribed
}

// Chat relays a member's message to every other socket of the room.
func (o *Orchestrator) Chat(sid core.SessionID, roomID domain.RoomID, text string) (core.PublishResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return core.PublishResult{}, ErrEmptyChat
	}
	if len(text) > MaxChatLen {
		return core.PublishResult{}, ErrChatTooLong
	}
	sub, err := o.ResolveRoom(sid, roomID)
	if err != nil {
		return core.PublishResult{}, err
	}
	ev := domain.Event{
		Kind:   domain.EventChat,
		RoomID: sub.RoomID,
		From:   sub.MemberID,
		Data:   map[string]string{"text": text},
		At:     time.Now(),
	}
	return o.Relay.Broadcast(sub.RoomID, ev, sid), nil
}

// OnDisconnect unsubscribes the socket everywhere and reports what it listened
// to; membership only changes when the policy asks for it.
func (o *Orchestrator) OnDisconnect(ctx context.Context, sid core.SessionID) []app.Subscription {
	subs := o.Relay.Disconnect(sid)
	o.Registry.Unbind(sid)
	if o.Policy == nil {
		return subs
	}
	for _, s := range subs {
		switch o.Policy.OnDisconnect(s.RoomID, s.MemberID) {
		case app.LeaveRoom:
			if err := o.Rooms.LeaveRoom(ctx, s.RoomID, s.MemberID); err != nil {
				logger(sid).Error().Err(err).Str("room", string(s.RoomID)).Msg("leave on disconnect")
			}
		case app.KeepMembership:
		}
	}
	return subs
}
