package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Rooms/internal/core"
	"github.com/dkeye/Rooms/internal/domain"
)

// CreateRoomInput carries the creator and optional limits; zero limits fall back
// to the store defaults.
type CreateRoomInput struct {
	CreatorName string
	UserID      domain.UserID
	Limits      domain.Limits
}

type MemberInput struct {
	Name   string
	UserID domain.UserID
}

// RoomStore owns room creation and membership.
type RoomStore struct {
	store    core.Store
	events   core.EventSink
	locks    *RoomLocks
	defaults domain.Limits
}

func NewRoomStore(store core.Store, events core.EventSink, locks *RoomLocks, defaults domain.Limits) *RoomStore {
	return &RoomStore{store: store, events: events, locks: locks, defaults: defaults}
}

func (s *RoomStore) limits(in domain.Limits) (domain.Limits, error) {
	if in.Capacity == 0 {
		in.Capacity = s.defaults.Capacity
	}
	if in.MinMembers == 0 {
		in.MinMembers = s.defaults.MinMembers
	}
	if in.TotalRounds == 0 {
		in.TotalRounds = s.defaults.TotalRounds
	}
	if in.Capacity < 1 || in.MinMembers < 1 || in.MinMembers > in.Capacity || in.TotalRounds < 1 {
		return in, fmt.Errorf("%w: capacity=%d min_members=%d rounds=%d",
			domain.ErrInvalidInput, in.Capacity, in.MinMembers, in.TotalRounds)
	}
	return in, nil
}

// CreateRoom opens a new room with the creator as its first member.
func (s *RoomStore) CreateRoom(ctx context.Context, in CreateRoomInput) (*domain.Room, *domain.Member, error) {
	limits, err := s.limits(in.Limits)
	if err != nil {
		return nil, nil, err
	}
	room := domain.NewRoom(limits)
	creator, err := domain.NewMember(room.ID, in.UserID, in.CreatorName)
	if err != nil {
		return nil, nil, domain.Invalid(err)
	}
	creator.JoinSeq = 1
	room.CreatorID = creator.ID

	if err := s.leaveOtherRooms(ctx, in.UserID, room.ID); err != nil {
		return nil, nil, err
	}

	err = s.store.InTx(ctx, func(tx core.Store) error {
		if err := tx.CreateRoom(ctx, room); err != nil {
			return err
		}
		return tx.AddMember(ctx, creator)
	})
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("module", "app.rooms").
		Str("room", string(room.ID)).
		Str("creator", string(creator.ID)).
		Int("capacity", room.Capacity).
		Msg("room created")
	return room, creator, nil
}

// JoinRoom appends a member to an open room that still has a free seat.
func (s *RoomStore) JoinRoom(ctx context.Context, roomID domain.RoomID, in MemberInput) (*domain.Member, error) {
	member, err := domain.NewMember(roomID, in.UserID, in.Name)
	if err != nil {
		return nil, domain.Invalid(err)
	}
	// Only give up the current room once this join is known to succeed. The
	// locked transaction below checks again after the leave.
	if in.UserID != "" {
		if err := s.checkJoinable(ctx, roomID, in.UserID); err != nil {
			return nil, err
		}
		if err := s.leaveOtherRooms(ctx, in.UserID, roomID); err != nil {
			return nil, err
		}
	}

	unlock := s.locks.Lock(roomID)
	defer unlock()

	var (
		count    int
		existing bool
	)
	err = s.store.InTx(ctx, func(tx core.Store) error {
		room, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		if room.Status != domain.RoomOpen {
			return domain.ErrRoomClosed
		}
		present, err := tx.Members(ctx, roomID, true)
		if err != nil {
			return err
		}
		if in.UserID != "" {
			for _, m := range present {
				if m.UserID == in.UserID {
					member, existing = m, true
					count = len(present)
					return nil
				}
			}
		}
		if len(present) >= room.Capacity {
			return domain.ErrRoomFull
		}
		if member.JoinSeq, err = tx.NextJoinSeq(ctx, roomID); err != nil {
			return err
		}
		count = len(present) + 1
		return tx.AddMember(ctx, member)
	})
	if err != nil {
		return nil, err
	}
	if existing {
		return member, nil
	}

	log.Info().
		Str("module", "app.rooms").
		Str("room", string(roomID)).
		Str("member", string(member.ID)).
		Int("count", count).
		Msg("member joined")
	s.events.Publish(ctx, domain.NewEvent(domain.EventJoined, roomID, map[string]any{
		"member": member,
		"count":  count,
	}))
	return member, nil
}

// LeaveRoom is idempotent: an unknown or already departed member is a no-op.
// Leaving an in-progress room re-evaluates the open round.
func (s *RoomStore) LeaveRoom(ctx context.Context, roomID domain.RoomID, memberID domain.MemberID) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	var (
		left   bool
		events []domain.Event
	)
	err := s.store.InTx(ctx, func(tx core.Store) error {
		room, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		member, err := tx.GetMember(ctx, memberID)
		if errors.Is(err, domain.ErrMemberNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if member.RoomID != roomID || !member.Present() {
			return nil
		}
		if err := tx.MarkLeft(ctx, memberID, time.Now()); err != nil {
			return err
		}
		left = true
		ev := domain.NewEvent(domain.EventLeft, roomID, map[string]any{
			"member_id": memberID,
		})
		ev.From = memberID
		events = append(events, ev)

		if room.Status != domain.RoomInProgress {
			return nil
		}
		round, err := tx.LatestRound(ctx, roomID)
		if err != nil {
			return err
		}
		closed, err := closeIfComplete(ctx, tx, room, round)
		events = append(events, closed...)
		return err
	})
	if err != nil {
		return err
	}
	if left {
		log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Str("member", string(memberID)).Msg("member left")
	}
	publishAll(ctx, s.events, events)
	return nil
}

// checkJoinable reports whether uid could join roomID right now: the room
// exists and is open and either has a free seat or already seats uid.
func (s *RoomStore) checkJoinable(ctx context.Context, roomID domain.RoomID, uid domain.UserID) error {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.Status != domain.RoomOpen {
		return domain.ErrRoomClosed
	}
	present, err := s.store.Members(ctx, roomID, true)
	if err != nil {
		return err
	}
	for _, m := range present {
		if m.UserID == uid {
			return nil
		}
	}
	if len(present) >= room.Capacity {
		return domain.ErrRoomFull
	}
	return nil
}

// leaveOtherRooms keeps a user present in at most one unfinished room.
func (s *RoomStore) leaveOtherRooms(ctx context.Context, uid domain.UserID, keep domain.RoomID) error {
	if uid == "" {
		return nil
	}
	active, err := s.store.ActiveMemberships(ctx, uid)
	if err != nil {
		return err
	}
	for _, m := range active {
		if m.RoomID == keep {
			continue
		}
		log.Info().Str("module", "app.rooms").Str("user", string(uid)).Str("from_room", string(m.RoomID)).Msg("leaving previous room")
		if err := s.LeaveRoom(ctx, m.RoomID, m.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *RoomStore) GetRoom(ctx context.Context, roomID domain.RoomID) (*core.RoomView, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	members, err := s.store.Members(ctx, roomID, true)
	if err != nil {
		return nil, err
	}
	return &core.RoomView{Room: room, Members: members}, nil
}

func (s *RoomStore) ListRooms(ctx context.Context, status domain.RoomStatus) ([]*domain.Room, error) {
	return s.store.ListRooms(ctx, status)
}

// PresentMember returns the member if it is currently in roomID.
func (s *RoomStore) PresentMember(ctx context.Context, roomID domain.RoomID, memberID domain.MemberID) (*domain.Member, error) {
	m, err := s.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if m.RoomID != roomID || !m.Present() {
		return nil, domain.ErrMemberNotFound
	}
	return m, nil
}

func publishAll(ctx context.Context, sink core.EventSink, events []domain.Event) {
	for _, ev := range events {
		sink.Publish(ctx, ev)
	}
}
