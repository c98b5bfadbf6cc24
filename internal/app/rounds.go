package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Rooms/internal/core"
	"github.com/dkeye/Rooms/internal/domain"
)

// RoundController drives a room through Open -> InProgress(1..N) -> Finished.
type RoundController struct {
	store  core.Store
	events core.EventSink
	locks  *RoomLocks
}

func NewRoundController(store core.Store, events core.EventSink, locks *RoomLocks) *RoundController {
	return &RoundController{store: store, events: events, locks: locks}
}

// StartRound opens round CurrentRound+1. An open room needs MinMembers present
// members, an in-progress room needs its current round closed.
func (c *RoundController) StartRound(ctx context.Context, roomID domain.RoomID) (*domain.Round, error) {
	unlock := c.locks.Lock(roomID)
	defer unlock()

	var round *domain.Round
	err := c.store.InTx(ctx, func(tx core.Store) error {
		room, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		switch room.Status {
		case domain.RoomOpen:
			present, err := tx.Members(ctx, roomID, true)
			if err != nil {
				return err
			}
			if len(present) < room.MinMembers {
				return domain.ErrInvalidTransition
			}
			room.Status = domain.RoomInProgress
		case domain.RoomInProgress:
			prev, err := tx.LatestRound(ctx, roomID)
			if err != nil {
				return err
			}
			if !prev.Closed || room.CurrentRound >= room.TotalRounds {
				return domain.ErrInvalidTransition
			}
		default:
			return domain.ErrInvalidTransition
		}

		room.CurrentRound++
		round = domain.NewRound(roomID, room.CurrentRound)
		if err := tx.CreateRound(ctx, round); err != nil {
			return err
		}
		return tx.UpdateRoom(ctx, room)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("module", "app.rounds").Str("room", string(roomID)).Int("round", round.Number).Msg("round started")
	c.events.Publish(ctx, domain.NewEvent(domain.EventRoundStarted, roomID, round))
	return round, nil
}

// Submit records one member's payload and closes the round once every present
// member has handed something in.
func (c *RoundController) Submit(ctx context.Context, roundID domain.RoundID, memberID domain.MemberID, p domain.Payload) (*domain.Submission, error) {
	if p.ImageURL == "" && p.Answer == "" {
		return nil, domain.Invalid(errEmptyPayload)
	}
	if p.Points < 0 {
		return nil, domain.Invalid(errNegativePoints)
	}

	// The room is only known after a read; the locked transaction re-reads the round.
	round, err := c.store.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	roomID := round.RoomID
	unlock := c.locks.Lock(roomID)
	defer unlock()

	var (
		sub    *domain.Submission
		events []domain.Event
	)
	err = c.store.InTx(ctx, func(tx core.Store) error {
		round, existing, err := checkSubmit(ctx, tx, roundID, memberID)
		if err != nil {
			return err
		}

		sub = domain.NewSubmission(roundID, memberID, p)
		if err := tx.AddSubmission(ctx, sub); err != nil {
			return err
		}
		events = append(events, domain.Event{
			Kind:   domain.EventSubmitted,
			RoomID: roomID,
			From:   memberID,
			Data: map[string]any{
				"round_id": roundID,
				"count":    len(existing) + 1,
			},
			At: time.Now(),
		})

		room, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		closed, err := closeIfComplete(ctx, tx, room, round)
		events = append(events, closed...)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("module", "app.rounds").Str("round", string(roundID)).Str("member", string(memberID)).Msg("submission accepted")
	publishAll(ctx, c.events, events)
	return sub, nil
}

// CheckSubmit tells whether memberID may still hand something in for roundID.
// Callers use it to refuse early, before storing an upload; Submit checks again.
func (c *RoundController) CheckSubmit(ctx context.Context, roundID domain.RoundID, memberID domain.MemberID, points int) error {
	if points < 0 {
		return domain.Invalid(errNegativePoints)
	}
	_, _, err := checkSubmit(ctx, c.store, roundID, memberID)
	return err
}

// checkSubmit returns the open round and its submissions so far, or the reason
// memberID cannot submit.
func checkSubmit(ctx context.Context, tx core.Store, roundID domain.RoundID, memberID domain.MemberID) (*domain.Round, []*domain.Submission, error) {
	round, err := tx.GetRound(ctx, roundID)
	if err != nil {
		return nil, nil, err
	}
	if round.Closed {
		return nil, nil, domain.ErrRoundClosed
	}
	member, err := tx.GetMember(ctx, memberID)
	if err != nil {
		return nil, nil, err
	}
	if member.RoomID != round.RoomID || !member.Present() {
		return nil, nil, domain.ErrMemberNotFound
	}
	existing, err := tx.Submissions(ctx, roundID)
	if err != nil {
		return nil, nil, err
	}
	for _, s := range existing {
		if s.MemberID == memberID {
			return nil, nil, domain.ErrDuplicateSubmission
		}
	}
	return round, existing, nil
}

// CloseRound is the hook for an external timeout: it closes the round with
// whatever has been submitted.
func (c *RoundController) CloseRound(ctx context.Context, roundID domain.RoundID) (*domain.Round, error) {
	round, err := c.store.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	roomID := round.RoomID
	unlock := c.locks.Lock(roomID)
	defer unlock()

	var events []domain.Event
	err = c.store.InTx(ctx, func(tx core.Store) error {
		if round, err = tx.GetRound(ctx, roundID); err != nil {
			return err
		}
		if round.Closed {
			return domain.ErrRoundClosed
		}
		room, err := tx.GetRoom(ctx, roomID)
		if err != nil {
			return err
		}
		round.ForceClosed = true
		events, err = closeRound(ctx, tx, room, round)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "app.rounds").Str("round", string(roundID)).Msg("round force-closed")
	publishAll(ctx, c.events, events)
	return round, nil
}

func (c *RoundController) GetRound(ctx context.Context, roundID domain.RoundID) (*core.RoundView, error) {
	round, err := c.store.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	subs, err := c.store.Submissions(ctx, roundID)
	if err != nil {
		return nil, err
	}
	return &core.RoundView{Round: round, Submissions: subs}, nil
}

// closeIfComplete is the guarded transition run after every submit and leave:
// the round closes when no present member is still pending.
func closeIfComplete(ctx context.Context, tx core.Store, room *domain.Room, round *domain.Round) ([]domain.Event, error) {
	if round.Closed || round.RoomID != room.ID {
		return nil, nil
	}
	present, err := tx.Members(ctx, room.ID, true)
	if err != nil {
		return nil, err
	}
	subs, err := tx.Submissions(ctx, round.ID)
	if err != nil {
		return nil, err
	}
	done := make(map[domain.MemberID]struct{}, len(subs))
	for _, s := range subs {
		done[s.MemberID] = struct{}{}
	}
	for _, m := range present {
		if _, ok := done[m.ID]; !ok {
			return nil, nil
		}
	}
	return closeRound(ctx, tx, room, round)
}

func closeRound(ctx context.Context, tx core.Store, room *domain.Room, round *domain.Round) ([]domain.Event, error) {
	now := time.Now()
	round.Closed = true
	round.ClosedAt = &now
	if err := tx.UpdateRound(ctx, round); err != nil {
		return nil, err
	}
	events := []domain.Event{domain.NewEvent(domain.EventRoundClosed, room.ID, round)}

	if round.Number >= room.TotalRounds {
		room.Status = domain.RoomFinished
		if err := tx.UpdateRoom(ctx, room); err != nil {
			return nil, err
		}
		events = append(events, domain.NewEvent(domain.EventFinished, room.ID, room))
		log.Info().Str("module", "app.rounds").Str("room", string(room.ID)).Msg("room finished")
	}
	return events, nil
}
