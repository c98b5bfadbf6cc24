package app

import (
	"context"
	"sort"

	"github.com/dkeye/Rooms/internal/core"
	"github.com/dkeye/Rooms/internal/domain"
)

// RankAggregator computes standings from closed rounds.
type RankAggregator struct {
	store        core.Store
	allowPartial bool
}

// NewRankAggregator builds an aggregator; with allowPartial it also ranks rooms
// that are still running.
func NewRankAggregator(store core.Store, allowPartial bool) *RankAggregator {
	return &RankAggregator{store: store, allowPartial: allowPartial}
}

// ComputeRanks sums points per member, highest first, ties broken by join order.
// Every member that ever joined is ranked, even with nothing submitted.
func (a *RankAggregator) ComputeRanks(ctx context.Context, roomID domain.RoomID) ([]domain.RankEntry, error) {
	room, err := a.store.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room.Status != domain.RoomFinished && !a.allowPartial {
		return nil, domain.ErrRoomNotFinished
	}

	members, err := a.store.Members(ctx, roomID, false)
	if err != nil {
		return nil, err
	}
	subs, err := a.store.ClosedSubmissions(ctx, roomID)
	if err != nil {
		return nil, err
	}
	scores := make(map[domain.MemberID]int, len(members))
	for _, s := range subs {
		scores[s.MemberID] += s.Points
	}

	ranks := make([]domain.RankEntry, 0, len(members))
	for _, m := range members {
		ranks = append(ranks, domain.RankEntry{
			MemberID: m.ID,
			Name:     m.Name,
			Score:    scores[m.ID],
			JoinSeq:  m.JoinSeq,
		})
	}
	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].Score != ranks[j].Score {
			return ranks[i].Score > ranks[j].Score
		}
		return ranks[i].JoinSeq < ranks[j].JoinSeq
	})
	for i := range ranks {
		ranks[i].Position = i + 1
		if i > 0 && ranks[i].Score == ranks[i-1].Score {
			ranks[i].Position = ranks[i-1].Position
		}
	}
	return ranks, nil
}
