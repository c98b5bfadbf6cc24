package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Rooms/internal/app"
	"github.com/dkeye/Rooms/internal/config"
	"github.com/dkeye/Rooms/internal/core"
	"github.com/dkeye/Rooms/internal/domain"
	"github.com/dkeye/Rooms/internal/storage"
)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) count(kind domain.EventKind) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type env struct {
	repo   *storage.Repository
	events *recorder
	rooms  *app.RoomStore
	rounds *app.RoundController
	ranks  *app.RankAggregator
}

var defaultLimits = domain.Limits{Capacity: 4, MinMembers: 2, TotalRounds: 2}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := storage.Open(config.DBConfig{Driver: "sqlite", DSN: ":memory:"}, false)
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	repo := storage.NewRepository(db)
	rec := &recorder{}
	locks := app.NewRoomLocks()
	return &env{
		repo:   repo,
		events: rec,
		rooms:  app.NewRoomStore(repo, rec, locks, defaultLimits),
		rounds: app.NewRoundController(repo, rec, locks),
		ranks:  app.NewRankAggregator(repo, false),
	}
}

// room creates a room owned by the first name and joins the rest.
func (e *env) room(t *testing.T, limits domain.Limits, names ...string) (*domain.Room, []*domain.Member) {
	t.Helper()
	ctx := context.Background()
	room, creator, err := e.rooms.CreateRoom(ctx, app.CreateRoomInput{
		CreatorName: names[0],
		UserID:      domain.UserID("u-" + names[0]),
		Limits:      limits,
	})
	require.NoError(t, err)
	members := []*domain.Member{creator}
	for _, n := range names[1:] {
		m, err := e.rooms.JoinRoom(ctx, room.ID, app.MemberInput{Name: n, UserID: domain.UserID("u-" + n)})
		require.NoError(t, err)
		members = append(members, m)
	}
	return room, members
}

func points(n int) domain.Payload {
	return domain.Payload{Answer: "a", Points: n}
}

var errFull = errors.New("buffer full")

// fakeConn stands in for a websocket in relay tests.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed {
		return errFull
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) events(t *testing.T) []domain.Event {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Event, 0, len(c.frames))
	for _, f := range c.frames {
		var ev domain.Event
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev)
	}
	return out
}
