package orch_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Rooms/internal/app"
	"github.com/dkeye/Rooms/internal/app/orch"
	"github.com/dkeye/Rooms/internal/config"
	"github.com/dkeye/Rooms/internal/core"
	"github.com/dkeye/Rooms/internal/domain"
	"github.com/dkeye/Rooms/internal/storage"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) kinds(t *testing.T) []domain.EventKind {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.EventKind
	for _, f := range c.frames {
		var ev domain.Event
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev.Kind)
	}
	return out
}

func newOrch(t *testing.T, action app.DisconnectAction) *orch.Orchestrator {
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
	relay := app.NewRelay()
	locks := app.NewRoomLocks()
	limits := domain.Limits{Capacity: 4, MinMembers: 2, TotalRounds: 1}
	return &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomStore(repo, relay, locks, limits),
		Rounds:   app.NewRoundController(repo, relay, locks),
		Ranks:    app.NewRankAggregator(repo, false),
		Relay:    relay,
		Policy:   app.SimplePolicy{Action: action},
	}
}

// seat creates a room with two members and connects a socket for each.
func seat(t *testing.T, o *orch.Orchestrator) (domain.RoomID, []*domain.Member, []*fakeConn) {
	t.Helper()
	ctx := context.Background()
	room, creator, err := o.Rooms.CreateRoom(ctx, app.CreateRoomInput{CreatorName: "a", UserID: "u-a"})
	require.NoError(t, err)
	joined, err := o.Rooms.JoinRoom(ctx, room.ID, app.MemberInput{Name: "b", UserID: "u-b"})
	require.NoError(t, err)

	members := []*domain.Member{creator, joined}
	conns := []*fakeConn{{}, {}}
	for i, m := range members {
		sid := core.SessionID("s" + string(rune('1'+i)))
		o.Registry.BindSignal(sid, m.UserID, conns[i], func() {})
		view, err := o.Subscribe(ctx, sid, room.ID, m.ID)
		require.NoError(t, err)
		assert.Equal(t, room.ID, view.Room.ID)
	}
	return room.ID, members, conns
}

func TestDisconnectKeepsMembership(t *testing.T) {
	o := newOrch(t, app.KeepMembership)
	ctx := context.Background()
	roomID, ms, conns := seat(t, o)

	o.OnDisconnect(ctx, "s2")

	assert.Equal(t, 1, o.Relay.SubscriberCount(roomID))
	assert.Equal(t, 1, o.Registry.Count())
	_, err := o.Rooms.PresentMember(ctx, roomID, ms[1].ID)
	assert.NoError(t, err, "member stays in the room after the socket drops")
	assert.Empty(t, conns[0].kinds(t))

	// The member can come back on a new socket.
	o.Registry.BindSignal("s3", ms[1].UserID, &fakeConn{}, func() {})
	_, err = o.Subscribe(ctx, "s3", roomID, ms[1].ID)
	assert.NoError(t, err)
}

func TestDisconnectLeavePolicy(t *testing.T) {
	o := newOrch(t, app.LeaveRoom)
	ctx := context.Background()
	roomID, ms, conns := seat(t, o)

	o.OnDisconnect(ctx, "s2")

	_, err := o.Rooms.PresentMember(ctx, roomID, ms[1].ID)
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
	assert.Equal(t, []domain.EventKind{domain.EventLeft}, conns[0].kinds(t))
}

func TestSubscribeRejects(t *testing.T) {
	o := newOrch(t, app.KeepMembership)
	ctx := context.Background()
	roomID, ms, _ := seat(t, o)

	_, err := o.Subscribe(ctx, "unknown", roomID, ms[0].ID)
	assert.ErrorIs(t, err, orch.ErrUnknownSocket)

	o.Registry.BindSignal("s9", "", &fakeConn{}, func() {})
	_, err = o.Subscribe(ctx, "s9", roomID, "stranger")
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)

	require.NoError(t, o.Rooms.LeaveRoom(ctx, roomID, ms[1].ID))
	_, err = o.Subscribe(ctx, "s9", roomID, ms[1].ID)
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
}

func TestChat(t *testing.T) {
	o := newOrch(t, app.KeepMembership)
	roomID, _, conns := seat(t, o)

	res, err := o.Chat("s1", "", "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, 1, res.SendTo)
	assert.Empty(t, conns[0].kinds(t), "sender does not get its own message")
	assert.Equal(t, []domain.EventKind{domain.EventChat}, conns[1].kinds(t))

	var ev struct {
		Room domain.RoomID     `json:"room"`
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(conns[1].frames[0], &ev))
	assert.Equal(t, roomID, ev.Room)
	assert.Equal(t, "hello", ev.Data["text"])
}

func TestChatRejects(t *testing.T) {
	o := newOrch(t, app.KeepMembership)
	ctx := context.Background()
	roomID, _, _ := seat(t, o)

	_, err := o.Chat("s1", "", " ")
	assert.ErrorIs(t, err, orch.ErrEmptyChat)
	_, err = o.Chat("s1", "", strings.Repeat("x", orch.MaxChatLen+1))
	assert.ErrorIs(t, err, orch.ErrChatTooLong)
	_, err = o.Chat("nobody", "", "hi")
	assert.ErrorIs(t, err, orch.ErrNotSubscribed)
	_, err = o.Chat("s1", "other-room", "hi")
	assert.ErrorIs(t, err, orch.ErrNotSubscribed)

	// A socket listening to two rooms must say which one.
	room2, creator2, err := o.Rooms.CreateRoom(ctx, app.CreateRoomInput{CreatorName: "z"})
	require.NoError(t, err)
	_, err = o.Subscribe(ctx, "s1", room2.ID, creator2.ID)
	require.NoError(t, err)
	_, err = o.Chat("s1", "", "hi")
	assert.ErrorIs(t, err, orch.ErrAmbiguousRoom)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = o.Chat("s1", roomID, "hi")
	assert.NoError(t, err)
}

func TestUnsubscribe(t *testing.T) {
	o := newOrch(t, app.KeepMembership)
	ctx := context.Background()
	roomID, ms, conns := seat(t, o)

	require.NoError(t, o.Unsubscribe(ctx, "s2", "", false))
	assert.Equal(t, 1, o.Relay.SubscriberCount(roomID))
	_, err := o.Rooms.PresentMember(ctx, roomID, ms[1].ID)
	assert.NoError(t, err)

	assert.ErrorIs(t, o.Unsubscribe(ctx, "s2", "", false), orch.ErrNotSubscribed)

	require.NoError(t, o.Unsubscribe(ctx, "s1", roomID, true))
	_, err = o.Rooms.PresentMember(ctx, roomID, ms[0].ID)
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
	assert.Empty(t, conns[1].kinds(t), "s2 no longer listens to the room")
}

func TestSubscribeForeignMember(t *testing.T) {
	o := newOrch(t, app.KeepMembership)
	ctx := context.Background()
	roomID, ms, _ := seat(t, o)

	o.Registry.BindSignal("s9", "u-mallory", &fakeConn{}, func() {})
	_, err := o.Subscribe(ctx, "s9", roomID, ms[1].ID)
	assert.ErrorIs(t, err, domain.ErrMemberNotFound)
	assert.Equal(t, 2, o.Relay.SubscriberCount(roomID))
	assert.Empty(t, o.Relay.Subscriptions("s9"))
}

func TestLeaveDropsMemberSocket(t *testing.T) {
	o := newOrch(t, app.KeepMembership)
	ctx := context.Background()
	roomID, ms, conns := seat(t, o)

	require.NoError(t, o.Rooms.LeaveRoom(ctx, roomID, ms[1].ID))

	assert.Equal(t, []domain.EventKind{domain.EventLeft}, conns[1].kinds(t), "the leaver still hears its own leave")
	assert.Equal(t, 1, o.Relay.SubscriberCount(roomID))
	_, err := o.Chat("s2", "", "still here?")
	assert.ErrorIs(t, err, orch.ErrNotSubscribed)

	res, err := o.Chat("s1", "", "bye")
	require.NoError(t, err)
	assert.Zero(t, res.SendTo)
}

func TestOnDisconnectReportsSubscriptions(t *testing.T) {
	o := newOrch(t, app.KeepMembership)
	roomID, ms, _ := seat(t, o)

	subs := o.OnDisconnect(context.Background(), "s1")
	require.Len(t, subs, 1)
	assert.Equal(t, roomID, subs[0].RoomID)
	assert.Equal(t, ms[0].ID, subs[0].MemberID)
	assert.Empty(t, o.OnDisconnect(context.Background(), "s1"))
}
