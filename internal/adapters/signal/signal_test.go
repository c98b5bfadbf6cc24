package signal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	router "github.com/dkeye/Rooms/internal/adapters/http"
	"github.com/dkeye/Rooms/internal/app"
	"github.com/dkeye/Rooms/internal/app/orch"
	"github.com/dkeye/Rooms/internal/config"
	"github.com/dkeye/Rooms/internal/domain"
	"github.com/dkeye/Rooms/internal/storage"
)

type fixture struct {
	srv  *httptest.Server
	orch *orch.Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.Open(config.DBConfig{Driver: "sqlite", DSN: ":memory:"}, false)
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))
	repo := storage.NewRepository(db)
	relay := app.NewRelay()
	locks := app.NewRoomLocks()
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomStore(repo, relay, locks, domain.Limits{Capacity: 4, MinMembers: 2, TotalRounds: 1}),
		Rounds:   app.NewRoundController(repo, relay, locks),
		Ranks:    app.NewRankAggregator(repo, false),
		Relay:    relay,
		Policy:   app.SimplePolicy{Action: app.KeepMembership},
	}
	cfg := &config.Config{
		Mode:   "test",
		Secret: "test-secret",
		Upload: config.UploadConfig{BaseURL: "/uploads", MaxBytes: 1 << 10},
		Relay: config.RelayConfig{
			ReadLimit:    4096,
			PingPeriod:   time.Minute,
			SendBuffer:   16,
			ChatLimit:    2,
			ChatInterval: time.Minute,
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	images := storage.NewImageStore(afero.NewMemMapFs(), cfg.Upload.BaseURL, cfg.Upload.MaxBytes)
	srv := httptest.NewServer(router.SetupRouter(ctx, cfg, o, images, nil))
	t.Cleanup(func() {
		cancel()
		srv.Close()
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return &fixture{srv: srv, orch: o}
}

// client is one browser: its cookie jar carries the client token to both the
// REST API and the socket.
type client struct {
	f    *fixture
	http *http.Client
	ws   *websocket.Dialer
}

func (f *fixture) client(t *testing.T) *client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &client{
		f:    f,
		http: &http.Client{Jar: jar, Timeout: 2 * time.Second},
		ws:   &websocket.Dialer{Jar: jar, HandshakeTimeout: 2 * time.Second},
	}
}

func (c *client) post(t *testing.T, path string, body any, out any) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := c.http.Post(c.f.srv.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Less(t, resp.StatusCode, 300)
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}

func (c *client) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(c.f.srv.URL, "http") + "/ws"
	ws, resp, err := c.ws.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

type message map[string]any

func send(t *testing.T, ws *websocket.Conn, msg any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(msg))
}

func read(t *testing.T, ws *websocket.Conn) message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m message
	require.NoError(t, ws.ReadJSON(&m))
	return m
}

func subscribe(t *testing.T, ws *websocket.Conn, roomID domain.RoomID, memberID domain.MemberID) message {
	t.Helper()
	send(t, ws, message{"type": "subscribe", "room": roomID, "member": memberID})
	state := read(t, ws)
	require.Equal(t, "room_state", state["type"], state)
	return state
}

type table struct {
	roomID  domain.RoomID
	members []domain.MemberID
	clients []*client
	conns   []*websocket.Conn
}

// seat creates a room with two members, each in its own browser, and
// subscribes a socket for each.
func seat(t *testing.T, f *fixture) table {
	t.Helper()
	a, b := f.client(t), f.client(t)
	var created struct {
		Room   domain.Room   `json:"room"`
		Member domain.Member `json:"member"`
	}
	a.post(t, "/rooms", map[string]any{"name": "a"}, &created)
	var joined domain.Member
	b.post(t, "/rooms/"+string(created.Room.ID)+"/join", map[string]any{"name": "b"}, &joined)

	tb := table{
		roomID:  created.Room.ID,
		members: []domain.MemberID{created.Member.ID, joined.ID},
		clients: []*client{a, b},
	}
	for i, m := range tb.members {
		ws := tb.clients[i].dial(t)
		assert.EqualValues(t, 2, subscribe(t, ws, tb.roomID, m)["count"])
		tb.conns = append(tb.conns, ws)
	}
	return tb
}

func TestPingAndWhoAmI(t *testing.T) {
	f := newFixture(t)
	ws := f.client(t).dial(t)

	before := time.Now().UnixMilli()
	send(t, ws, message{"type": "ping"})
	pong := read(t, ws)
	assert.Equal(t, "pong", pong["type"])
	assert.GreaterOrEqual(t, pong["at"], float64(before))

	send(t, ws, message{"type": "whoami"})
	who := read(t, ws)
	assert.Equal(t, "whoami", who["type"])
	assert.NotEmpty(t, who["sid"])
	assert.Empty(t, who["rooms"])
}

func TestProtocolErrors(t *testing.T) {
	f := newFixture(t)
	ws := f.client(t).dial(t)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{nope")))
	assert.Equal(t, "bad_payload", read(t, ws)["error"])

	send(t, ws, message{"type": "dance"})
	assert.Equal(t, "unknown_type", read(t, ws)["error"])

	send(t, ws, message{"type": "subscribe", "room": "missing", "member": "ghost"})
	assert.Equal(t, "member_not_found", read(t, ws)["error"])

	send(t, ws, message{"type": "chat", "text": "hi"})
	got := read(t, ws)
	assert.Equal(t, "error", got["type"])
	assert.Equal(t, "invalid_input", got["error"])
}

func TestChatReachesOthersOnly(t *testing.T) {
	f := newFixture(t)
	tb := seat(t, f)
	roomID, members, conns := tb.roomID, tb.members, tb.conns

	send(t, conns[0], message{"type": "chat", "text": "hello"})
	ev := read(t, conns[1])
	assert.Equal(t, "chat", ev["type"])
	assert.Equal(t, string(roomID), ev["room"])
	assert.Equal(t, string(members[0]), ev["from"])
	assert.Equal(t, "hello", ev["data"].(map[string]any)["text"])

	// The sender's next frame is the pong, not its own chat.
	send(t, conns[0], message{"type": "ping"})
	assert.Equal(t, "pong", read(t, conns[0])["type"])
}

func TestChatRateLimited(t *testing.T) {
	f := newFixture(t)
	conns := seat(t, f).conns

	send(t, conns[0], message{"type": "chat", "text": "1"})
	send(t, conns[0], message{"type": "chat", "text": "2"})
	send(t, conns[0], message{"type": "chat", "text": "3"})
	assert.Equal(t, "rate_limited", read(t, conns[0])["error"])

	assert.Equal(t, "1", read(t, conns[1])["data"].(map[string]any)["text"])
	assert.Equal(t, "2", read(t, conns[1])["data"].(map[string]any)["text"])
}

func TestRoomEventsAreRelayed(t *testing.T) {
	f := newFixture(t)
	tb := seat(t, f)
	roomID, conns := tb.roomID, tb.conns

	var round domain.Round
	tb.clients[0].post(t, "/rooms/"+string(roomID)+"/rounds", nil, &round)
	for _, ws := range conns {
		assert.Equal(t, "round_started", read(t, ws)["type"])
	}
}

func TestUnsubscribeAndDisconnect(t *testing.T) {
	f := newFixture(t)
	tb := seat(t, f)
	roomID, members, conns := tb.roomID, tb.members, tb.conns

	send(t, conns[1], message{"type": "unsubscribe"})
	got := read(t, conns[1])
	assert.Equal(t, "unsubscribed", got["type"])
	assert.Equal(t, string(roomID), got["room"])
	assert.Equal(t, 1, f.orch.Relay.SubscriberCount(roomID))

	require.NoError(t, conns[0].Close())
	require.Eventually(t, func() bool {
		return f.orch.Relay.SubscriberCount(roomID) == 0 && f.orch.Registry.Count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Dropping the socket does not drop the member.
	_, err := f.orch.Rooms.PresentMember(context.Background(), roomID, members[0])
	assert.NoError(t, err)
}

func TestSubscribeAsAnotherBrowsersMember(t *testing.T) {
	f := newFixture(t)
	tb := seat(t, f)

	ws := f.client(t).dial(t)
	send(t, ws, message{"type": "subscribe", "room": tb.roomID, "member": tb.members[1]})
	got := read(t, ws)
	assert.Equal(t, "error", got["type"])
	assert.Equal(t, "member_not_found", got["error"])
	assert.Equal(t, 2, f.orch.Relay.SubscriberCount(tb.roomID))
}

func TestLeaveOverHTTPStopsSocketChat(t *testing.T) {
	f := newFixture(t)
	tb := seat(t, f)

	tb.clients[1].post(t, "/rooms/"+string(tb.roomID)+"/leave", map[string]any{"member_id": tb.members[1]}, nil)
	assert.Equal(t, "left", read(t, tb.conns[0])["type"])
	assert.Equal(t, "left", read(t, tb.conns[1])["type"])

	send(t, tb.conns[1], message{"type": "chat", "text": "ghost"})
	got := read(t, tb.conns[1])
	assert.Equal(t, "error", got["type"])
	assert.Equal(t, "invalid_input", got["error"])
	assert.Equal(t, 1, f.orch.Relay.SubscriberCount(tb.roomID))
}

func TestReconnectResetsChatLimit(t *testing.T) {
	f := newFixture(t)
	tb := seat(t, f)

	send(t, tb.conns[0], message{"type": "chat", "text": "1"})
	send(t, tb.conns[0], message{"type": "chat", "text": "2"})
	for range 2 {
		read(t, tb.conns[1])
	}

	require.NoError(t, tb.conns[0].Close())
	require.Eventually(t, func() bool {
		return f.orch.Relay.SubscriberCount(tb.roomID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	ws := tb.clients[0].dial(t)
	subscribe(t, ws, tb.roomID, tb.members[0])
	send(t, ws, message{"type": "chat", "text": "back"})
	assert.Equal(t, "back", read(t, tb.conns[1])["data"].(map[string]any)["text"])
}
