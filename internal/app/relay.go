package app

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Rooms/internal/core"
	"github.com/dkeye/Rooms/internal/domain"
)

// Subscription is one room a socket listens to, and as which member.
type Subscription struct {
	RoomID   domain.RoomID   `json:"room"`
	MemberID domain.MemberID `json:"member"`
}

// Relay fans events out to every socket subscribed to a room.
// Delivery is best-effort: a failed send is dropped, never retried.
type Relay struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]map[core.SessionID]core.Subscriber
	bySID map[core.SessionID]map[domain.RoomID]domain.MemberID
}

func NewRelay() *Relay {
	return &Relay{
		rooms: make(map[domain.RoomID]map[core.SessionID]core.Subscriber),
		bySID: make(map[core.SessionID]map[domain.RoomID]domain.MemberID),
	}
}

func (r *Relay) Subscribe(roomID domain.RoomID, sub core.Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs, ok := r.rooms[roomID]
	if !ok {
		subs = make(map[core.SessionID]core.Subscriber)
		r.rooms[roomID] = subs
	}
	subs[sub.SID] = sub
	joined, ok := r.bySID[sub.SID]
	if !ok {
		joined = make(map[domain.RoomID]domain.MemberID)
		r.bySID[sub.SID] = joined
	}
	joined[roomID] = sub.MemberID
	log.Info().Str("module", "app.relay").Str("sid", string(sub.SID)).Str("room", string(roomID)).Msg("subscribed")
}

// Unsubscribe drops sid from one room and reports the member it listened as.
func (r *Relay) Unsubscribe(roomID domain.RoomID, sid core.SessionID) (domain.MemberID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unsubscribeLocked(roomID, sid)
}

func (r *Relay) unsubscribeLocked(roomID domain.RoomID, sid core.SessionID) (domain.MemberID, bool) {
	subs, ok := r.rooms[roomID]
	if !ok {
		return "", false
	}
	sub, ok := subs[sid]
	if !ok {
		return "", false
	}
	delete(subs, sid)
	if len(subs) == 0 {
		delete(r.rooms, roomID)
	}
	if joined, ok := r.bySID[sid]; ok {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(r.bySID, sid)
		}
	}
	log.Info().Str("module", "app.relay").Str("sid", string(sid)).Str("room", string(roomID)).Msg("unsubscribed")
	return sub.MemberID, true
}

// Disconnect removes sid from every room it was subscribed to. Room membership
// is left alone; what to do with it is the caller's policy.
func (r *Relay) Disconnect(sid core.SessionID) []Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := subscriptionsOf(r.bySID[sid])
	for _, s := range out {
		r.unsubscribeLocked(s.RoomID, sid)
	}
	return out
}

// Subscriptions lists the rooms sid listens to.
func (r *Relay) Subscriptions(sid core.SessionID) []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return subscriptionsOf(r.bySID[sid])
}

func subscriptionsOf(joined map[domain.RoomID]domain.MemberID) []Subscription {
	out := make([]Subscription, 0, len(joined))
	for roomID, memberID := range joined {
		out = append(out, Subscription{RoomID: roomID, MemberID: memberID})
	}
	slices.SortFunc(out, func(a, b Subscription) int {
		switch {
		case a.RoomID < b.RoomID:
			return -1
		case a.RoomID > b.RoomID:
			return 1
		}
		return 0
	})
	return out
}

func (r *Relay) SubscriberCount(roomID domain.RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// Broadcast sends ev to every subscriber of the room except the except session.
func (r *Relay) Broadcast(roomID domain.RoomID, ev domain.Event, except core.SessionID) core.PublishResult {
	res := core.PublishResult{}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Str("event", string(ev.Kind)).Msg("marshal event")
		return res
	}

	r.mu.RLock()
	snapshot := make([]core.Subscriber, 0, len(r.rooms[roomID]))
	for sid, sub := range r.rooms[roomID] {
		if sid == except {
			continue
		}
		snapshot = append(snapshot, sub)
	}
	r.mu.RUnlock()

	for _, sub := range snapshot {
		if err := sub.Conn.TrySend(data); err != nil {
			res.Dropped++
			continue
		}
		res.SendTo++
	}
	log.Debug().
		Str("module", "app.relay").
		Str("room", string(roomID)).
		Str("event", string(ev.Kind)).
		Int("sent_to", res.SendTo).
		Int("dropped", res.Dropped).
		Msg("broadcast result")
	return res
}

// Publish implements core.EventSink for room and round events. A left event
// is still delivered to the departing member, then its sockets stop listening.
func (r *Relay) Publish(_ context.Context, ev domain.Event) {
	r.Broadcast(ev.RoomID, ev, "")
	if ev.Kind == domain.EventLeft && ev.From != "" {
		r.DropMember(ev.RoomID, ev.From)
	}
}

// DropMember unsubscribes every socket listening to roomID as memberID.
func (r *Relay) DropMember(roomID domain.RoomID, memberID domain.MemberID) []core.SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	var dropped []core.SessionID
	for sid, sub := range r.rooms[roomID] {
		if sub.MemberID == memberID {
			dropped = append(dropped, sid)
		}
	}
	for _, sid := range dropped {
		r.unsubscribeLocked(roomID, sid)
	}
	return dropped
}
