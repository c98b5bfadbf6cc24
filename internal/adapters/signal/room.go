package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Rooms/internal/core"
	"github.com/dkeye/Rooms/internal/domain"
)

func (ctl *SignalWSController) handleSubscribe(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type subscribePayload struct {
		Type   string          `json:"type"`
		Room   domain.RoomID   `json:"room"`
		Member domain.MemberID `json:"member"`
	}
	var p subscribePayload
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" || p.Member == "" {
		log.Error().Err(err).Str("module", "signal").Msg("bad subscribe payload")
		ctl.sendError(conn, errBadPayload)
		return
	}

	view, err := ctl.Orch.Subscribe(ctx, sid, p.Room, p.Member)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("room", string(p.Room)).Msg("subscribe rejected")
		ctl.sendError(conn, err)
		return
	}

	resp := struct {
		Type    string            `json:"type"`
		Room    domain.RoomID     `json:"room"`
		Status  domain.RoomStatus `json:"status"`
		Round   int               `json:"round"`
		Members []*domain.Member  `json:"members"`
		Count   int               `json:"count"`
	}{
		Type:    "room_state",
		Room:    view.Room.ID,
		Status:  view.Room.Status,
		Round:   view.Room.CurrentRound,
		Members: view.Members,
		Count:   len(view.Members),
	}
	ctl.sendJSON(conn, resp)
}

// handleUnsubscribe stops listening to a room; the socket itself stays open.
func (ctl *SignalWSController) handleUnsubscribe(
	ctx context.Context,
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type unsubscribePayload struct {
		Type      string        `json:"type"`
		Room      domain.RoomID `json:"room,omitempty"`
		LeaveRoom bool          `json:"leave_room,omitempty"`
	}
	var p unsubscribePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad unsubscribe payload")
		ctl.sendError(conn, errBadPayload)
		return
	}

	sub, err := ctl.Orch.ResolveRoom(sid, p.Room)
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	if err := ctl.Orch.Unsubscribe(ctx, sid, sub.RoomID, p.LeaveRoom); err != nil {
		ctl.sendError(conn, err)
		return
	}
	if p.LeaveRoom {
		ctl.limiter.Forget(sub.MemberID)
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(sub.RoomID)).Bool("leave_room", p.LeaveRoom).Msg("unsubscribe")
	ctl.sendJSON(conn, map[string]any{
		"type": "unsubscribed",
		"room": sub.RoomID,
	})
}
