package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Rooms/internal/core"
	"github.com/dkeye/Rooms/internal/domain"
)

func (ctl *SignalWSController) handleChat(
	sid core.SessionID,
	conn *WsSignalConn,
	data []byte,
) {
	type chatPayload struct {
		Type string        `json:"type"`
		Room domain.RoomID `json:"room,omitempty"`
		Text string        `json:"text"`
	}
	var p chatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad chat payload")
		ctl.sendError(conn, errBadPayload)
		return
	}

	sub, err := ctl.Orch.ResolveRoom(sid, p.Room)
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	if !ctl.limiter.Allow(sub.MemberID) {
		log.Warn().Str("module", "signal").Str("member", string(sub.MemberID)).Msg("chat rate limited")
		ctl.sendError(conn, errRateLimited)
		return
	}

	res, err := ctl.Orch.Chat(sid, sub.RoomID, p.Text)
	if err != nil {
		ctl.sendError(conn, err)
		return
	}
	log.Debug().Str("module", "signal").Str("room", string(sub.RoomID)).Int("sent_to", res.SendTo).Int("dropped", res.Dropped).Msg("chat")
}
