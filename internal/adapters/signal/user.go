package signal

import (
	"github.com/dkeye/Rooms/internal/app"
	"github.com/dkeye/Rooms/internal/core"
)

func (ctl *SignalWSController) handleWhoAmI(
	sid core.SessionID,
	conn *WsSignalConn,
) {
	resp := struct {
		Type  string             `json:"type"`
		SID   core.SessionID     `json:"sid"`
		Rooms []app.Subscription `json:"rooms"`
	}{
		Type:  "whoami",
		SID:   sid,
		Rooms: ctl.Orch.Relay.Subscriptions(sid),
	}
	ctl.sendJSON(conn, resp)
}
