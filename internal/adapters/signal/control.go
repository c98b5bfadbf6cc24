package signal

import "time"

// handlePing answers with the server clock so clients can estimate latency.
func (ctl *SignalWSController) handlePing(conn *WsSignalConn) {
	ctl.sendJSON(conn, map[string]any{
		"type": "pong",
		"at":   time.Now().UnixMilli(),
	})
}
