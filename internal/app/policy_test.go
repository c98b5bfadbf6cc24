package app_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dkeye/Rooms/internal/app"
)

func TestParseDisconnectAction(t *testing.T) {
	tests := []struct {
		in      string
		want    app.DisconnectAction
		wantErr bool
	}{
		{"", app.KeepMembership, false},
		{"keep", app.KeepMembership, false},
		{"leave", app.LeaveRoom, false},
		{"kick", app.KeepMembership, true},
	}
	for _, tt := range tests {
		got, err := app.ParseDisconnectAction(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, app.SimplePolicy{Action: got}.OnDisconnect("r", "m"), got)
	}
	assert.Equal(t, "leave", app.LeaveRoom.String())
	assert.Equal(t, "keep", app.KeepMembership.String())
}
