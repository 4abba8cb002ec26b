package relay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRoom(t *testing.T) {
	for _, ok := range []string{"lobby", "a", "Room_42", "0", strings.Repeat("z", MaxRoomNameLength)} {
		require.NoError(t, ValidateRoom(ok), ok)
	}
	for _, bad := range []string{"", "bad-room", "with space", "é", "dots.here", strings.Repeat("z", MaxRoomNameLength+1)} {
		require.ErrorIs(t, ValidateRoom(bad), ErrInvalidRoom, bad)
	}
}

func TestStateString(t *testing.T) {
	require.Equal(t, "connecting", StateConnecting.String())
	require.Equal(t, "active", StateActive.String())
	require.Equal(t, "closing", StateClosing.String())
	require.Equal(t, "closed", StateClosed.String())
	require.Equal(t, "unknown", State(42).String())
}

func TestSessionAdvanceNeverGoesBack(t *testing.T) {
	s := &Session{}
	s.advance(StateActive)
	s.advance(StateClosed)
	s.advance(StateActive)
	require.Equal(t, StateClosed, s.State())
}
