package rpc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/rpc"
)

func TestEdgeJoinResultRoundTrip(t *testing.T) {
	raw, err := rpc.EncodeParams(rpc.EdgeJoinResult{
		Success: true,
		Token:   "tok-123",
		Peers: []rpc.PeerInfo{
			{ID: "edge-2", Name: "edge-2", Host: "10.0.0.2", Port: 11080, VoicePort: 11443},
		},
		Timeout: 30,
	})
	require.NoError(t, err)

	var decoded rpc.EdgeJoinResult
	require.NoError(t, rpc.DecodeParams(raw, &decoded))
	require.True(t, decoded.Success)
	require.Equal(t, "tok-123", decoded.Token)
	require.Len(t, decoded.Peers, 1)
	require.Equal(t, "edge-2", decoded.Peers[0].ID)
}

func TestAuthResultRoundTrip(t *testing.T) {
	raw, err := rpc.EncodeParams(rpc.AuthResult{
		Success:     true,
		Reject:      rpc.RejectNone,
		UserID:      42,
		Username:    "alice",
		DisplayName: "Alice",
		Groups:      []string{"admin"},
	})
	require.NoError(t, err)

	var decoded rpc.AuthResult
	require.NoError(t, rpc.DecodeParams(raw, &decoded))
	require.Equal(t, int32(42), decoded.UserID)
	require.Equal(t, []string{"admin"}, decoded.Groups)
}

func TestReportPeerDisconnectActionRoundTrip(t *testing.T) {
	raw, err := rpc.EncodeParams(rpc.EdgeReportPeerDisconnectResult{Action: rpc.PeerDisconnectWait})
	require.NoError(t, err)

	var decoded rpc.EdgeReportPeerDisconnectResult
	require.NoError(t, rpc.DecodeParams(raw, &decoded))
	require.Equal(t, rpc.PeerDisconnectWait, decoded.Action)
}
