package hub

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/rpc"
)

func TestSessionsAllocateReturnsDistinctNonZeroIDs(t *testing.T) {
	s := NewSessions()
	a := s.Allocate()
	b := s.Allocate()
	require.NotZero(t, a)
	require.NotZero(t, b)
	require.NotEqual(t, a, b)
}

func TestSessionsReportAndSnapshot(t *testing.T) {
	s := NewSessions()
	s.Report(rpc.EdgeReportSessionParams{SessionID: 1, UserID: 5, Username: "alice", ChannelID: 0}, "edge-a")
	s.Report(rpc.EdgeReportSessionParams{SessionID: 2, UserID: 6, Username: "bob", ChannelID: 1}, "edge-b")

	require.Equal(t, 2, s.Len())

	snap := s.Snapshot()
	byID := map[uint32]rpc.SessionSnapshot{}
	for _, row := range snap {
		byID[row.SessionID] = row
	}
	require.Equal(t, "alice", byID[1].Username)
	require.Equal(t, "edge-a", byID[1].EdgeID)
	require.Equal(t, "edge-b", byID[2].EdgeID)
}

func TestSessionsRemoveAllOnEdgeOnlyDropsThatEdge(t *testing.T) {
	s := NewSessions()
	s.Report(rpc.EdgeReportSessionParams{SessionID: 1, Username: "alice"}, "edge-a")
	s.Report(rpc.EdgeReportSessionParams{SessionID: 2, Username: "bob"}, "edge-a")
	s.Report(rpc.EdgeReportSessionParams{SessionID: 3, Username: "carol"}, "edge-b")

	removed := s.RemoveAllOnEdge("edge-a")
	require.ElementsMatch(t, []uint32{1, 2}, removed)
	require.Equal(t, 1, s.Len())

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, "carol", snap[0].Username)
}

func TestSessionsUpdateListeningEnforcesPerChannelCap(t *testing.T) {
	s := NewSessions()

	granted := s.UpdateListening(1, 5, []uint32{10}, nil, 1, 0)
	require.Equal(t, []uint32{10}, granted)

	granted = s.UpdateListening(2, 6, []uint32{10}, nil, 1, 0)
	require.Empty(t, granted, "channel 10 is already at its per-channel cap")

	granted = s.UpdateListening(1, 5, nil, []uint32{10}, 1, 0)
	require.Empty(t, granted)
	granted = s.UpdateListening(2, 6, []uint32{10}, nil, 1, 0)
	require.Equal(t, []uint32{10}, granted, "cap slot freed once session 1 stopped listening")
}

func TestSessionsUpdateListeningEnforcesPerUserCap(t *testing.T) {
	s := NewSessions()

	granted := s.UpdateListening(1, 5, []uint32{10, 11}, nil, 0, 1)
	require.Equal(t, []uint32{10}, granted, "second channel exceeds the per-user cap")
}

func TestSessionsRemoveAllOnEdgeClearsListeningState(t *testing.T) {
	s := NewSessions()
	s.Report(rpc.EdgeReportSessionParams{SessionID: 1, UserID: 5, Username: "alice"}, "edge-a")
	s.UpdateListening(1, 5, []uint32{10}, nil, 1, 0)

	s.RemoveAllOnEdge("edge-a")

	granted := s.UpdateListening(2, 6, []uint32{10}, nil, 1, 0)
	require.Equal(t, []uint32{10}, granted, "edge-a's departed listener must no longer hold the cap slot")
}
