package cluster_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/cluster"
)

func TestRegistryHeartbeatAndExpiry(t *testing.T) {
	reg := cluster.NewRegistry()
	now := time.Now()
	reg.Register(&cluster.EdgeInfo{ID: "edge-1", LastHeartbeat: now})

	require.True(t, reg.Heartbeat("edge-1", 5, now.Add(time.Second)))
	require.False(t, reg.Heartbeat("missing", 1, now))

	expired := reg.Expired(now.Add(60*time.Second), 90*time.Second)
	require.Empty(t, expired)

	expired = reg.Expired(now.Add(200*time.Second), 90*time.Second)
	require.Contains(t, expired, "edge-1")
}

func TestRemoteDirectoryTracksChannelResidency(t *testing.T) {
	d := cluster.NewRemoteDirectory()
	d.Joined(10, "edge-2", 3)
	d.Joined(11, "edge-3", 3)

	edges := d.EdgesHosting(3)
	require.ElementsMatch(t, []string{"edge-2", "edge-3"}, edges)

	d.StateChanged(10, 4)
	require.ElementsMatch(t, []string{"edge-3"}, d.EdgesHosting(3))
	require.ElementsMatch(t, []string{"edge-2"}, d.EdgesHosting(4))

	d.Left(11)
	require.Empty(t, d.EdgesHosting(3))
}
