package cluster_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/cluster"
)

type fakeTransport struct {
	mu          sync.Mutex
	reconnectOK bool
	peers       []*cluster.EdgeInfo
}

func (f *fakeTransport) Register(ctx context.Context) error { return nil }
func (f *fakeTransport) Join(ctx context.Context) ([]*cluster.EdgeInfo, error) {
	return f.peers, nil
}
func (f *fakeTransport) JoinComplete(ctx context.Context, connected []string) error { return nil }
func (f *fakeTransport) Heartbeat(ctx context.Context) error                       { return nil }
func (f *fakeTransport) FullSync(ctx context.Context) error                        { return nil }
func (f *fakeTransport) Reconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reconnectOK {
		return nil
	}
	return errors.New("still down")
}
func (f *fakeTransport) Close() error { return nil }

type fakeVoiceEndpoints struct {
	mu    sync.Mutex
	added []string
}

func (f *fakeVoiceEndpoints) AddPeer(ctx context.Context, peer *cluster.EdgeInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, peer.ID)
	return nil
}
func (f *fakeVoiceEndpoints) RemovePeer(peerID string) {}
func (f *fakeVoiceEndpoints) RemoveAll()               {}

func TestLifecycleStartConnectsAllPeers(t *testing.T) {
	transport := &fakeTransport{peers: []*cluster.EdgeInfo{{ID: "a"}, {ID: "b"}}}
	voice := &fakeVoiceEndpoints{}
	lc := cluster.NewLifecycle(zerolog.Nop(), transport, voice)

	err := lc.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, cluster.StateConnected, lc.State())
	require.ElementsMatch(t, []string{"a", "b"}, voice.added)
}

func TestLifecycleForceDisconnectRejoins(t *testing.T) {
	transport := &fakeTransport{}
	voice := &fakeVoiceEndpoints{}
	lc := cluster.NewLifecycle(zerolog.Nop(), transport, voice)
	lc.SetTimings(time.Millisecond, 5*time.Millisecond, time.Millisecond)
	require.NoError(t, lc.Start(context.Background()))

	called := false
	err := lc.ForceDisconnect(context.Background(), func() { called = true })
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, cluster.StateConnected, lc.State())
}
