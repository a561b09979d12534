package edge

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/model"
	"mumble.info/grumble/pkg/rpc"
	"mumble.info/grumble/pkg/session"
)

func newTestHubPair() (*rpc.Conn, *rpc.Conn) {
	edgeSide, hubSide := net.Pipe()
	log := zerolog.Nop()
	return rpc.NewConn(log, edgeSide), rpc.NewConn(log, hubSide)
}

func newTestServer() *Server {
	return &Server{
		log:      zerolog.Nop(),
		edgeID:   "edge-1",
		sessions: session.New(),
		clients:  make(map[uint32]*Client),
	}
}

func TestHubTransportRegisterJoinJoinCompleteFullSync(t *testing.T) {
	edgeConn, hubConn := newTestHubPair()
	defer edgeConn.Close()
	defer hubConn.Close()

	hubConn.Handle(rpc.MethodEdgeRegister, func(ctx context.Context, params []byte) (interface{}, error) {
		var p rpc.EdgeRegisterParams
		require.NoError(t, rpc.DecodeParams(params, &p))
		require.Equal(t, "edge-1", p.ServerID)
		return rpc.EdgeRegisterResult{Success: true, HubServerID: "hub-1"}, nil
	})
	hubConn.Handle(rpc.MethodEdgeJoin, func(ctx context.Context, params []byte) (interface{}, error) {
		return rpc.EdgeJoinResult{
			Success: true,
			Token:   "join-token",
			Peers: []rpc.PeerInfo{
				{ID: "edge-2", Host: "10.0.0.2", VoicePort: 60002},
			},
		}, nil
	})
	hubConn.Handle(rpc.MethodEdgeJoinComplete, func(ctx context.Context, params []byte) (interface{}, error) {
		var p rpc.EdgeJoinCompleteParams
		require.NoError(t, rpc.DecodeParams(params, &p))
		require.Equal(t, "join-token", p.Token)
		return nil, nil
	})
	hubConn.Handle(rpc.MethodEdgeFullSync, func(ctx context.Context, params []byte) (interface{}, error) {
		return rpc.EdgeFullSyncResult{}, nil
	})

	server := newTestServer()
	transport := newHubTransport(zerolog.Nop(), server, rpc.EdgeJoinParams{ServerID: "edge-1"}, func(ctx context.Context) (*rpc.Conn, error) {
		return edgeConn, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, transport.Register(ctx))

	peers, err := transport.Join(ctx)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	require.Equal(t, "edge-2", peers[0].ID)
	require.Equal(t, "join-token", server.joinToken)

	require.NoError(t, transport.JoinComplete(ctx, []string{"edge-2"}))
	require.NoError(t, transport.FullSync(ctx))
}

func TestHubTransportRegisterRejected(t *testing.T) {
	edgeConn, hubConn := newTestHubPair()
	defer edgeConn.Close()
	defer hubConn.Close()

	hubConn.Handle(rpc.MethodEdgeRegister, func(ctx context.Context, params []byte) (interface{}, error) {
		return rpc.EdgeRegisterResult{Success: false}, nil
	})

	server := newTestServer()
	transport := newHubTransport(zerolog.Nop(), server, rpc.EdgeJoinParams{ServerID: "edge-1"}, func(ctx context.Context) (*rpc.Conn, error) {
		return edgeConn, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.Error(t, transport.Register(ctx))
}

func TestHubTransportHeartbeatReportsLocalClientCount(t *testing.T) {
	edgeConn, hubConn := newTestHubPair()
	defer edgeConn.Close()
	defer hubConn.Close()

	received := make(chan int, 1)
	hubConn.Handle(rpc.MethodEdgeHeartbeat, func(ctx context.Context, params []byte) (interface{}, error) {
		var p rpc.EdgeHeartbeatParams
		require.NoError(t, rpc.DecodeParams(params, &p))
		received <- p.Stats.Clients
		return rpc.EdgeHeartbeatResult{Success: true}, nil
	})

	server := newTestServer()
	server.sessions.Add(&model.Session{Session: 1})
	transport := newHubTransport(zerolog.Nop(), server, rpc.EdgeJoinParams{ServerID: "edge-1"}, func(ctx context.Context) (*rpc.Conn, error) {
		return edgeConn, nil
	})
	transport.conn = edgeConn

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, transport.Heartbeat(ctx))

	select {
	case count := <-received:
		require.Equal(t, 1, count)
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat never reached hub handler")
	}
}
