package rpc_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/errs"
	"mumble.info/grumble/pkg/rpc"
)

func newConnPair() (*rpc.Conn, *rpc.Conn) {
	clientConn, serverConn := net.Pipe()
	log := zerolog.Nop()
	return rpc.NewConn(log, clientConn), rpc.NewConn(log, serverConn)
}

type heartbeatParams struct {
	EdgeID string `msgpack:"edge_id"`
}

type heartbeatResult struct {
	Accepted bool `msgpack:"accepted"`
}

func TestConnCallRoundTrip(t *testing.T) {
	client, server := newConnPair()
	defer client.Close()
	defer server.Close()

	server.Handle("edge.heartbeat", func(ctx context.Context, params []byte) (interface{}, error) {
		var p heartbeatParams
		require.NoError(t, rpc.DecodeParams(params, &p))
		require.Equal(t, "edge-7", p.EdgeID)
		return heartbeatResult{Accepted: true}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var result heartbeatResult
	err := client.Call(ctx, "edge.heartbeat", heartbeatParams{EdgeID: "edge-7"}, &result)
	require.NoError(t, err)
	require.True(t, result.Accepted)
}

func TestConnCallPropagatesHandlerError(t *testing.T) {
	client, server := newConnPair()
	defer client.Close()
	defer server.Close()

	server.Handle("edge.join", func(ctx context.Context, params []byte) (interface{}, error) {
		return nil, errs.New(errs.Permission, "not authorized")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := client.Call(ctx, "edge.join", nil, nil)
	require.Error(t, err)
}

func TestConnCallUnknownMethod(t *testing.T) {
	client, server := newConnPair()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := client.Call(ctx, "edge.doesNotExist", nil, nil)
	require.Error(t, err)
}

func TestConnNotifyDeliversWithoutResponse(t *testing.T) {
	client, server := newConnPair()
	defer client.Close()
	defer server.Close()

	received := make(chan string, 1)
	server.HandleNotification("edge.peerLeft", func(params []byte) {
		var p heartbeatParams
		if err := rpc.DecodeParams(params, &p); err == nil {
			received <- p.EdgeID
		}
	})

	require.NoError(t, client.Notify("edge.peerLeft", heartbeatParams{EdgeID: "edge-3"}))

	select {
	case id := <-received:
		require.Equal(t, "edge-3", id)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not delivered")
	}
}

func TestConnCallTimesOutWhenNoResponse(t *testing.T) {
	client, server := newConnPair()
	defer client.Close()
	defer server.Close()

	block := make(chan struct{})
	server.Handle("edge.slow", func(ctx context.Context, params []byte) (interface{}, error) {
		<-block
		return nil, nil
	})
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := client.Call(ctx, "edge.slow", nil, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnCallAfterCloseFails(t *testing.T) {
	client, server := newConnPair()
	server.Close()
	client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := client.Call(ctx, "edge.heartbeat", nil, nil)
	require.Error(t, err)
}

func ExampleConn_errorKindSurvivesWire() {
	client, server := newConnPair()
	defer client.Close()
	defer server.Close()

	server.Handle("edge.registerSession", func(ctx context.Context, params []byte) (interface{}, error) {
		return nil, errs.New(errs.RateLimit, "too many sessions")
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := client.Call(ctx, "edge.registerSession", nil, nil)
	fmt.Println(errs.Is(err, errs.RateLimit))
	// Output: true
}
