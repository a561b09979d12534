package hub

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/auth"
	"mumble.info/grumble/pkg/config"
	"mumble.info/grumble/pkg/database"
	"mumble.info/grumble/pkg/mumbleproto"
	"mumble.info/grumble/pkg/rpc"
)

func newTestServer(t *testing.T, credEndpoint string) *Server {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)

	coord := auth.New(auth.Config{Endpoint: credEndpoint}, auth.NewMemCache())

	s, err := NewServer(zerolog.Nop(), config.HubConfig{HeartbeatDeadline: 90 * time.Second}, nil, db, coord, nil)
	require.NoError(t, err)
	return s
}

// pairedConn wires a Hub Server's handlers onto one side of an in-memory
// pipe and returns the other side as a bare rpc.Conn an Edge would use.
func pairedConn(s *Server) *rpc.Conn {
	hubSide, edgeSide := net.Pipe()
	hub := rpc.NewConn(zerolog.Nop(), hubSide)
	s.bindEdgeHandlers(hub)
	return rpc.NewConn(zerolog.Nop(), edgeSide)
}

func TestRegisterRejectsEmptyServerID(t *testing.T) {
	s := newTestServer(t, "")
	edge := pairedConn(s)
	defer edge.Close()

	var result rpc.EdgeRegisterResult
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, edge.Call(ctx, rpc.MethodEdgeRegister, rpc.EdgeRegisterParams{}, &result))
	require.False(t, result.Success)
}

func TestRegisterThenJoinPopulatesPeerList(t *testing.T) {
	s := newTestServer(t, "")

	edgeA := pairedConn(s)
	defer edgeA.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var regResult rpc.EdgeRegisterResult
	require.NoError(t, edgeA.Call(ctx, rpc.MethodEdgeRegister, rpc.EdgeRegisterParams{ServerID: "edge-a"}, &regResult))
	require.True(t, regResult.Success)

	var joinResult rpc.EdgeJoinResult
	require.NoError(t, edgeA.Call(ctx, rpc.MethodEdgeJoin, rpc.EdgeJoinParams{
		ServerID: "edge-a", Host: "10.0.0.1", VoicePort: 50000, Capacity: 100,
	}, &joinResult))
	require.True(t, joinResult.Success)
	require.NotEmpty(t, joinResult.Token)
	require.Empty(t, joinResult.Peers) // no other edge registered yet

	edgeB := pairedConn(s)
	defer edgeB.Close()
	var joinResultB rpc.EdgeJoinResult
	require.NoError(t, edgeB.Call(ctx, rpc.MethodEdgeJoin, rpc.EdgeJoinParams{
		ServerID: "edge-b", Host: "10.0.0.2", VoicePort: 50001, Capacity: 100,
	}, &joinResultB))
	require.Len(t, joinResultB.Peers, 1)
	require.Equal(t, "edge-a", joinResultB.Peers[0].ID)
}

func TestAllocateSessionIDReturnsDistinctValues(t *testing.T) {
	s := newTestServer(t, "")
	edge := pairedConn(s)
	defer edge.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var a, b rpc.EdgeAllocateSessionIDResult
	require.NoError(t, edge.Call(ctx, rpc.MethodEdgeAllocateSessionID, rpc.EdgeAllocateSessionIDParams{}, &a))
	require.NoError(t, edge.Call(ctx, rpc.MethodEdgeAllocateSessionID, rpc.EdgeAllocateSessionIDParams{}, &b))
	require.NotEqual(t, a.SessionID, b.SessionID)
}

func TestAuthenticateUserDelegatesToCredentialEndpoint(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"user_id": 5, "username": "alice", "displayName": "Alice", "groups": []string{"admin"},
		})
	}))
	defer ts.Close()

	s := newTestServer(t, ts.URL)
	edge := pairedConn(s)
	defer edge.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var result rpc.AuthResult
	require.NoError(t, edge.Call(ctx, rpc.MethodEdgeAuthenticateUser, rpc.EdgeAuthenticateUserParams{
		Username: "alice", Password: "secret",
	}, &result))
	require.True(t, result.Success)
	require.Equal(t, int32(5), result.UserID)
	require.Contains(t, result.Groups, "admin")
}

func TestHandleACLQueryReturnsCurrentChannelACL(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"user_id": 0})
	}))
	defer ts.Close()

	s := newTestServer(t, ts.URL)
	edge := pairedConn(s)
	defer edge.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw := base64.StdEncoding.EncodeToString(mumbleproto.Encode(&mumbleproto.ACL{ChannelId: u32p(0), Query: boolp(true)}))

	var result rpc.EdgeHandleACLResult
	require.NoError(t, edge.Call(ctx, rpc.MethodEdgeHandleACL, rpc.EdgeHandleACLParams{
		ActorUserID: 0, ChannelID: 0, Query: true, RawData: raw,
	}, &result))
	require.True(t, result.Success)
	require.NotEmpty(t, result.RawData)
}

func TestHandleACLWritePersistsEntries(t *testing.T) {
	s := newTestServer(t, "")
	edge := pairedConn(s)
	defer edge.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	uid := int32(9)
	writeMsg := &mumbleproto.ACL{
		ChannelId: u32p(0),
		ACLs: []*mumbleproto.ACLEntryWire{
			{UserId: &uid, ApplyHere: boolp(true), Allow: func() *uint32 { v := uint32(1); return &v }()},
		},
	}
	raw := base64.StdEncoding.EncodeToString(mumbleproto.Encode(writeMsg))

	var result rpc.EdgeHandleACLResult
	require.NoError(t, edge.Call(ctx, rpc.MethodEdgeHandleACL, rpc.EdgeHandleACLParams{
		ActorUserID: 0, ChannelID: 0, Query: false, RawData: raw,
	}, &result))
	require.True(t, result.Success)

	ch, ok := s.tree.Channel(0)
	require.True(t, ok)
	require.Len(t, ch.ACL, 1)
	require.Equal(t, int32(9), *ch.ACL[0].UserID)
}

func TestReportPeerDisconnectWaitsWhileRemoteStillHeartbeating(t *testing.T) {
	s := newTestServer(t, "")
	edge := pairedConn(s)
	defer edge.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, edge.Call(ctx, rpc.MethodEdgeJoin, rpc.EdgeJoinParams{ServerID: "edge-a", Host: "h"}, &rpc.EdgeJoinResult{}))

	var result rpc.EdgeReportPeerDisconnectResult
	require.NoError(t, edge.Call(ctx, rpc.MethodEdgeReportPeerDisconnect, rpc.EdgeReportPeerDisconnectParams{
		LocalEdgeID: "edge-b", RemoteEdgeID: "edge-a",
	}, &result))
	require.Equal(t, rpc.PeerDisconnectWait, result.Action)
}

func TestReportPeerDisconnectDisconnectsWhenRemoteUnknown(t *testing.T) {
	s := newTestServer(t, "")
	edge := pairedConn(s)
	defer edge.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var result rpc.EdgeReportPeerDisconnectResult
	require.NoError(t, edge.Call(ctx, rpc.MethodEdgeReportPeerDisconnect, rpc.EdgeReportPeerDisconnectParams{
		LocalEdgeID: "edge-b", RemoteEdgeID: "ghost",
	}, &result))
	require.Equal(t, rpc.PeerDisconnectDisconnect, result.Action)
}

func TestFullSyncReturnsEncodedTables(t *testing.T) {
	s := newTestServer(t, "")
	edge := pairedConn(s)
	defer edge.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var result rpc.EdgeFullSyncResult
	require.NoError(t, edge.Call(ctx, rpc.MethodEdgeFullSync, struct{}{}, &result))
	require.NotEmpty(t, result.Channels)
}
