package edge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mumble.info/grumble/pkg/acl"
	"mumble.info/grumble/pkg/framing"
	"mumble.info/grumble/pkg/model"
	"mumble.info/grumble/pkg/mumbleproto"
	"mumble.info/grumble/pkg/rpc"
)

func TestHasSuperUserGroup(t *testing.T) {
	require.True(t, hasSuperUserGroup([]string{"members", "admin"}))
	require.True(t, hasSuperUserGroup([]string{"superuser"}))
	require.False(t, hasSuperUserGroup([]string{"members", "guests"}))
	require.False(t, hasSuperUserGroup(nil))
}

func TestUserStateOfReflectsSessionFields(t *testing.T) {
	sess := &model.Session{
		Session:   5,
		Username:  "alice",
		UserID:    3,
		ChannelID: 2,
		Mute: model.MuteState{
			Mute: true, SelfDeaf: true,
		},
	}
	state := userStateOf(sess)
	require.Equal(t, uint32(5), *state.Session)
	require.Equal(t, "alice", *state.Name)
	require.Equal(t, uint32(3), *state.UserId)
	require.Equal(t, uint32(2), *state.ChannelId)
	require.True(t, *state.Mute)
	require.True(t, *state.SelfDeaf)
	require.False(t, *state.SelfMute)
}

func TestClientSubjectReflectsSession(t *testing.T) {
	server := newTestServer()
	client, testSide := newTestClient(t, server)
	defer testSide.Close()

	client.session = &model.Session{
		UserID:    11,
		CertHash:  "deadbeef",
		ChannelID: 4,
	}
	client.session.SetSuperUser(true)

	subj := client.subject()
	require.Equal(t, acl.Subject{UserID: 11, CertHash: "deadbeef", ChannelID: 4, SuperUser: true}, subj)
}

func TestClientSendServerVersionAdvancesState(t *testing.T) {
	server := newTestServer()
	client, testSide := newTestClient(t, server)
	defer testSide.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- client.sendServerVersion() }()

	_, msg := readMessage(t, testSide)
	require.NoError(t, <-errCh)

	version, ok := msg.(*mumbleproto.Version)
	require.True(t, ok)
	require.Equal(t, []string{"OCB2-AES128"}, version.CryptoModes)
	require.Equal(t, stateServerSentVersion, client.state)
}

func TestClientDispatchVersionHandshakeAdvancesState(t *testing.T) {
	server := newTestServer()
	client, testSide := newTestClient(t, server)
	defer testSide.Close()
	client.state = stateServerSentVersion

	v2 := uint64(1)<<48 | 5<<24
	err := client.dispatch(nil, mumbleproto.MessageType(&mumbleproto.Version{}), &mumbleproto.Version{VersionV2: &v2})
	require.NoError(t, err)
	require.Equal(t, stateClientSentVersion, client.state)
	require.Equal(t, uint32(5), client.clientVersion)
}

func TestClientDispatchRejectsWrongMessageForState(t *testing.T) {
	server := newTestServer()
	client, testSide := newTestClient(t, server)
	defer testSide.Close()
	client.state = stateServerSentVersion

	err := client.dispatch(nil, mumbleproto.MessageType(&mumbleproto.Ping{}), &mumbleproto.Ping{})
	require.Error(t, err)
}

func TestClientSendChannelTreeWalksDescendants(t *testing.T) {
	server := newTestServer()
	server.tree = NewLocalTree()
	server.tree.ApplyChannelTable(rpc.ChannelTable{Channels: []rpc.ChannelSnapshot{
		{ID: 0, Name: "Root"},
		{ID: 1, ParentID: u32p(0), Name: "Lobby"},
	}})
	client, testSide := newTestClient(t, server)
	defer testSide.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- client.sendChannelTree(0) }()

	_, rootMsg := readMessage(t, testSide)
	rootState := rootMsg.(*mumbleproto.ChannelState)
	require.Equal(t, "Root", *rootState.Name)

	_, childMsg := readMessage(t, testSide)
	childState := childMsg.(*mumbleproto.ChannelState)
	require.Equal(t, "Lobby", *childState.Name)

	require.NoError(t, <-errCh)
}

func TestApplyListeningChangesRequiresListenPermission(t *testing.T) {
	server := newTestServer()
	server.tree = NewLocalTree()
	server.tree.ApplyChannelTable(rpc.ChannelTable{Channels: []rpc.ChannelSnapshot{
		{ID: 0, Name: "Root", InheritACL: true},
	}})
	server.tree.ApplyACLTable(rpc.ACLTable{Entries: []rpc.ACLEntrySnapshot{
		{ChannelID: 0, Group: "all", ApplyHere: true, Deny: uint64(model.PermissionListen)},
	}})
	server.acl = acl.New(server.tree)

	client, testSide := newTestClient(t, server)
	defer testSide.Close()
	sess := &model.Session{Session: 1, ChannelID: 0, ListeningChannels: map[uint32]struct{}{}}
	client.session = sess
	server.sessions.Add(sess)
	server.registerClient(1, client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, msg := readMessage(t, testSide)
		_, ok := msg.(*mumbleproto.PermissionDenied)
		require.True(t, ok)
	}()

	client.applyListeningChanges([]uint32{0}, nil)
	<-done

	require.Empty(t, sess.ListeningChannels)
}

func TestApplyListeningChangesGrantedByHubAddsSubscription(t *testing.T) {
	server := newTestServer()
	server.tree = NewLocalTree()
	server.tree.ApplyChannelTable(rpc.ChannelTable{Channels: []rpc.ChannelSnapshot{
		{ID: 0, Name: "Root", InheritACL: true},
	}})
	server.tree.ApplyACLTable(rpc.ACLTable{Entries: []rpc.ACLEntrySnapshot{
		{ChannelID: 0, Group: "all", ApplyHere: true, Allow: uint64(model.PermissionListen)},
	}})
	server.acl = acl.New(server.tree)

	client, testSide := newTestClient(t, server)
	defer testSide.Close()
	sess := &model.Session{Session: 1, ChannelID: 0, ListeningChannels: map[uint32]struct{}{}}
	client.session = sess
	server.sessions.Add(sess)

	edgeConn, hubConn := newTestHubPair()
	defer edgeConn.Close()
	defer hubConn.Close()
	hubConn.Handle(rpc.MethodEdgeUpdateListening, func(ctx context.Context, raw []byte) (interface{}, error) {
		var p rpc.EdgeUpdateListeningParams
		require.NoError(t, rpc.DecodeParams(raw, &p))
		return rpc.EdgeUpdateListeningResult{Granted: p.Add}, nil
	})
	server.hubConn = edgeConn

	client.applyListeningChanges([]uint32{0}, nil)

	_, ok := sess.ListeningChannels[0]
	require.True(t, ok)
	require.ElementsMatch(t, []uint32{1}, server.sessions.ListeningTo(0))
}

func TestApplyListeningChangesRemoveNeedsNoPermission(t *testing.T) {
	server := newTestServer()
	client, testSide := newTestClient(t, server)
	defer testSide.Close()
	sess := &model.Session{Session: 1, ChannelID: 0, ListeningChannels: map[uint32]struct{}{5: {}}}
	client.session = sess
	server.sessions.Add(sess)
	server.sessions.SetListening(1, 5, true)

	client.applyListeningChanges(nil, []uint32{5})

	require.Empty(t, sess.ListeningChannels)
	require.Empty(t, server.sessions.ListeningTo(5))
}

func TestClientSendVoiceWritesTunneledFrame(t *testing.T) {
	server := newTestServer()
	client, testSide := newTestClient(t, server)
	defer testSide.Close()

	errCh := make(chan error, 1)
	payload := []byte{0x01, 0x02, 0x03}
	go func() { errCh <- client.sendVoice(payload) }()

	testSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := framing.ReadFrame(testSide)
	require.NoError(t, err)
	require.Equal(t, mumbleproto.TypeUDPTunnel, frame.Type)
	require.Equal(t, payload, frame.Payload)
	require.NoError(t, <-errCh)
}
