package hub

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mumble.info/grumble/pkg/acl"
	"mumble.info/grumble/pkg/auth"
	"mumble.info/grumble/pkg/blobstore"
	"mumble.info/grumble/pkg/cluster"
	"mumble.info/grumble/pkg/config"
	"mumble.info/grumble/pkg/database"
	"mumble.info/grumble/pkg/model"
	"mumble.info/grumble/pkg/mumbleproto"
	"mumble.info/grumble/pkg/rpc"
)

// edgeConn is what the Hub tracks about one connected Edge's control
// socket, keyed by edge id once it registers.
type edgeConn struct {
	conn *rpc.Conn
}

// Server is the Hub node: the authoritative channel/ACL tree, the
// Edge registry, the cluster-wide session directory, the external
// credential client, and the TLS listener Edges dial into (§3, §4.14).
type Server struct {
	log zerolog.Logger
	cfg config.HubConfig

	db       *database.DB
	tree     *Tree
	evalu    *acl.Evaluator
	blobs    *blobstore.Store
	coord    *auth.Coordinator
	registry *cluster.Registry
	sessions *Sessions

	hubServerID string

	tlsConfig *tls.Config
	listener  net.Listener

	edgesMu sync.RWMutex
	edges   map[string]*edgeConn // edgeID -> conn
}

// NewServer builds a Hub server over an already-open database, an
// already-built auth coordinator, and a blob store.
func NewServer(log zerolog.Logger, cfg config.HubConfig, tlsConfig *tls.Config, db *database.DB, coord *auth.Coordinator, blobs *blobstore.Store) (*Server, error) {
	tree, err := NewTree(db)
	if err != nil {
		return nil, fmt.Errorf("hub: building channel tree: %w", err)
	}

	return &Server{
		log:         log,
		cfg:         cfg,
		db:          db,
		tree:        tree,
		evalu:       acl.New(tree),
		blobs:       blobs,
		coord:       coord,
		registry:    cluster.NewRegistry(),
		sessions:    NewSessions(),
		hubServerID: uuid.NewString(),
		tlsConfig:   tlsConfig,
		edges:       make(map[string]*edgeConn),
	}, nil
}

// Run starts the Edge-facing TLS listener and the heartbeat-expiry
// sweep, blocking until ctx is canceled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	listener, err := tls.Listen("tcp", s.cfg.ControlListen, s.tlsConfig)
	if err != nil {
		return fmt.Errorf("hub: listening on %s: %w", s.cfg.ControlListen, err)
	}
	s.listener = listener
	defer listener.Close()

	go s.expiryLoop(ctx)

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				s.log.Warn().Err(err).Msg("hub: control accept failed")
				continue
			}
		}
		rc := rpc.NewConn(s.log, conn)
		s.bindEdgeHandlers(rc)
	}
}

// bindEdgeHandlers wires every edge.* RPC method and notification onto
// one freshly accepted connection, closing over rc so handlers can
// identify which Edge they belong to once it registers (§4.14).
func (s *Server) bindEdgeHandlers(rc *rpc.Conn) {
	var edgeID string // set by the register handler, read by later handlers on the same conn

	rc.Handle(rpc.MethodEdgeRegister, func(ctx context.Context, raw []byte) (interface{}, error) {
		var p rpc.EdgeRegisterParams
		if err := rpc.DecodeParams(raw, &p); err != nil {
			return nil, err
		}
		if p.ServerID == "" {
			return rpc.EdgeRegisterResult{Success: false}, nil
		}
		edgeID = p.ServerID
		s.edgesMu.Lock()
		s.edges[edgeID] = &edgeConn{conn: rc}
		s.edgesMu.Unlock()

		return rpc.EdgeRegisterResult{
			Success:     true,
			HubServerID: s.hubServerID,
			EdgeList:    s.peerList(edgeID),
		}, nil
	})

	rc.Handle(rpc.MethodEdgeJoin, func(ctx context.Context, raw []byte) (interface{}, error) {
		var p rpc.EdgeJoinParams
		if err := rpc.DecodeParams(raw, &p); err != nil {
			return nil, err
		}
		peers := s.peerList(p.ServerID)
		s.registry.Register(&cluster.EdgeInfo{
			ID: p.ServerID, Host: p.Host, VoicePort: p.VoicePort, Capacity: p.Capacity,
			LastHeartbeat: time.Now(),
		})
		token := uuid.NewString()
		s.notifyPeerJoined(p.ServerID, p.Host, p.VoicePort)
		return rpc.EdgeJoinResult{Success: true, Token: token, Peers: peers, Timeout: 10}, nil
	})

	rc.Handle(rpc.MethodEdgeJoinComplete, func(ctx context.Context, raw []byte) (interface{}, error) {
		return nil, nil
	})

	rc.Handle(rpc.MethodEdgeHeartbeat, func(ctx context.Context, raw []byte) (interface{}, error) {
		var p rpc.EdgeHeartbeatParams
		if err := rpc.DecodeParams(raw, &p); err != nil {
			return nil, err
		}
		s.registry.Heartbeat(p.ServerID, p.Stats.Clients, time.Now())
		return rpc.EdgeHeartbeatResult{Success: true}, nil
	})

	rc.Handle(rpc.MethodEdgeAllocateSessionID, func(ctx context.Context, raw []byte) (interface{}, error) {
		return rpc.EdgeAllocateSessionIDResult{SessionID: s.sessions.Allocate()}, nil
	})

	rc.HandleNotification(rpc.MethodEdgeReportSession, func(raw []byte) {
		var p rpc.EdgeReportSessionParams
		if err := rpc.DecodeParams(raw, &p); err != nil {
			return
		}
		s.sessions.Report(p, edgeID)
		s.notifyRemoteUserJoined(edgeID, p.SessionID, p.ChannelID)
	})

	rc.Handle(rpc.MethodEdgeAuthenticateUser, func(ctx context.Context, raw []byte) (interface{}, error) {
		var p rpc.EdgeAuthenticateUserParams
		if err := rpc.DecodeParams(raw, &p); err != nil {
			return nil, err
		}
		return s.handleAuthenticateUser(ctx, p)
	})

	rc.Handle(rpc.MethodEdgeHandleACL, func(ctx context.Context, raw []byte) (interface{}, error) {
		var p rpc.EdgeHandleACLParams
		if err := rpc.DecodeParams(raw, &p); err != nil {
			return nil, err
		}
		return s.handleACL(p)
	})

	rc.Handle(rpc.MethodEdgeFullSync, func(ctx context.Context, raw []byte) (interface{}, error) {
		return s.handleFullSync(), nil
	})

	rc.Handle(rpc.MethodEdgeReportPeerDisconnect, func(ctx context.Context, raw []byte) (interface{}, error) {
		var p rpc.EdgeReportPeerDisconnectParams
		if err := rpc.DecodeParams(raw, &p); err != nil {
			return nil, err
		}
		return s.handleReportPeerDisconnect(p), nil
	})

	rc.Handle(rpc.MethodEdgeUpdateListening, func(ctx context.Context, raw []byte) (interface{}, error) {
		var p rpc.EdgeUpdateListeningParams
		if err := rpc.DecodeParams(raw, &p); err != nil {
			return nil, err
		}
		granted := s.sessions.UpdateListening(p.SessionID, p.UserID, p.Add, p.Remove, s.cfg.ListenersPerChannel, s.cfg.ListenersPerUser)
		return rpc.EdgeUpdateListeningResult{Granted: granted}, nil
	})
}

// peerList returns every currently registered Edge but excludeID, for
// edge.register's edge_list and edge.join's peers (§4.14).
func (s *Server) peerList(excludeID string) []rpc.PeerInfo {
	var out []rpc.PeerInfo
	for _, e := range s.registry.All() {
		if e.ID == excludeID {
			continue
		}
		out = append(out, rpc.PeerInfo{ID: e.ID, Host: e.Host, VoicePort: e.VoicePort})
	}
	return out
}

func (s *Server) handleAuthenticateUser(ctx context.Context, p rpc.EdgeAuthenticateUserParams) (rpc.AuthResult, error) {
	result, err := s.coord.Authenticate(ctx, auth.Request{
		SessionID: p.SessionID,
		ServerID:  p.ServerID,
		Username:  p.Username,
		Password:  p.Password,
		Tokens:    p.Tokens,
		Client: auth.ClientInfo{
			IP: p.ClientInfo.IP, IPVersion: p.ClientInfo.IPVersion, Release: p.ClientInfo.Release,
			Version: p.ClientInfo.Version, OS: p.ClientInfo.OS, OSVersion: p.ClientInfo.OSVersion,
			CertHash: p.ClientInfo.CertHash,
		},
	})
	if err != nil {
		return rpc.AuthResult{Success: false, Reject: rpc.RejectWrongUserPW}, nil
	}
	if p.ClientInfo.CertHash != "" {
		s.coord.ReportCertHash(p.Username, p.ClientInfo.CertHash)
	}
	return rpc.AuthResult{
		Success: result.Success, Reject: rpc.RejectType(result.Reject), UserID: result.UserID,
		Username: result.Username, DisplayName: result.DisplayName, Groups: result.Groups,
	}, nil
}

// handleACL relays one Edge's client ACL query/write onto the
// authoritative tree (§4.9). Writes require PermissionWrite at the
// target channel; user_id 0 is the reserved SuperUser shortcut
// (§3 User "user_id == 0 is SuperUser").
func (s *Server) handleACL(p rpc.EdgeHandleACLParams) (rpc.EdgeHandleACLResult, error) {
	raw, err := base64.StdEncoding.DecodeString(p.RawData)
	if err != nil {
		return rpc.EdgeHandleACLResult{Error: "malformed acl payload"}, nil
	}
	msg, err := mumbleproto.Decode(mumbleproto.TypeACL, raw)
	if err != nil {
		return rpc.EdgeHandleACLResult{Error: "malformed acl message"}, nil
	}
	aclMsg, ok := msg.(*mumbleproto.ACL)
	if !ok {
		return rpc.EdgeHandleACLResult{Error: "not an ACL message"}, nil
	}

	subject := acl.Subject{UserID: uint32(p.ActorUserID), ChannelID: p.ChannelID, SuperUser: p.ActorUserID == 0}

	if !s.evalu.HasPermission(p.ActorSession, p.ChannelID, subject, model.PermissionWrite) {
		return rpc.EdgeHandleACLResult{Success: false, PermissionDenied: true}, nil
	}

	if p.Query {
		return s.encodeACLQuery(p.ChannelID), nil
	}

	entries := make([]database.ACLEntry, 0, len(aclMsg.ACLs))
	for _, e := range aclMsg.ACLs {
		entries = append(entries, database.ACLEntry{
			ChannelID: p.ChannelID, UserID: e.UserId, Group: e.Group,
			ApplyHere: derefB(e.ApplyHere), ApplySubs: derefB(e.ApplySubs),
			Allow: uint64(derefU32(e.Allow)), Deny: uint64(derefU32(e.Deny)),
		})
	}
	var groups []struct {
		Group   database.Group
		Members []database.GroupMember
	}
	for _, g := range aclMsg.Groups {
		var members []database.GroupMember
		name := derefS(g.Name)
		for _, uid := range g.Add {
			members = append(members, database.GroupMember{ChannelID: p.ChannelID, GroupName: name, UserID: uid, Kind: database.GroupMemberAdd})
		}
		for _, uid := range g.Remove {
			members = append(members, database.GroupMember{ChannelID: p.ChannelID, GroupName: name, UserID: uid, Kind: database.GroupMemberRemove})
		}
		groups = append(groups, struct {
			Group   database.Group
			Members []database.GroupMember
		}{
			Group:   database.Group{ChannelID: p.ChannelID, Name: name, Inherit: derefB(g.Inherit), Inheritable: derefB(g.Inheritable)},
			Members: members,
		})
	}

	if err := s.tree.WriteACL(p.ChannelID, entries, groups); err != nil {
		return rpc.EdgeHandleACLResult{Error: err.Error()}, nil
	}
	s.evalu.Invalidate()
	s.notifyACLUpdated(p.ChannelID)

	return rpc.EdgeHandleACLResult{Success: true}, nil
}

// encodeACLQuery builds the wire ACL message answering a query (§4.9):
// the channel's current ACL entries and group definitions, as the
// client's own next-hop ACL dialog would display them.
func (s *Server) encodeACLQuery(channelID uint32) rpc.EdgeHandleACLResult {
	ch, ok := s.tree.Channel(channelID)
	if !ok {
		return rpc.EdgeHandleACLResult{Error: "unknown channel"}
	}

	out := &mumbleproto.ACL{ChannelId: u32p(channelID), InheritACLs: boolp(ch.InheritACL), Query: boolp(true)}
	for _, e := range ch.ACL {
		allow := uint32(e.Allow)
		deny := uint32(e.Deny)
		out.ACLs = append(out.ACLs, &mumbleproto.ACLEntryWire{
			UserId: e.UserID, Group: strp(e.Group), ApplyHere: boolp(e.ApplyHere),
			ApplySubs: boolp(e.ApplySubs), Allow: &allow, Deny: &deny,
		})
	}
	for name, g := range ch.Groups {
		out.Groups = append(out.Groups, &mumbleproto.ACLGroupWire{
			Name: strp(name), Inherit: boolp(g.Inherit), Inheritable: boolp(g.Inheritable),
			Add: fromSet(g.Add), Remove: fromSet(g.Remove),
		})
	}

	return rpc.EdgeHandleACLResult{Success: true, RawData: base64.StdEncoding.EncodeToString(mumbleproto.Encode(out))}
}

func (s *Server) handleFullSync() rpc.EdgeFullSyncResult {
	channels, _ := rpc.EncodeParams(s.tree.ChannelSnapshot())
	acls, _ := rpc.EncodeParams(s.tree.ACLSnapshot())
	sessions, _ := rpc.EncodeParams(s.sessions.Snapshot())

	var edges []rpc.PeerInfo
	for _, e := range s.registry.All() {
		edges = append(edges, rpc.PeerInfo{ID: e.ID, Host: e.Host, VoicePort: e.VoicePort})
	}

	return rpc.EdgeFullSyncResult{
		Channels: channels, ACLs: acls, Sessions: sessions,
		Timestamp: time.Now().Unix(), Edges: edges,
	}
}

// handleReportPeerDisconnect decides whether the reporting Edge should
// wait out its reconnect window or tear down local clients now (§4.15
// "peer reconnect window 3s before the Edge asks the Hub whether to
// disconnect or wait"). The remote Edge is considered still reachable
// if its registry entry has not yet passed the heartbeat deadline.
func (s *Server) handleReportPeerDisconnect(p rpc.EdgeReportPeerDisconnectParams) rpc.EdgeReportPeerDisconnectResult {
	if info, ok := s.registry.Get(p.RemoteEdgeID); ok {
		if time.Since(info.LastHeartbeat) < s.heartbeatDeadline() {
			return rpc.EdgeReportPeerDisconnectResult{Action: rpc.PeerDisconnectWait}
		}
	}
	return rpc.EdgeReportPeerDisconnectResult{Action: rpc.PeerDisconnectDisconnect}
}

func (s *Server) heartbeatDeadline() time.Duration {
	if s.cfg.HeartbeatDeadline > 0 {
		return s.cfg.HeartbeatDeadline
	}
	return 90 * time.Second
}

// expiryLoop periodically drops Edges whose heartbeat has lapsed,
// reclaiming their sessions and telling the remaining Edges they left
// (§3, §5 "heartbeat deadline 90s").
func (s *Server) expiryLoop(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range s.registry.Expired(time.Now(), s.heartbeatDeadline()) {
				s.dropEdge(id)
			}
		}
	}
}

func (s *Server) dropEdge(edgeID string) {
	s.registry.Unregister(edgeID)
	s.edgesMu.Lock()
	delete(s.edges, edgeID)
	s.edgesMu.Unlock()

	for _, sessionID := range s.sessions.RemoveAllOnEdge(edgeID) {
		s.notifyRemoteUserLeft(sessionID)
	}
	s.notifyPeerLeft(edgeID)
}

// notifyPeerJoined tells every other connected Edge about a freshly
// joined peer so they can register its voice endpoint (§4.14, §4.15).
func (s *Server) notifyPeerJoined(edgeID, host string, voicePort int) {
	s.broadcastExcept(edgeID, rpc.NotifyEdgePeerJoined, rpc.NotifyPeerJoinedParams{
		Peer: rpc.PeerInfo{ID: edgeID, Host: host, VoicePort: voicePort},
	})
}

func (s *Server) notifyPeerLeft(edgeID string) {
	s.broadcastExcept(edgeID, rpc.NotifyEdgePeerLeft, rpc.NotifyPeerLeftParams{EdgeID: edgeID})
}

func (s *Server) notifyACLUpdated(channelID uint32) {
	s.broadcastExcept("", rpc.NotifyEdgeACLUpdated, rpc.NotifyACLUpdatedParams{ChannelID: channelID})
}

func (s *Server) notifyRemoteUserJoined(edgeID string, sessionID, channelID uint32) {
	s.broadcastExcept(edgeID, rpc.NotifyUserRemoteUserJoined, rpc.RemoteUserJoinedParams{
		SessionID: sessionID, EdgeID: edgeID, ChannelID: channelID,
	})
}

func (s *Server) notifyRemoteUserLeft(sessionID uint32) {
	s.broadcastExcept("", rpc.NotifyUserRemoteUserLeft, rpc.RemoteUserLeftParams{SessionID: sessionID})
}

// broadcastExcept notifies every connected Edge but excludeID (empty
// excludes none) of a Hub-originated event.
func (s *Server) broadcastExcept(excludeID, method string, params interface{}) {
	s.edgesMu.RLock()
	defer s.edgesMu.RUnlock()
	for id, e := range s.edges {
		if id == excludeID {
			continue
		}
		if err := e.conn.Notify(method, params); err != nil {
			s.log.Debug().Err(err).Str("edge", id).Str("method", method).Msg("hub: notifying edge failed")
		}
	}
}

func derefB(b *bool) bool {
	if b == nil {
		return false
	}
	return *b
}
func derefU32(v *uint32) uint32 {
	if v == nil {
		return 0
	}
	return *v
}
func derefS(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
func u32p(v uint32) *uint32 { return &v }
func boolp(v bool) *bool    { return &v }
func strp(v string) *string { return &v }
