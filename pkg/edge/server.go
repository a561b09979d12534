package edge

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"mumble.info/grumble/pkg/acl"
	"mumble.info/grumble/pkg/cluster"
	"mumble.info/grumble/pkg/config"
	"mumble.info/grumble/pkg/model"
	"mumble.info/grumble/pkg/mumbleproto"
	"mumble.info/grumble/pkg/ratelimit"
	"mumble.info/grumble/pkg/rpc"
	"mumble.info/grumble/pkg/session"
	"mumble.info/grumble/pkg/voice"
)

// Server is one Edge node: the client-facing TLS/UDP listeners, the
// local session table and channel mirror, and the Hub RPC connection
// that keeps both current (§4.7, §4.14, §4.15).
type Server struct {
	log    zerolog.Logger
	cfg    config.EdgeConfig
	edgeID string

	sessions *session.Registry
	tree     *LocalTree
	acl      *acl.Evaluator
	router   *voice.Router
	remote   *cluster.RemoteDirectory

	textLimiter *ratelimit.TextLimiter
	autoban     *ratelimit.AutoBan

	peerVoice *PeerVoice
	lifecycle *cluster.Lifecycle

	hubMu     sync.RWMutex
	hubConn   *rpc.Conn
	joinToken string

	clientsMu sync.RWMutex
	clients   map[uint32]*Client

	tlsConfig *tls.Config
	listener  net.Listener

	// udpConn will back the direct client<->edge OCB2 voice path once
	// wired; today all client voice travels tunneled over the control
	// stream (Client.handleTunneledVoice), which every Mumble client
	// already falls back to.
	udpConn *net.UDPConn
}

// NewServer builds an Edge server from its configuration and TLS
// identity. voiceKey seeds the Edge<->Edge voice envelope; plaintext
// disables it for trusted, operator-isolated transit.
func NewServer(log zerolog.Logger, cfg config.EdgeConfig, tlsConfig *tls.Config, voiceKey []byte, plaintextPeerVoice bool) (*Server, error) {
	peerVoice, err := NewPeerVoice(log, voiceKey, plaintextPeerVoice)
	if err != nil {
		return nil, fmt.Errorf("edge: building peer voice: %w", err)
	}

	tree := NewLocalTree()
	sessions := session.New()
	remote := cluster.NewRemoteDirectory()
	evaluator := acl.New(tree)
	router := voice.NewRouter(cfg.ServerID, sessions, tree, evaluator, remote)

	s := &Server{
		log:         log,
		cfg:         cfg,
		edgeID:      cfg.ServerID,
		sessions:    sessions,
		tree:        tree,
		acl:         evaluator,
		router:      router,
		remote:      remote,
		textLimiter: ratelimit.NewTextLimiter(3, 10),
		autoban:     ratelimit.NewAutoBan(10, time.Minute, 10*time.Minute, false),
		peerVoice:   peerVoice,
		tlsConfig:   tlsConfig,
		clients:     make(map[uint32]*Client),
	}

	transport := newHubTransport(log, s, rpc.EdgeJoinParams{
		ServerID:  cfg.ServerID,
		Name:      cfg.Name,
		Host:      cfg.Host,
		Port:      cfg.Port,
		VoicePort: cfg.VoicePort,
		Capacity:  cfg.Capacity,
	}, func(ctx context.Context) (*rpc.Conn, error) {
		return dialHub(ctx, log, fmt.Sprintf("%s:%d", cfg.HubHost, cfg.HubPort), tlsConfig)
	})
	s.lifecycle = cluster.NewLifecycle(log, transport, peerVoice)
	s.lifecycle.SetTimings(cfg.ReconnectInterval, cfg.ReconnectWindow, cfg.RejoinDelay)

	return s, nil
}

// Run starts the control/voice listeners and the Hub join sequence,
// blocking until ctx is canceled or a listener fails (§4.7, §4.15).
func (s *Server) Run(ctx context.Context) error {
	listener, err := tls.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port), s.tlsConfig)
	if err != nil {
		return fmt.Errorf("edge: listening on %s:%d: %w", s.cfg.Host, s.cfg.Port, err)
	}
	s.listener = listener
	defer listener.Close()

	if err := s.lifecycle.Start(ctx); err != nil {
		return fmt.Errorf("edge: joining hub: %w", err)
	}

	go s.acceptLoop(ctx)
	go s.heartbeatLoop(ctx)

	<-ctx.Done()
	return ctx.Err()
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.log.Warn().Err(err).Msg("edge: control accept failed")
				continue
			}
		}
		client := newClient(s, conn)
		go client.serve(ctx)
	}
}

func (s *Server) heartbeatLoop(ctx context.Context) {
	period := s.cfg.HeartbeatPeriod
	if period <= 0 {
		period = 10 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.hubMu.RLock()
			conn := s.hubConn
			s.hubMu.RUnlock()
			if conn == nil {
				continue
			}
			hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := conn.Call(hctx, rpc.MethodEdgeHeartbeat, rpc.EdgeHeartbeatParams{
				ServerID: s.cfg.ServerID,
				Stats:    rpc.EdgeStats{Clients: s.sessions.Len()},
			}, &rpc.EdgeHeartbeatResult{}); err != nil {
				s.log.Warn().Err(err).Msg("edge: heartbeat failed")
			}
			cancel()
		}
	}
}

// bindHubNotifications wires the Hub->Edge notification methods into a
// freshly dialed connection (§4.14, §4.15, §4.16).
func (s *Server) bindHubNotifications(conn *rpc.Conn) {
	s.hubMu.Lock()
	s.hubConn = conn
	s.hubMu.Unlock()

	conn.HandleNotification(rpc.NotifyEdgePeerJoined, func(raw []byte) {
		var params rpc.NotifyPeerJoinedParams
		if err := rpc.DecodeParams(raw, &params); err != nil {
			return
		}
		peer := &cluster.EdgeInfo{ID: params.Peer.ID, Host: params.Peer.Host, VoicePort: params.Peer.VoicePort}
		if err := s.lifecycle.PeerJoined(context.Background(), peer); err != nil {
			s.log.Warn().Err(err).Str("peer", peer.ID).Msg("edge: adding joined peer's voice endpoint failed")
		}
	})

	conn.HandleNotification(rpc.NotifyEdgePeerLeft, func(raw []byte) {
		var params rpc.NotifyPeerLeftParams
		if err := rpc.DecodeParams(raw, &params); err != nil {
			return
		}
		s.lifecycle.PeerLeft(params.EdgeID)
	})

	conn.HandleNotification(rpc.NotifyEdgeForceDisconnect, func(raw []byte) {
		if err := s.lifecycle.ForceDisconnect(context.Background(), s.disconnectAllClients); err != nil {
			s.log.Warn().Err(err).Msg("edge: force-disconnect rejoin failed")
		}
	})

	conn.HandleNotification(rpc.NotifyEdgeACLUpdated, func(raw []byte) {
		var params rpc.NotifyACLUpdatedParams
		if err := rpc.DecodeParams(raw, &params); err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		var full rpc.EdgeFullSyncResult
		if err := conn.Call(ctx, rpc.MethodEdgeFullSync, struct{}{}, &full); err != nil {
			s.log.Warn().Err(err).Msg("edge: re-pulling acl snapshot failed")
		} else if err := s.applyFullSync(full); err != nil {
			s.log.Warn().Err(err).Msg("edge: applying acl snapshot failed")
		}
		cancel()
		s.acl.Invalidate()
		s.refreshSuppressed(params.ChannelID)
	})

	conn.HandleNotification(rpc.NotifyUserRemoteUserJoined, func(raw []byte) {
		var params rpc.RemoteUserJoinedParams
		if err := rpc.DecodeParams(raw, &params); err != nil {
			return
		}
		s.remote.Joined(params.SessionID, params.EdgeID, params.ChannelID)
	})

	conn.HandleNotification(rpc.NotifyUserRemoteUserLeft, func(raw []byte) {
		var params rpc.RemoteUserLeftParams
		if err := rpc.DecodeParams(raw, &params); err != nil {
			return
		}
		s.remote.Left(params.SessionID)
	})

	conn.HandleNotification(rpc.NotifyUserRemoteUserStateChg, func(raw []byte) {
		var params rpc.RemoteUserStateChangedParams
		if err := rpc.DecodeParams(raw, &params); err != nil {
			return
		}
		s.remote.StateChanged(params.SessionID, params.ChannelID)
	})
}

// refreshSuppressed recomputes Mute.Suppress for every locally-connected
// session in channelID after an ACL change there, and broadcasts a
// UserState delta for each session whose suppress state flipped
// (§4.13 Testable Property #6). The notification this runs from is
// already fanned out by the Hub to every Edge, so running this at each
// Edge for its own local sessions reaches every authenticated client
// cluster-wide.
func (s *Server) refreshSuppressed(channelID uint32) {
	for _, sid := range s.sessions.InChannel(channelID) {
		sess, ok := s.sessions.Get(sid)
		if !ok {
			continue
		}
		subject := acl.Subject{UserID: sess.UserID, CertHash: sess.CertHash, ChannelID: sess.ChannelID, SuperUser: sess.IsSuperUser()}
		suppress := !s.acl.HasPermission(sess.Session, channelID, subject, model.PermissionSpeak) && !sess.Mute.SelfMute
		if suppress == sess.Mute.Suppress {
			continue
		}
		sess.Mute.Suppress = suppress
		s.broadcastAll(userStateOf(sess))
	}
}

// applyFullSync decodes the Hub's channel/ACL snapshot tables into the
// local mirror (§4.14 `edge.fullSync`).
func (s *Server) applyFullSync(result rpc.EdgeFullSyncResult) error {
	var channels rpc.ChannelTable
	if len(result.Channels) > 0 {
		if err := msgpack.Unmarshal(result.Channels, &channels); err != nil {
			return fmt.Errorf("edge: decoding channel snapshot: %w", err)
		}
	}
	var acls rpc.ACLTable
	if len(result.ACLs) > 0 {
		if err := msgpack.Unmarshal(result.ACLs, &acls); err != nil {
			return fmt.Errorf("edge: decoding acl snapshot: %w", err)
		}
	}

	s.tree.ApplyChannelTable(channels)
	s.tree.ApplyACLTable(acls)
	s.acl.Invalidate()
	return nil
}

// authenticate relays a client's credentials to the Hub's
// edge.authenticateUser RPC (§4.8).
func (s *Server) authenticate(ctx context.Context, remoteIP, certHash, username, password string, tokens []string) (*rpc.AuthResult, error) {
	s.hubMu.RLock()
	conn := s.hubConn
	s.hubMu.RUnlock()
	if conn == nil {
		return nil, fmt.Errorf("edge: not connected to hub")
	}

	var result rpc.AuthResult
	err := conn.Call(ctx, rpc.MethodEdgeAuthenticateUser, rpc.EdgeAuthenticateUserParams{
		ServerID: s.cfg.ServerID,
		Username: username,
		Password: password,
		Tokens:   tokens,
		ClientInfo: rpc.ClientInfo{
			IP:       remoteIP,
			CertHash: certHash,
		},
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// handleACL relays one client ACL query/write to the Hub's
// authoritative edge.handleACL RPC (§4.9).
func (s *Server) handleACL(ctx context.Context, actor *model.Session, channelID uint32, query bool, rawData string) (*rpc.EdgeHandleACLResult, error) {
	s.hubMu.RLock()
	conn := s.hubConn
	s.hubMu.RUnlock()
	if conn == nil {
		return nil, fmt.Errorf("edge: not connected to hub")
	}

	var result rpc.EdgeHandleACLResult
	err := conn.Call(ctx, rpc.MethodEdgeHandleACL, rpc.EdgeHandleACLParams{
		EdgeID:        s.edgeID,
		ActorSession:  actor.Session,
		ActorUserID:   int32(actor.UserID),
		ActorUsername: actor.Username,
		ChannelID:     channelID,
		Query:         query,
		RawData:       rawData,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// updateListening relays a session's listening-channel add/remove to
// the Hub's edge.updateListening RPC, which enforces the cluster-wide
// ListenersPerChannel/ListenersPerUser caps (§4.11) before any Edge
// applies the subscription locally.
func (s *Server) updateListening(ctx context.Context, sess *model.Session, add, remove []uint32) ([]uint32, error) {
	s.hubMu.RLock()
	conn := s.hubConn
	s.hubMu.RUnlock()
	if conn == nil {
		return nil, fmt.Errorf("edge: not connected to hub")
	}

	var result rpc.EdgeUpdateListeningResult
	err := conn.Call(ctx, rpc.MethodEdgeUpdateListening, rpc.EdgeUpdateListeningParams{
		EdgeID:    s.edgeID,
		SessionID: sess.Session,
		UserID:    int32(sess.UserID),
		Add:       add,
		Remove:    remove,
	}, &result)
	if err != nil {
		return nil, err
	}
	return result.Granted, nil
}

// allocateSessionID requests a cluster-unique session id from the Hub
// (§4.14 `edge.allocateSessionId`).
func (s *Server) allocateSessionID(ctx context.Context) (uint32, error) {
	s.hubMu.RLock()
	conn := s.hubConn
	s.hubMu.RUnlock()
	if conn == nil {
		return 0, fmt.Errorf("edge: not connected to hub")
	}

	var result rpc.EdgeAllocateSessionIDResult
	if err := conn.Call(ctx, rpc.MethodEdgeAllocateSessionID, rpc.EdgeAllocateSessionIDParams{EdgeID: s.edgeID}, &result); err != nil {
		return 0, err
	}
	return result.SessionID, nil
}

// notifyHubSessionJoined reports a newly authenticated local session so
// the Hub can mirror it into every other Edge's remote directory
// (§4.14 `edge.reportSession`, §4.16).
func (s *Server) notifyHubSessionJoined(ctx context.Context, sess *model.Session) error {
	s.hubMu.RLock()
	conn := s.hubConn
	s.hubMu.RUnlock()
	if conn == nil {
		return nil
	}
	return conn.Notify(rpc.MethodEdgeReportSession, rpc.EdgeReportSessionParams{
		SessionID: sess.Session,
		UserID:    int32(sess.UserID),
		Username:  sess.Username,
		ChannelID: sess.ChannelID,
		StartTime: time.Now().Unix(),
		IPAddress: sess.IP,
		CertHash:  sess.CertHash,
	})
}

// notifyHubSessionStateChanged and notifyHubSessionLeft are no-ops:
// the Hub<->Edge contract only defines an explicit join report
// (`edge.reportSession`). The Hub's session directory is not told when
// a local session moves or leaves; the Hub drops a session only when
// the session's Edge expires from its registry.
func (s *Server) notifyHubSessionStateChanged(ctx context.Context, sess *model.Session) error {
	return nil
}

func (s *Server) notifyHubSessionLeft(ctx context.Context, sessionID uint32) error {
	return nil
}

// registerClient records a freshly authenticated client under its
// allocated session id so broadcasts and routed voice can reach it.
func (s *Server) registerClient(sessionID uint32, c *Client) {
	s.clientsMu.Lock()
	s.clients[sessionID] = c
	s.clientsMu.Unlock()
}

// removeClient drops a disconnected client's bookkeeping.
func (s *Server) removeClient(sessionID uint32) {
	s.clientsMu.Lock()
	delete(s.clients, sessionID)
	s.clientsMu.Unlock()
}

// disconnectAllClients forcibly closes every local client, used by
// forceDisconnect and by the reconnect-window timeout (§4.15).
func (s *Server) disconnectAllClients() {
	s.clientsMu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.Unlock()

	for _, c := range clients {
		c.disconnect("edge lost contact with hub")
	}
}

// sendToSession delivers a control message to one locally-connected
// session, if present.
func (s *Server) sendToSession(sessionID uint32, msg mumbleproto.Message) {
	s.clientsMu.RLock()
	c, ok := s.clients[sessionID]
	s.clientsMu.RUnlock()
	if !ok {
		return
	}
	if err := c.send(msg); err != nil {
		s.log.Debug().Err(err).Uint32("session", sessionID).Msg("edge: sending to session failed")
	}
}

// broadcastAll sends msg to every locally-connected session.
func (s *Server) broadcastAll(msg mumbleproto.Message) {
	s.clientsMu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range clients {
		if err := c.send(msg); err != nil {
			s.log.Debug().Err(err).Msg("edge: broadcast send failed")
		}
	}
}

// broadcastExcept sends msg to every locally-connected session but one.
func (s *Server) broadcastExcept(exceptSession uint32, msg mumbleproto.Message) {
	s.clientsMu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for id, c := range s.clients {
		if id == exceptSession {
			continue
		}
		clients = append(clients, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range clients {
		if err := c.send(msg); err != nil {
			s.log.Debug().Err(err).Msg("edge: broadcast send failed")
		}
	}
}

// routeVoice resolves and delivers one voice datagram from a local
// sender: local recipients get the raw tunneled/UDP frame, peer Edges
// get it wrapped in the Edge<->Edge envelope (§4.10).
func (s *Server) routeVoice(sender *model.Session, pkt *mumbleproto.VoicePacket, rawPayload []byte) {
	plan := s.router.Route(sender, pkt.Target)

	for _, recipient := range plan.Local {
		s.clientsMu.RLock()
		c, ok := s.clients[recipient]
		s.clientsMu.RUnlock()
		if !ok {
			continue
		}
		if err := c.sendVoice(rawPayload); err != nil {
			s.log.Debug().Err(err).Uint32("session", recipient).Msg("edge: forwarding voice to local session failed")
		}
	}

	header := mumbleproto.EdgeVoiceHeader{Version: 1, SenderID: sender.Session, Sequence: uint32(pkt.Sequence), Codec: uint8(pkt.Codec)}
	for _, fwd := range plan.Forward {
		h := header
		if fwd.IsSession {
			h.TargetID = fwd.SessionID
		} else {
			h.TargetID = fwd.ChannelID
		}
		if err := s.peerVoice.Send(fwd.EdgeID, h, rawPayload); err != nil {
			s.log.Debug().Err(err).Str("peer", fwd.EdgeID).Msg("edge: forwarding voice to peer failed")
		}
	}
}
