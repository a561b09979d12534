package edge

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"html"
	"io"
	"net"
	"sync"
	"time"

	"mumble.info/grumble/pkg/acl"
	"mumble.info/grumble/pkg/cryptstate"
	"mumble.info/grumble/pkg/framing"
	"mumble.info/grumble/pkg/model"
	"mumble.info/grumble/pkg/mumbleproto"
	"mumble.info/grumble/pkg/ratelimit"
	"mumble.info/grumble/pkg/tlsutil"
)

// connState mirrors the teacher's Client.state machine: a fresh
// connection exchanges Version, then Authenticate, before being
// admitted to the ready state where ordinary control messages and the
// UDP tunnel flow (§4.7).
type connState int

const (
	stateConnected connState = iota
	stateServerSentVersion
	stateClientSentVersion
	stateReady
)

// Client is one local client's connection: the TLS control stream plus
// everything the Edge tracks about it beyond the shared model.Session
// (§3 Session, §4.7).
type Client struct {
	server *Server
	conn   net.Conn

	writeMu sync.Mutex
	state   connState

	session *model.Session
	crypt   *cryptstate.State

	bandwidth *ratelimit.BandwidthRecorder
	ping      *ratelimit.PingTracker

	clientVersion uint32
	supportsOpus  bool

	disconnectOnce sync.Once
}

func newClient(server *Server, conn net.Conn) *Client {
	return &Client{
		server:    server,
		conn:      conn,
		state:     stateConnected,
		crypt:     cryptstate.New(),
		bandwidth: ratelimit.NewBandwidthRecorder(20 * time.Second),
		ping:      &ratelimit.PingTracker{},
	}
}

// serve drives the connection from initial handshake through to
// disconnect; it returns once the connection is no longer usable.
func (c *Client) serve(ctx context.Context) {
	defer c.disconnect("connection closed")

	if err := c.sendServerVersion(); err != nil {
		c.server.log.Debug().Err(err).Msg("edge: sending version handshake failed")
		return
	}

	for {
		frame, err := framing.ReadFrame(c.conn)
		if err != nil {
			if err != io.EOF {
				c.server.log.Debug().Err(err).Msg("edge: control read failed")
			}
			return
		}

		if frame.Type == mumbleproto.TypeUDPTunnel {
			c.handleTunneledVoice(frame.Payload)
			continue
		}

		msg, err := mumbleproto.Decode(frame.Type, frame.Payload)
		if err != nil {
			c.server.log.Debug().Err(err).Msg("edge: malformed control message")
			return
		}

		if err := c.dispatch(ctx, frame.Type, msg); err != nil {
			c.server.log.Debug().Err(err).Msg("edge: handling control message failed")
			return
		}
	}
}

func (c *Client) sendServerVersion() error {
	v := &mumbleproto.Version{
		VersionV2:   u64p(1<<48 | 4<<24 | 230<<8),
		Release:     strp("grumble-cluster"),
		CryptoModes: []string{"OCB2-AES128"},
	}
	c.state = stateServerSentVersion
	return c.send(v)
}

func (c *Client) dispatch(ctx context.Context, typ uint16, msg mumbleproto.Message) error {
	switch c.state {
	case stateServerSentVersion:
		v, ok := msg.(*mumbleproto.Version)
		if !ok {
			return fmt.Errorf("edge: expected Version, got type %d", typ)
		}
		if v.VersionV2 != nil {
			c.clientVersion = uint32(*v.VersionV2 >> 16)
		}
		c.state = stateClientSentVersion
		return nil

	case stateClientSentVersion:
		auth, ok := msg.(*mumbleproto.Authenticate)
		if !ok {
			return fmt.Errorf("edge: expected Authenticate, got type %d", typ)
		}
		return c.authenticate(ctx, auth)

	case stateReady:
		return c.handleReady(typ, msg)
	}
	return fmt.Errorf("edge: unexpected message type %d in state %d", typ, c.state)
}

// authenticate calls the Hub's edge.authenticateUser RPC, then — on
// success — runs the §4.7 post-auth broadcast sequence: CryptSetup,
// CodecVersion, the channel tree root-down, every other session's
// UserState, this session's own UserState, ServerSync, and finally this
// session announced to everyone else.
func (c *Client) authenticate(ctx context.Context, authMsg *mumbleproto.Authenticate) error {
	remoteIP, _, _ := net.SplitHostPort(c.conn.RemoteAddr().String())
	certHash := ""
	if tlsConn, ok := c.conn.(*tls.Conn); ok {
		certHash, _ = tlsutil.PeerCertHash(tlsConn.ConnectionState())
	}

	username := derefStr(authMsg.Username)
	password := derefStr(authMsg.Password)

	result, err := c.server.authenticate(ctx, remoteIP, certHash, username, password, authMsg.Tokens)
	if err != nil || !result.Success {
		reject := mumbleproto.RejectWrongUserPW
		if result != nil {
			reject = mumbleproto.RejectType(result.Reject)
		}
		c.send(&mumbleproto.Reject{Type: &reject, Reason: strp("authentication failed")})
		if c.server.autoban != nil {
			c.server.autoban.RecordFailure(remoteIP, time.Now())
		}
		return fmt.Errorf("edge: authentication rejected for %s", username)
	}
	if c.server.autoban != nil {
		c.server.autoban.RecordSuccess(remoteIP, time.Now())
	}

	sessionID, err := c.server.allocateSessionID(ctx)
	if err != nil {
		return err
	}

	sess := &model.Session{
		Session:           sessionID,
		UserID:            uint32(result.UserID),
		Username:          username,
		ChannelID:         c.server.tree.Root(),
		EdgeID:            c.server.edgeID,
		ListeningChannels: map[uint32]struct{}{},
		VoiceTargets:      map[uint32]*model.VoiceTarget{},
		IP:                remoteIP,
		CertHash:          certHash,
		LastActive:        time.Now(),
	}
	sess.SetSuperUser(hasSuperUserGroup(result.Groups))
	c.session = sess
	c.server.sessions.Add(sess)
	c.server.registerClient(sess.Session, c)
	c.server.acl.Invalidate()

	if err := c.crypt.GenerateKey(); err != nil {
		return err
	}
	if err := c.send(&mumbleproto.CryptSetup{
		Key:         c.crypt.Key(),
		ClientNonce: c.crypt.DecryptIV(),
		ServerNonce: c.crypt.EncryptIV(),
	}); err != nil {
		return err
	}

	if err := c.send(&mumbleproto.CodecVersion{Alpha: i32p(-2147483637), PreferAlpha: boolp(true), Opus: boolp(true)}); err != nil {
		return err
	}

	if err := c.sendChannelTree(c.server.tree.Root()); err != nil {
		return err
	}
	for _, other := range c.server.sessions.All() {
		if other.Session == sess.Session {
			continue
		}
		if err := c.send(userStateOf(other)); err != nil {
			return err
		}
	}
	if err := c.send(userStateOf(sess)); err != nil {
		return err
	}
	if err := c.send(&mumbleproto.ServerSync{
		Session:      u32p(sess.Session),
		MaxBandwidth: u32p(uint32(c.server.cfg.MaxBandwidthBps)),
		WelcomeText:  strp("Welcome to the cluster."),
		Permissions:  u64p(uint64(model.DefaultPermissions)),
	}); err != nil {
		return err
	}

	c.server.broadcastExcept(sess.Session, userStateOf(sess))
	_ = c.server.notifyHubSessionJoined(ctx, sess)

	c.state = stateReady
	return nil
}

func (c *Client) handleReady(typ uint16, msg mumbleproto.Message) error {
	c.session.MarkActive(time.Now())

	switch m := msg.(type) {
	case *mumbleproto.Ping:
		return c.handlePing(m)
	case *mumbleproto.TextMessage:
		return c.handleTextMessage(m)
	case *mumbleproto.UserState:
		return c.handleUserState(m)
	case *mumbleproto.VoiceTarget:
		return c.handleVoiceTarget(m)
	case *mumbleproto.ACL:
		return c.handleACLMessage(m)
	case *mumbleproto.ChannelRemove:
		return nil // authoritative deletion lives on the Hub; no-op here
	default:
		return nil // decoded but not acted on (QueryUsers, RequestBlob, etc.)
	}
}

func (c *Client) handlePing(m *mumbleproto.Ping) error {
	return c.send(&mumbleproto.Ping{
		Timestamp:  m.Timestamp,
		UdpPingAvg: f32p(c.ping.Average()),
	})
}

// handleTextMessage sanitizes and fans a chat message out to its
// session/channel/tree targets (§9 allowHTML resolved to false: the
// text is HTML-escaped so tags arrive as literal text rather than
// being interpreted, per DESIGN.md).
func (c *Client) handleTextMessage(m *mumbleproto.TextMessage) error {
	if !c.server.textLimiter.Allow(c.session.Session) {
		return nil
	}
	text := html.EscapeString(derefStr(m.Message))

	out := &mumbleproto.TextMessage{
		Actor:     u32p(c.session.Session),
		Session:   m.Session,
		ChannelId: m.ChannelId,
		TreeId:    m.TreeId,
		Message:   &text,
	}

	for _, target := range m.Session {
		c.server.sendToSession(target, out)
	}
	for _, chanID := range m.ChannelId {
		for _, sid := range c.server.sessions.InChannel(chanID) {
			c.server.sendToSession(sid, out)
		}
	}
	for _, treeID := range m.TreeId {
		for _, chanID := range append([]uint32{treeID}, c.server.tree.Descendants(treeID)...) {
			for _, sid := range c.server.sessions.InChannel(chanID) {
				c.server.sendToSession(sid, out)
			}
		}
	}
	return nil
}

func (c *Client) handleUserState(m *mumbleproto.UserState) error {
	if m.SelfMute != nil {
		c.session.Mute.SelfMute = *m.SelfMute
	}
	if m.SelfDeaf != nil {
		c.session.Mute.SelfDeaf = *m.SelfDeaf
	}
	if m.ChannelId != nil {
		if !c.server.acl.HasPermission(c.session.Session, *m.ChannelId, c.subject(), model.PermissionEnter) {
			c.server.sendToSession(c.session.Session, &mumbleproto.PermissionDenied{Type: denyType(mumbleproto.DenyPermission)})
			return nil
		}
		c.server.sessions.Move(c.session.Session, *m.ChannelId)
		c.session.ChannelID = *m.ChannelId
	}
	if len(m.ListeningChannelAdd) > 0 || len(m.ListeningChannelRemove) > 0 {
		c.applyListeningChanges(m.ListeningChannelAdd, m.ListeningChannelRemove)
	}
	c.server.acl.Invalidate()
	c.server.broadcastAll(userStateOf(c.session))
	_ = c.server.notifyHubSessionStateChanged(context.Background(), c.session)
	return nil
}

// applyListeningChanges handles UserState.ListeningChannelAdd/Remove
// (§4.11): each added channel requires Listen permission and is then
// subject to the Hub's cluster-wide listener caps; removals need no
// permission and always succeed.
func (c *Client) applyListeningChanges(add, remove []uint32) {
	for _, channelID := range remove {
		if _, listening := c.session.ListeningChannels[channelID]; !listening {
			continue
		}
		delete(c.session.ListeningChannels, channelID)
		c.server.sessions.SetListening(c.session.Session, channelID, false)
	}

	var requested []uint32
	for _, channelID := range add {
		if _, already := c.session.ListeningChannels[channelID]; already {
			continue
		}
		if !c.server.acl.HasPermission(c.session.Session, channelID, c.subject(), model.PermissionListen) {
			c.server.sendToSession(c.session.Session, &mumbleproto.PermissionDenied{Type: denyType(mumbleproto.DenyPermission)})
			continue
		}
		requested = append(requested, channelID)
	}
	if len(requested) == 0 {
		return
	}

	granted, err := c.server.updateListening(context.Background(), c.session, requested, nil)
	if err != nil {
		c.server.log.Debug().Err(err).Msg("edge: hub listener cap check failed")
		return
	}
	for _, channelID := range granted {
		c.session.ListeningChannels[channelID] = struct{}{}
		c.server.sessions.SetListening(c.session.Session, channelID, true)
	}
	if len(granted) < len(requested) {
		c.server.sendToSession(c.session.Session, &mumbleproto.PermissionDenied{Type: denyType(mumbleproto.DenyChannelFull)})
	}
}

func (c *Client) handleVoiceTarget(m *mumbleproto.VoiceTarget) error {
	if m.Id == nil {
		return nil
	}
	id := *m.Id
	if id < 1 || id > 30 {
		return nil
	}
	vt := &model.VoiceTarget{Sessions: append([]uint32(nil), m.Sessions...)}
	for _, ch := range m.Channels {
		vt.Channels = append(vt.Channels, model.VoiceTargetChannel{
			ChannelID: derefU32(ch.ChannelId),
			Links:     derefBool(ch.Links),
			Children:  derefBool(ch.Children),
			Group:     derefStr(ch.Group),
		})
	}
	c.session.VoiceTargets[id] = vt
	return nil
}

// handleACLMessage relays a client's ACL query or write to the Hub's
// authoritative edge.handleACL RPC (§4.9) and, for a query, answers
// with the resulting ACL snapshot.
func (c *Client) handleACLMessage(m *mumbleproto.ACL) error {
	raw := base64.StdEncoding.EncodeToString(mumbleproto.Encode(m))
	result, err := c.server.handleACL(context.Background(), c.session, derefU32(m.ChannelId), derefBool(m.Query), raw)
	if err != nil {
		return nil // transport failure already logged by the server
	}
	if result.PermissionDenied {
		c.server.sendToSession(c.session.Session, &mumbleproto.PermissionDenied{Type: denyType(mumbleproto.DenyPermission)})
		return nil
	}
	if !result.Success || result.RawData == "" {
		return nil
	}
	decoded, err := base64.StdEncoding.DecodeString(result.RawData)
	if err != nil {
		return nil
	}
	msg, err := mumbleproto.Decode(mumbleproto.TypeACL, decoded)
	if err != nil {
		return nil
	}
	return c.send(msg)
}

func (c *Client) handleTunneledVoice(payload []byte) {
	pkt, err := mumbleproto.ParseVoicePacket(payload, false)
	if err != nil {
		return
	}
	if !c.bandwidth.AddFrame(time.Now(), len(payload), c.server.cfg.MaxBandwidthBps) {
		return
	}
	c.server.routeVoice(c.session, pkt, payload)
}

func (c *Client) sendChannelTree(root uint32) error {
	snap, ok := c.server.tree.Name(root)
	if !ok {
		return fmt.Errorf("edge: unknown root channel %d", root)
	}
	state := &mumbleproto.ChannelState{
		ChannelId: u32p(snap.ID),
		Name:      strp(snap.Name),
		Links:     snap.Links,
		Position:  i32p(snap.Position),
	}
	if snap.ParentID != nil {
		state.Parent = snap.ParentID
	}
	if snap.Temporary {
		state.Temporary = boolp(true)
	}
	if err := c.send(state); err != nil {
		return err
	}
	for _, child := range c.server.tree.Descendants(root) {
		if childSnap, ok := c.server.tree.Name(child); ok && derefU32(childSnap.ParentID) == root {
			if err := c.sendChannelTree(child); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Client) subject() acl.Subject {
	return acl.Subject{
		UserID:    c.session.UserID,
		CertHash:  c.session.CertHash,
		ChannelID: c.session.ChannelID,
		SuperUser: c.session.IsSuperUser(),
	}
}

// send serializes and writes one control message, synchronized against
// concurrent broadcast sends from the server (§5 "one writer per
// connection").
func (c *Client) send(msg mumbleproto.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return framing.WriteFrame(c.conn, mumbleproto.MessageType(msg), mumbleproto.Encode(msg))
}

// sendVoice writes a raw UDP-tunneled voice frame over the control
// stream, used when a client has no working UDP path.
func (c *Client) sendVoice(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return framing.WriteFrame(c.conn, mumbleproto.TypeUDPTunnel, payload)
}

func (c *Client) disconnect(reason string) {
	c.disconnectOnce.Do(func() {
		c.conn.Close()
		if c.session == nil {
			return
		}
		c.server.sessions.Remove(c.session.Session)
		c.server.removeClient(c.session.Session)
		c.server.broadcastAll(&mumbleproto.UserRemove{Session: u32p(c.session.Session), Reason: strp(reason)})
		c.server.acl.Invalidate()
		_ = c.server.notifyHubSessionLeft(context.Background(), c.session.Session)
	})
}

func userStateOf(s *model.Session) *mumbleproto.UserState {
	state := &mumbleproto.UserState{
		Session:   u32p(s.Session),
		Name:      strp(s.Username),
		UserId:    u32p(s.UserID),
		ChannelId: u32p(s.ChannelID),
		Mute:      boolp(s.Mute.Mute),
		Deaf:      boolp(s.Mute.Deaf),
		Suppress:  boolp(s.Mute.Suppress),
		SelfMute:  boolp(s.Mute.SelfMute),
		SelfDeaf:  boolp(s.Mute.SelfDeaf),
	}
	for channelID := range s.ListeningChannels {
		state.ListeningChannelAdd = append(state.ListeningChannelAdd, channelID)
	}
	return state
}

func denyType(t mumbleproto.DenyType) *mumbleproto.DenyType { return &t }

// hasSuperUserGroup mirrors the Hub's own admin/superuser group check
// (§4.8), re-derived here since the Edge only sees the authenticated
// group list, not the Hub's auth.Result.
func hasSuperUserGroup(groups []string) bool {
	for _, g := range groups {
		if g == "admin" || g == "superuser" {
			return true
		}
	}
	return false
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefU32(v *uint32) uint32 {
	if v == nil {
		return 0
	}
	return *v
}

func derefBool(v *bool) bool {
	if v == nil {
		return false
	}
	return *v
}

func strp(s string) *string   { return &s }
func boolp(b bool) *bool      { return &b }
func u32p(v uint32) *uint32   { return &v }
func u64p(v uint64) *uint64   { return &v }
func i32p(v int32) *int32     { return &v }
func f32p(v float32) *float32 { return &v }
