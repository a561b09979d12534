package rpc

// Method names for the Hub<->Edge control RPC (§4.14). Requests flow
// Edge->Hub except where noted; notifications flow Hub->Edge.
const (
	MethodEdgeRegister             = "edge.register"
	MethodEdgeHeartbeat            = "edge.heartbeat"
	MethodEdgeJoin                 = "edge.join"
	MethodEdgeJoinComplete         = "edge.joinComplete"
	MethodEdgeAllocateSessionID    = "edge.allocateSessionId"
	MethodEdgeReportSession        = "edge.reportSession"
	MethodEdgeAuthenticateUser     = "edge.authenticateUser"
	MethodEdgeHandleACL            = "edge.handleACL"
	MethodEdgeFullSync             = "edge.fullSync"
	MethodEdgeReportPeerDisconnect = "edge.reportPeerDisconnect"
	MethodEdgeUpdateListening      = "edge.updateListening"

	// Hub->Edge notifications.
	NotifyEdgePeerJoined          = "edge.peerJoined"
	NotifyEdgePeerLeft            = "edge.peerLeft"
	NotifyEdgeForceDisconnect     = "edge.forceDisconnect"
	NotifyEdgeACLUpdated          = "edge.aclUpdated"
	NotifyUserRemoteUserJoined    = "user.remoteUserJoined"
	NotifyUserRemoteUserLeft      = "user.remoteUserLeft"
	NotifyUserRemoteUserStateChg  = "user.remoteUserStateChanged"
)

// PeerInfo describes one Edge's voice endpoint as handed out during
// join so the caller can register peer voice endpoints before
// answering joinComplete.
type PeerInfo struct {
	ID        string `msgpack:"id"`
	Name      string `msgpack:"name"`
	Host      string `msgpack:"host"`
	Port      int    `msgpack:"port"`
	VoicePort int    `msgpack:"voice_port"`
}

// EdgeRegisterParams / EdgeRegisterResult implement `edge.register`.
type EdgeRegisterParams struct {
	ServerID    string `msgpack:"server_id"`
	Name        string `msgpack:"name"`
	Host        string `msgpack:"host"`
	Port        int    `msgpack:"port"`
	Region      string `msgpack:"region"`
	Capacity    int    `msgpack:"capacity"`
	Certificate []byte `msgpack:"certificate"`
}

type EdgeRegisterResult struct {
	Success     bool       `msgpack:"success"`
	HubServerID string     `msgpack:"hub_server_id"`
	EdgeList    []PeerInfo `msgpack:"edge_list"`
}

// EdgeHeartbeatParams / EdgeHeartbeatResult implement `edge.heartbeat`.
type EdgeStats struct {
	Clients        int     `msgpack:"clients"`
	BandwidthBps   int64   `msgpack:"bandwidth_bps"`
	CPULoad        float64 `msgpack:"cpu_load"`
}

type EdgeHeartbeatParams struct {
	ServerID string    `msgpack:"server_id"`
	Stats    EdgeStats `msgpack:"stats"`
}

type EdgeHeartbeatResult struct {
	Success       bool       `msgpack:"success"`
	UpdatedEdges  []PeerInfo `msgpack:"updated_edges,omitempty"`
}

// EdgeJoinParams / EdgeJoinResult implement `edge.join`.
type EdgeJoinParams struct {
	ServerID  string `msgpack:"server_id"`
	Name      string `msgpack:"name"`
	Host      string `msgpack:"host"`
	Port      int    `msgpack:"port"`
	VoicePort int    `msgpack:"voice_port"`
	Capacity  int    `msgpack:"capacity"`
}

type EdgeJoinResult struct {
	Success bool       `msgpack:"success"`
	Token   string     `msgpack:"token"`
	Peers   []PeerInfo `msgpack:"peers"`
	Timeout int        `msgpack:"timeout"`
}

// EdgeJoinCompleteParams implements `edge.joinComplete` (no result, a
// settle acknowledgement).
type EdgeJoinCompleteParams struct {
	ServerID        string   `msgpack:"server_id"`
	Token           string   `msgpack:"token"`
	ConnectedPeers  []string `msgpack:"connected_peers"`
}

// EdgeAllocateSessionIDParams / Result implement `edge.allocateSessionId`.
type EdgeAllocateSessionIDParams struct {
	EdgeID string `msgpack:"edge_id"`
}

type EdgeAllocateSessionIDResult struct {
	SessionID uint32 `msgpack:"session_id"`
}

// EdgeReportSessionParams implements `edge.reportSession` (fire-and-forget).
type EdgeReportSessionParams struct {
	SessionID uint32   `msgpack:"session_id"`
	UserID    int32    `msgpack:"user_id"`
	Username  string   `msgpack:"username"`
	ChannelID uint32   `msgpack:"channel_id"`
	StartTime int64    `msgpack:"startTime"`
	IPAddress string   `msgpack:"ip_address"`
	Groups    []string `msgpack:"groups,omitempty"`
	CertHash  string   `msgpack:"cert_hash,omitempty"`
}

// ClientInfo mirrors the client_info object sent with authenticateUser.
type ClientInfo struct {
	IP        string `msgpack:"ip"`
	IPVersion int    `msgpack:"ip_version"`
	Release   string `msgpack:"release"`
	Version   uint32 `msgpack:"version"`
	OS        string `msgpack:"os"`
	OSVersion string `msgpack:"os_version"`
	CertHash  string `msgpack:"cert_hash"`
}

// EdgeAuthenticateUserParams / AuthResult implement `edge.authenticateUser`.
type EdgeAuthenticateUserParams struct {
	SessionID  uint32     `msgpack:"session_id"`
	ServerID   string     `msgpack:"server_id"`
	Username   string     `msgpack:"username"`
	Password   string     `msgpack:"password"`
	Tokens     []string   `msgpack:"tokens"`
	ClientInfo ClientInfo `msgpack:"client_info"`
}

// RejectType mirrors the Mumble Reject.RejectType wire values relevant
// to authentication outcomes.
type RejectType int

const (
	RejectNone        RejectType = 0
	RejectWrongUserPW RejectType = 2
)

type AuthResult struct {
	Success     bool       `msgpack:"success"`
	Reject      RejectType `msgpack:"reject"`
	UserID      int32      `msgpack:"user_id"`
	Username    string     `msgpack:"username"`
	DisplayName string     `msgpack:"displayName"`
	Groups      []string   `msgpack:"groups"`
}

// EdgeHandleACLParams / Result implement `edge.handleACL`.
type EdgeHandleACLParams struct {
	EdgeID        string `msgpack:"edge_id"`
	ActorSession  uint32 `msgpack:"actor_session"`
	ActorUserID   int32  `msgpack:"actor_user_id"`
	ActorUsername string `msgpack:"actor_username"`
	ChannelID     uint32 `msgpack:"channel_id"`
	Query         bool   `msgpack:"query"`
	RawData       string `msgpack:"raw_data"` // base64 client-serialized ACL message
}

type EdgeHandleACLResult struct {
	Success         bool   `msgpack:"success"`
	RawData         string `msgpack:"raw_data,omitempty"`
	PermissionDenied bool  `msgpack:"permission_denied,omitempty"`
	Error           string `msgpack:"error,omitempty"`
}

// EdgeFullSyncResult implements `edge.fullSync` (no params).
type EdgeFullSyncResult struct {
	Channels  []byte `msgpack:"channels"`
	ACLs      []byte `msgpack:"acls"`
	Bans      []byte `msgpack:"bans"`
	Sessions  []byte `msgpack:"sessions"`
	Configs   []byte `msgpack:"configs,omitempty"`
	Timestamp int64  `msgpack:"timestamp"`
	Sequence  uint64 `msgpack:"sequence"`
	Edges     []PeerInfo `msgpack:"edges"`
}

// EdgeReportPeerDisconnectParams / Result implement `edge.reportPeerDisconnect`.
type EdgeReportPeerDisconnectParams struct {
	LocalEdgeID      string `msgpack:"localEdgeId"`
	RemoteEdgeID     string `msgpack:"remoteEdgeId"`
	LocalClientCount int    `msgpack:"localClientCount"`
}

type PeerDisconnectAction string

const (
	PeerDisconnectWait       PeerDisconnectAction = "wait"
	PeerDisconnectDisconnect PeerDisconnectAction = "disconnect"
)

type EdgeReportPeerDisconnectResult struct {
	Action PeerDisconnectAction `msgpack:"action"`
}

// EdgeUpdateListeningParams / Result implement `edge.updateListening`:
// a session's ListeningChannelAdd/Remove (§4.11) checked against the
// Hub's cluster-wide ListenersPerChannel/ListenersPerUser caps, since
// a listener's subscriptions are visible to every Edge that hosts a
// member of the listened channel, not just the listener's own Edge.
type EdgeUpdateListeningParams struct {
	EdgeID    string   `msgpack:"edge_id"`
	SessionID uint32   `msgpack:"session_id"`
	UserID    int32    `msgpack:"user_id"`
	Add       []uint32 `msgpack:"add,omitempty"`
	Remove    []uint32 `msgpack:"remove,omitempty"`
}

type EdgeUpdateListeningResult struct {
	Granted []uint32 `msgpack:"granted,omitempty"`
}

// Hub->Edge notification payloads.

type NotifyPeerJoinedParams struct {
	Peer PeerInfo `msgpack:"peer"`
}

type NotifyPeerLeftParams struct {
	EdgeID string `msgpack:"edge_id"`
}

type NotifyForceDisconnectParams struct {
	Reason string `msgpack:"reason"`
}

type NotifyACLUpdatedParams struct {
	ChannelID uint32 `msgpack:"channel_id"`
}

type RemoteUserJoinedParams struct {
	SessionID uint32 `msgpack:"session_id"`
	EdgeID    string `msgpack:"edge_id"`
	ChannelID uint32 `msgpack:"channel_id"`
}

type RemoteUserLeftParams struct {
	SessionID uint32 `msgpack:"session_id"`
}

type RemoteUserStateChangedParams struct {
	SessionID uint32 `msgpack:"session_id"`
	ChannelID uint32 `msgpack:"channel_id"`
}
