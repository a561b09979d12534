package rpc

// The `edge.fullSync` result packs four independently-evolving tables
// (channels, ACLs/groups, bans, sessions) as msgpack-encoded byte
// slices rather than first-class EdgeFullSyncResult fields, so a new
// Edge can decode only the tables it needs and so the Hub can version
// each table independently of the RPC envelope itself. These are the
// snapshot row shapes both sides agree on.

// ChannelSnapshot is one row of the full channel tree (§3 Channel).
type ChannelSnapshot struct {
	ID          uint32   `msgpack:"id"`
	ParentID    *uint32  `msgpack:"parent_id,omitempty"`
	Name        string   `msgpack:"name"`
	Position    int32    `msgpack:"position"`
	Temporary   bool     `msgpack:"temporary"`
	Links       []uint32 `msgpack:"links,omitempty"`
	DescBlobKey string   `msgpack:"desc_blob_key,omitempty"`
	MaxUsers    uint32   `msgpack:"max_users,omitempty"`
	InheritACL  bool     `msgpack:"inherit_acl"`
}

// ACLEntrySnapshot is one ACL row on a channel (§3 ACLEntry).
type ACLEntrySnapshot struct {
	ChannelID uint32  `msgpack:"channel_id"`
	UserID    *int32  `msgpack:"user_id,omitempty"`
	Group     string  `msgpack:"group,omitempty"`
	ApplyHere bool    `msgpack:"apply_here"`
	ApplySubs bool    `msgpack:"apply_subs"`
	Allow     uint64  `msgpack:"allow"`
	Deny      uint64  `msgpack:"deny"`
}

// GroupSnapshot is one named group definition on a channel (§3 Group).
type GroupSnapshot struct {
	ChannelID   uint32   `msgpack:"channel_id"`
	Name        string   `msgpack:"name"`
	Inherit     bool     `msgpack:"inherit"`
	Inheritable bool     `msgpack:"inheritable"`
	Add         []uint32 `msgpack:"add,omitempty"`
	Remove      []uint32 `msgpack:"remove,omitempty"`
}

// BanSnapshot is one ban table row (§4.17).
type BanSnapshot struct {
	Address  []byte `msgpack:"address"`
	Mask     int    `msgpack:"mask"`
	Name     string `msgpack:"name,omitempty"`
	CertHash string `msgpack:"cert_hash,omitempty"`
	Reason   string `msgpack:"reason,omitempty"`
	Start    int64  `msgpack:"start"`
	Duration int64  `msgpack:"duration_secs,omitempty"`
}

// SessionSnapshot is one live session known cluster-wide at the time of
// the sync, used to seed a newly-joined Edge's remote directory.
type SessionSnapshot struct {
	SessionID uint32 `msgpack:"session_id"`
	EdgeID    string `msgpack:"edge_id"`
	ChannelID uint32 `msgpack:"channel_id"`
	UserID    int32  `msgpack:"user_id"`
	Username  string `msgpack:"username"`
}

// ChannelTable holds the channel rows that EdgeFullSyncResult's
// "channels" field decodes into; ACL and group rows are in ACLTable.
type ChannelTable struct {
	Channels []ChannelSnapshot  `msgpack:"channels"`
}

// ACLTable bundles ACL entries and group definitions together, since
// both are scoped per-channel and consumed together by pkg/acl.Tree.
type ACLTable struct {
	Entries []ACLEntrySnapshot `msgpack:"entries"`
	Groups  []GroupSnapshot    `msgpack:"groups"`
}
