package mumbleproto

import "google.golang.org/protobuf/encoding/protowire"

// Version carries protocol/client version and OS identification (§4.7,
// S1).
type Version struct {
	VersionV1   *uint32
	VersionV2   *uint64
	Release     *string
	Os          *string
	OsVersion   *string
	CryptoModes []string
}

func (m *Version) marshal() []byte {
	w := &fieldWriter{}
	w.optUint32(1, m.VersionV1)
	w.optString(2, m.Release)
	w.optString(3, m.Os)
	w.optString(4, m.OsVersion)
	w.repString(5, m.CryptoModes)
	w.optUint64(6, m.VersionV2)
	return w.buf
}

func (m *Version) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.VersionV1 = u32ptr(v)
		case 2:
			m.Release = strptr(v)
		case 3:
			m.Os = strptr(v)
		case 4:
			m.OsVersion = strptr(v)
		case 5:
			m.CryptoModes = append(m.CryptoModes, string(v))
		case 6:
			m.VersionV2 = u64ptr(v)
		}
		return nil
	})
}

// Authenticate is the client's credential submission (§4.7, §4.8).
type Authenticate struct {
	Username *string
	Password *string
	Tokens   []string
	Opus     *bool
}

func (m *Authenticate) marshal() []byte {
	w := &fieldWriter{}
	w.optString(1, m.Username)
	w.optString(2, m.Password)
	w.repString(3, m.Tokens)
	w.optBool(5, m.Opus)
	return w.buf
}

func (m *Authenticate) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.Username = strptr(v)
		case 2:
			m.Password = strptr(v)
		case 3:
			m.Tokens = append(m.Tokens, string(v))
		case 5:
			m.Opus = boolptr(v)
		}
		return nil
	})
}

// Ping is exchanged both before and after authentication (§4.7).
type Ping struct {
	Timestamp         *uint64
	Good              *uint32
	Late              *uint32
	Lost              *uint32
	Resync            *uint32
	UdpPingAvg        *float32
	UdpPingVar        *float32
	UdpPackets        *uint32
	TcpPingAvg        *float32
	TcpPingVar        *float32
	TcpPackets        *uint32
}

func (m *Ping) marshal() []byte {
	w := &fieldWriter{}
	w.optUint64(1, m.Timestamp)
	w.optUint32(2, m.Good)
	w.optUint32(3, m.Late)
	w.optUint32(4, m.Lost)
	w.optUint32(5, m.Resync)
	w.optUint32(9, m.UdpPackets)
	w.optUint32(10, m.TcpPackets)
	return w.buf
}

func (m *Ping) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.Timestamp = u64ptr(v)
		case 2:
			m.Good = u32ptr(v)
		case 3:
			m.Late = u32ptr(v)
		case 4:
			m.Lost = u32ptr(v)
		case 5:
			m.Resync = u32ptr(v)
		case 9:
			m.UdpPackets = u32ptr(v)
		case 10:
			m.TcpPackets = u32ptr(v)
		}
		return nil
	})
}

// Reject is sent in place of ServerSync when authentication fails
// (§4.7, §7).
type Reject struct {
	Type   *RejectType
	Reason *string
}

func (m *Reject) marshal() []byte {
	w := &fieldWriter{}
	if m.Type != nil {
		w.varint(1, uint64(*m.Type))
	}
	w.optString(2, m.Reason)
	return w.buf
}

func (m *Reject) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			rt := RejectType(varintValue(v))
			m.Type = &rt
		case 2:
			m.Reason = strptr(v)
		}
		return nil
	})
}

// ServerSync is the final success message, completing the §4.7
// connection sequence.
type ServerSync struct {
	Session      *uint32
	MaxBandwidth *uint32
	WelcomeText  *string
	Permissions  *uint64
}

func (m *ServerSync) marshal() []byte {
	w := &fieldWriter{}
	w.optUint32(1, m.Session)
	w.optUint32(2, m.MaxBandwidth)
	w.optString(3, m.WelcomeText)
	w.optUint64(4, m.Permissions)
	return w.buf
}

func (m *ServerSync) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.Session = u32ptr(v)
		case 2:
			m.MaxBandwidth = u32ptr(v)
		case 3:
			m.WelcomeText = strptr(v)
		case 4:
			m.Permissions = u64ptr(v)
		}
		return nil
	})
}

// ChannelRemove announces deletion of a channel (§4.7 broadcast flow).
type ChannelRemove struct {
	ChannelId *uint32
}

func (m *ChannelRemove) marshal() []byte {
	w := &fieldWriter{}
	w.optUint32(1, m.ChannelId)
	return w.buf
}

func (m *ChannelRemove) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num == 1 {
			m.ChannelId = u32ptr(v)
		}
		return nil
	})
}

// ChannelState carries channel tree updates (§3, §4.7's sendChannelTree).
type ChannelState struct {
	ChannelId       *uint32
	Parent          *uint32
	Name            *string
	Links           []uint32
	Description     *string
	DescriptionHash []byte
	Temporary       *bool
	Position        *int32
	MaxUsers        *uint32
}

func (m *ChannelState) marshal() []byte {
	w := &fieldWriter{}
	w.optUint32(1, m.ChannelId)
	w.optUint32(2, m.Parent)
	w.optString(3, m.Name)
	w.repUint32(4, m.Links)
	w.optString(5, m.Description)
	w.optBool(7, m.Temporary)
	w.optInt32(8, m.Position)
	w.optBytes(10, m.DescriptionHash)
	w.optUint32(11, m.MaxUsers)
	return w.buf
}

func (m *ChannelState) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.ChannelId = u32ptr(v)
		case 2:
			m.Parent = u32ptr(v)
		case 3:
			m.Name = strptr(v)
		case 4:
			u := uint32(varintValue(v))
			m.Links = append(m.Links, u)
		case 5:
			m.Description = strptr(v)
		case 7:
			m.Temporary = boolptr(v)
		case 8:
			m.Position = i32ptr(v)
		case 10:
			m.DescriptionHash = append([]byte(nil), v...)
		case 11:
			m.MaxUsers = u32ptr(v)
		}
		return nil
	})
}

// UserRemove announces a disconnect, kick or ban (§4.7).
type UserRemove struct {
	Session *uint32
	Actor   *uint32
	Reason  *string
	Ban     *bool
}

func (m *UserRemove) marshal() []byte {
	w := &fieldWriter{}
	w.optUint32(1, m.Session)
	w.optUint32(2, m.Actor)
	w.optString(3, m.Reason)
	w.optBool(4, m.Ban)
	return w.buf
}

func (m *UserRemove) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.Session = u32ptr(v)
		case 2:
			m.Actor = u32ptr(v)
		case 3:
			m.Reason = strptr(v)
		case 4:
			m.Ban = boolptr(v)
		}
		return nil
	})
}

// UserState covers both PreConnect state (§4.7) and post-auth state
// broadcast (mute/deaf/channel move/voice-target/listening channels).
type UserState struct {
	Session              *uint32
	Actor                *uint32
	Name                 *string
	UserId               *uint32
	ChannelId            *uint32
	Mute                 *bool
	Deaf                 *bool
	Suppress             *bool
	SelfMute             *bool
	SelfDeaf             *bool
	Comment              *string
	PrioritySpeaker      *bool
	Recording            *bool
	PluginContext        []byte
	PluginIdentity       *string
	ListeningChannelAdd  []uint32
	ListeningChannelRemove []uint32
}

func (m *UserState) marshal() []byte {
	w := &fieldWriter{}
	w.optUint32(1, m.Session)
	w.optUint32(2, m.Actor)
	w.optString(3, m.Name)
	w.optUint32(4, m.UserId)
	w.optUint32(5, m.ChannelId)
	w.optBool(6, m.Mute)
	w.optBool(7, m.Deaf)
	w.optBool(8, m.Suppress)
	w.optBool(9, m.SelfMute)
	w.optBool(10, m.SelfDeaf)
	w.optString(11, m.Comment)
	w.optBool(13, m.PrioritySpeaker)
	w.optBool(14, m.Recording)
	w.optBytes(15, m.PluginContext)
	w.optString(16, m.PluginIdentity)
	w.repUint32(17, m.ListeningChannelAdd)
	w.repUint32(18, m.ListeningChannelRemove)
	return w.buf
}

func (m *UserState) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.Session = u32ptr(v)
		case 2:
			m.Actor = u32ptr(v)
		case 3:
			m.Name = strptr(v)
		case 4:
			m.UserId = u32ptr(v)
		case 5:
			m.ChannelId = u32ptr(v)
		case 6:
			m.Mute = boolptr(v)
		case 7:
			m.Deaf = boolptr(v)
		case 8:
			m.Suppress = boolptr(v)
		case 9:
			m.SelfMute = boolptr(v)
		case 10:
			m.SelfDeaf = boolptr(v)
		case 11:
			m.Comment = strptr(v)
		case 13:
			m.PrioritySpeaker = boolptr(v)
		case 14:
			m.Recording = boolptr(v)
		case 15:
			m.PluginContext = append([]byte(nil), v...)
		case 16:
			m.PluginIdentity = strptr(v)
		case 17:
			m.ListeningChannelAdd = append(m.ListeningChannelAdd, uint32(varintValue(v)))
		case 18:
			m.ListeningChannelRemove = append(m.ListeningChannelRemove, uint32(varintValue(v)))
		}
		return nil
	})
}

// BanEntry is one row of a BanList message (§3 Ban, §4.14 fullSync).
type BanEntry struct {
	Address  []byte
	Mask     *uint32
	Name     *string
	Hash     *string
	Reason   *string
	Start    *string
	Duration *uint32
}

// BanList carries the server's full ban list (query or replace, §4.17).
type BanList struct {
	Bans  []*BanEntry
	Query *bool
}

func (m *BanList) marshal() []byte {
	w := &fieldWriter{}
	for _, b := range m.Bans {
		bw := &fieldWriter{}
		bw.optBytes(1, b.Address)
		bw.optUint32(2, b.Mask)
		bw.optString(3, b.Name)
		bw.optString(4, b.Hash)
		bw.optString(5, b.Reason)
		bw.optString(6, b.Start)
		bw.optUint32(7, b.Duration)
		w.message(1, bw.buf)
	}
	w.optBool(2, m.Query)
	return w.buf
}

func (m *BanList) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			b := &BanEntry{}
			err := walkFields(v, func(n2 protowire.Number, t2 protowire.Type, v2 []byte) error {
				switch n2 {
				case 1:
					b.Address = append([]byte(nil), v2...)
				case 2:
					b.Mask = u32ptr(v2)
				case 3:
					b.Name = strptr(v2)
				case 4:
					b.Hash = strptr(v2)
				case 5:
					b.Reason = strptr(v2)
				case 6:
					b.Start = strptr(v2)
				case 7:
					b.Duration = u32ptr(v2)
				}
				return nil
			})
			if err != nil {
				return err
			}
			m.Bans = append(m.Bans, b)
		case 2:
			m.Query = boolptr(v)
		}
		return nil
	})
}

// TextMessage carries a chat message to sessions, channels, or trees
// (§9 allowHTML open question).
type TextMessage struct {
	Actor      *uint32
	Session    []uint32
	ChannelId  []uint32
	TreeId     []uint32
	Message    *string
}

func (m *TextMessage) marshal() []byte {
	w := &fieldWriter{}
	w.optUint32(1, m.Actor)
	w.repUint32(2, m.Session)
	w.repUint32(3, m.ChannelId)
	w.repUint32(4, m.TreeId)
	w.optString(5, m.Message)
	return w.buf
}

func (m *TextMessage) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.Actor = u32ptr(v)
		case 2:
			m.Session = append(m.Session, uint32(varintValue(v)))
		case 3:
			m.ChannelId = append(m.ChannelId, uint32(varintValue(v)))
		case 4:
			m.TreeId = append(m.TreeId, uint32(varintValue(v)))
		case 5:
			m.Message = strptr(v)
		}
		return nil
	})
}

// PermissionDenied explains why a requested action did not take effect
// (§4.5, §7).
type PermissionDenied struct {
	Permission *uint32
	ChannelId  *uint32
	Session    *uint32
	Reason     *string
	Type       *DenyType
}

func (m *PermissionDenied) marshal() []byte {
	w := &fieldWriter{}
	w.optUint32(1, m.Permission)
	w.optUint32(2, m.ChannelId)
	w.optUint32(3, m.Session)
	w.optString(4, m.Reason)
	if m.Type != nil {
		w.varint(5, uint64(*m.Type))
	}
	return w.buf
}

func (m *PermissionDenied) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.Permission = u32ptr(v)
		case 2:
			m.ChannelId = u32ptr(v)
		case 3:
			m.Session = u32ptr(v)
		case 4:
			m.Reason = strptr(v)
		case 5:
			dt := DenyType(varintValue(v))
			m.Type = &dt
		}
		return nil
	})
}

// ACLEntryWire is one ACL row as carried over the wire (§3 ACLEntry).
type ACLEntryWire struct {
	UserId     *int32
	Group      *string
	ApplyHere  *bool
	ApplySubs  *bool
	Allow      *uint32
	Deny       *uint32
}

// ACLGroupWire is one named group as carried over the wire (§3 Group).
type ACLGroupWire struct {
	Name        *string
	Inherit     *bool
	Inheritable *bool
	Add         []uint32
	Remove      []uint32
}

// ACL is the channel ACL query/update message (§4.9).
type ACL struct {
	ChannelId   *uint32
	InheritACLs *bool
	Groups      []*ACLGroupWire
	ACLs        []*ACLEntryWire
	Query       *bool
}

func (m *ACL) marshal() []byte {
	w := &fieldWriter{}
	w.optUint32(1, m.ChannelId)
	w.optBool(2, m.InheritACLs)
	for _, g := range m.Groups {
		gw := &fieldWriter{}
		gw.optString(1, g.Name)
		gw.optBool(2, g.Inherit)
		gw.optBool(3, g.Inheritable)
		gw.repUint32(4, g.Add)
		gw.repUint32(5, g.Remove)
		w.message(3, gw.buf)
	}
	for _, e := range m.ACLs {
		ew := &fieldWriter{}
		if e.UserId != nil {
			ew.varint(1, uint64(uint32(*e.UserId)))
		}
		ew.optString(2, e.Group)
		ew.optBool(3, e.ApplyHere)
		ew.optBool(4, e.ApplySubs)
		ew.optUint32(5, e.Allow)
		ew.optUint32(6, e.Deny)
		w.message(4, ew.buf)
	}
	w.optBool(5, m.Query)
	return w.buf
}

func (m *ACL) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.ChannelId = u32ptr(v)
		case 2:
			m.InheritACLs = boolptr(v)
		case 3:
			g := &ACLGroupWire{}
			err := walkFields(v, func(n2 protowire.Number, t2 protowire.Type, v2 []byte) error {
				switch n2 {
				case 1:
					g.Name = strptr(v2)
				case 2:
					g.Inherit = boolptr(v2)
				case 3:
					g.Inheritable = boolptr(v2)
				case 4:
					g.Add = append(g.Add, uint32(varintValue(v2)))
				case 5:
					g.Remove = append(g.Remove, uint32(varintValue(v2)))
				}
				return nil
			})
			if err != nil {
				return err
			}
			m.Groups = append(m.Groups, g)
		case 4:
			e := &ACLEntryWire{}
			err := walkFields(v, func(n2 protowire.Number, t2 protowire.Type, v2 []byte) error {
				switch n2 {
				case 1:
					e.UserId = i32ptr(v2)
				case 2:
					e.Group = strptr(v2)
				case 3:
					e.ApplyHere = boolptr(v2)
				case 4:
					e.ApplySubs = boolptr(v2)
				case 5:
					e.Allow = u32ptr(v2)
				case 6:
					e.Deny = u32ptr(v2)
				}
				return nil
			})
			if err != nil {
				return err
			}
			m.ACLs = append(m.ACLs, e)
		case 5:
			m.Query = boolptr(v)
		}
		return nil
	})
}

// QueryUsers resolves user ids to names and vice versa.
type QueryUsers struct {
	Ids   []uint32
	Names []string
}

func (m *QueryUsers) marshal() []byte {
	w := &fieldWriter{}
	w.repUint32(1, m.Ids)
	w.repString(2, m.Names)
	return w.buf
}

func (m *QueryUsers) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.Ids = append(m.Ids, uint32(varintValue(v)))
		case 2:
			m.Names = append(m.Names, string(v))
		}
		return nil
	})
}

// CryptSetup carries OCB2 key material for initial setup and resync
// (§4.2, S6).
type CryptSetup struct {
	Key         []byte
	ClientNonce []byte
	ServerNonce []byte
}

func (m *CryptSetup) marshal() []byte {
	w := &fieldWriter{}
	w.optBytes(1, m.Key)
	w.optBytes(2, m.ClientNonce)
	w.optBytes(3, m.ServerNonce)
	return w.buf
}

func (m *CryptSetup) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.Key = append([]byte(nil), v...)
		case 2:
			m.ClientNonce = append([]byte(nil), v...)
		case 3:
			m.ServerNonce = append([]byte(nil), v...)
		}
		return nil
	})
}

// ContextActionModify registers/removes a client-side context menu
// action.
type ContextActionModify struct {
	Action  *string
	Text    *string
	Context *uint32
}

func (m *ContextActionModify) marshal() []byte {
	w := &fieldWriter{}
	w.optString(1, m.Action)
	w.optString(2, m.Text)
	w.optUint32(3, m.Context)
	return w.buf
}

func (m *ContextActionModify) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.Action = strptr(v)
		case 2:
			m.Text = strptr(v)
		case 3:
			m.Context = u32ptr(v)
		}
		return nil
	})
}

// ContextAction is the client's invocation of a context action.
type ContextAction struct {
	Session   *uint32
	ChannelId *uint32
	Action    *string
}

func (m *ContextAction) marshal() []byte {
	w := &fieldWriter{}
	w.optUint32(1, m.Session)
	w.optUint32(2, m.ChannelId)
	w.optString(3, m.Action)
	return w.buf
}

func (m *ContextAction) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.Session = u32ptr(v)
		case 2:
			m.ChannelId = u32ptr(v)
		case 3:
			m.Action = strptr(v)
		}
		return nil
	})
}

// UserList is the server's registered-user listing (query or update,
// §4.9 family).
type UserListEntry struct {
	UserId   *uint32
	Name     *string
	LastSeen *string
}

type UserList struct {
	Users []*UserListEntry
}

func (m *UserList) marshal() []byte {
	w := &fieldWriter{}
	for _, u := range m.Users {
		uw := &fieldWriter{}
		uw.optUint32(1, u.UserId)
		uw.optString(2, u.Name)
		uw.optString(3, u.LastSeen)
		w.message(1, uw.buf)
	}
	return w.buf
}

func (m *UserList) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		if num != 1 {
			return nil
		}
		u := &UserListEntry{}
		err := walkFields(v, func(n2 protowire.Number, t2 protowire.Type, v2 []byte) error {
			switch n2 {
			case 1:
				u.UserId = u32ptr(v2)
			case 2:
				u.Name = strptr(v2)
			case 3:
				u.LastSeen = strptr(v2)
			}
			return nil
		})
		if err != nil {
			return err
		}
		m.Users = append(m.Users, u)
		return nil
	})
}

// VoiceTargetChannel is one channel target within a VoiceTarget slot (§3
// VoiceTarget).
type VoiceTargetChannel struct {
	ChannelId *uint32
	Links     *bool
	Children  *bool
	Group     *string
}

// VoiceTarget assigns session/channel recipients to a slot, 1..30
// (§4.12).
type VoiceTarget struct {
	Id       *uint32
	Sessions []uint32
	Channels []*VoiceTargetChannel
}

func (m *VoiceTarget) marshal() []byte {
	w := &fieldWriter{}
	w.optUint32(1, m.Id)
	w.repUint32(2, m.Sessions)
	for _, c := range m.Channels {
		cw := &fieldWriter{}
		cw.optUint32(1, c.ChannelId)
		cw.optBool(2, c.Links)
		cw.optBool(3, c.Children)
		cw.optString(4, c.Group)
		w.message(3, cw.buf)
	}
	return w.buf
}

func (m *VoiceTarget) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.Id = u32ptr(v)
		case 2:
			m.Sessions = append(m.Sessions, uint32(varintValue(v)))
		case 3:
			c := &VoiceTargetChannel{}
			err := walkFields(v, func(n2 protowire.Number, t2 protowire.Type, v2 []byte) error {
				switch n2 {
				case 1:
					c.ChannelId = u32ptr(v2)
				case 2:
					c.Links = boolptr(v2)
				case 3:
					c.Children = boolptr(v2)
				case 4:
					c.Group = strptr(v2)
				}
				return nil
			})
			if err != nil {
				return err
			}
			m.Channels = append(m.Channels, c)
		}
		return nil
	})
}

// PermissionQuery asks for (or announces) the effective permission
// bitmask of a channel (§4.5).
type PermissionQuery struct {
	ChannelId   *uint32
	Permissions *uint32
	Flush       *bool
}

func (m *PermissionQuery) marshal() []byte {
	w := &fieldWriter{}
	w.optUint32(1, m.ChannelId)
	w.optUint32(2, m.Permissions)
	w.optBool(3, m.Flush)
	return w.buf
}

func (m *PermissionQuery) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.ChannelId = u32ptr(v)
		case 2:
			m.Permissions = u32ptr(v)
		case 3:
			m.Flush = boolptr(v)
		}
		return nil
	})
}

// CodecVersion announces which audio codecs the server/session supports
// (§4.7 broadcast sequence, SUPPLEMENTED FEATURES).
type CodecVersion struct {
	Alpha         *int32
	Beta          *int32
	PreferAlpha   *bool
	Opus          *bool
}

func (m *CodecVersion) marshal() []byte {
	w := &fieldWriter{}
	if m.Alpha != nil {
		w.varint(1, uint64(uint32(*m.Alpha)))
	}
	if m.Beta != nil {
		w.varint(2, uint64(uint32(*m.Beta)))
	}
	w.optBool(3, m.PreferAlpha)
	w.optBool(4, m.Opus)
	return w.buf
}

func (m *CodecVersion) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.Alpha = i32ptr(v)
		case 2:
			m.Beta = i32ptr(v)
		case 3:
			m.PreferAlpha = boolptr(v)
		case 4:
			m.Opus = boolptr(v)
		}
		return nil
	})
}

// UserStats is a read-only diagnostic query about a session
// (SUPPLEMENTED FEATURES: wire-level compatibility, not authoritative).
type UserStats struct {
	Session    *uint32
	Onlinesecs *uint32
	Bandwidth  *uint32
	Version    *Version
}

func (m *UserStats) marshal() []byte {
	w := &fieldWriter{}
	w.optUint32(1, m.Session)
	w.optUint32(2, m.Onlinesecs)
	w.optUint32(3, m.Bandwidth)
	if m.Version != nil {
		w.message(4, m.Version.marshal())
	}
	return w.buf
}

func (m *UserStats) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.Session = u32ptr(v)
		case 2:
			m.Onlinesecs = u32ptr(v)
		case 3:
			m.Bandwidth = u32ptr(v)
		case 4:
			ver := &Version{}
			if err := ver.unmarshal(v); err != nil {
				return err
			}
			m.Version = ver
		}
		return nil
	})
}

// RequestBlob asks the server for blob content by the channel/user
// field it is attached to (§6 blob contract).
type RequestBlob struct {
	SessionTexture []uint32
	ChannelDescription []uint32
	SessionComment []uint32
}

func (m *RequestBlob) marshal() []byte {
	w := &fieldWriter{}
	w.repUint32(1, m.SessionTexture)
	w.repUint32(2, m.ChannelDescription)
	w.repUint32(3, m.SessionComment)
	return w.buf
}

func (m *RequestBlob) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.SessionTexture = append(m.SessionTexture, uint32(varintValue(v)))
		case 2:
			m.ChannelDescription = append(m.ChannelDescription, uint32(varintValue(v)))
		case 3:
			m.SessionComment = append(m.SessionComment, uint32(varintValue(v)))
		}
		return nil
	})
}

// ServerConfig announces server-wide limits (§3, §5 limits).
type ServerConfig struct {
	MaxBandwidth    *uint32
	WelcomeText     *string
	AllowHTML       *bool
	MessageLength   *uint32
	ImageMessageLength *uint32
}

func (m *ServerConfig) marshal() []byte {
	w := &fieldWriter{}
	w.optUint32(1, m.MaxBandwidth)
	w.optString(2, m.WelcomeText)
	w.optBool(3, m.AllowHTML)
	w.optUint32(4, m.MessageLength)
	w.optUint32(5, m.ImageMessageLength)
	return w.buf
}

func (m *ServerConfig) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.MaxBandwidth = u32ptr(v)
		case 2:
			m.WelcomeText = strptr(v)
		case 3:
			m.AllowHTML = boolptr(v)
		case 4:
			m.MessageLength = u32ptr(v)
		case 5:
			m.ImageMessageLength = u32ptr(v)
		}
		return nil
	})
}

// SuggestConfig recommends client-side settings.
type SuggestConfig struct {
	Version        *uint32
	Positional     *bool
	PushToTalk     *bool
}

func (m *SuggestConfig) marshal() []byte {
	w := &fieldWriter{}
	w.optUint32(1, m.Version)
	w.optBool(2, m.Positional)
	w.optBool(3, m.PushToTalk)
	return w.buf
}

func (m *SuggestConfig) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.Version = u32ptr(v)
		case 2:
			m.Positional = boolptr(v)
		case 3:
			m.PushToTalk = boolptr(v)
		}
		return nil
	})
}

// PluginDataTransmission relays opaque plugin-to-plugin data between
// clients, out of scope for interpretation by the server (§1).
type PluginDataTransmission struct {
	SenderSession   *uint32
	ReceiverSessions []uint32
	Data            []byte
	DataID          *string
}

func (m *PluginDataTransmission) marshal() []byte {
	w := &fieldWriter{}
	w.optUint32(1, m.SenderSession)
	w.repUint32(2, m.ReceiverSessions)
	w.optBytes(3, m.Data)
	w.optString(4, m.DataID)
	return w.buf
}

func (m *PluginDataTransmission) unmarshal(data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case 1:
			m.SenderSession = u32ptr(v)
		case 2:
			m.ReceiverSessions = append(m.ReceiverSessions, uint32(varintValue(v)))
		case 3:
			m.Data = append([]byte(nil), v...)
		case 4:
			m.DataID = strptr(v)
		}
		return nil
	})
}
