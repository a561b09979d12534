// Package mumbleproto implements the Mumble control-message set and the
// voice datagram wire format (§4.3, §4.4, §6). Control messages are
// hand-encoded with google.golang.org/protobuf/encoding/protowire
// rather than generated from a .proto file, since no protoc toolchain
// runs as part of building this module.
package mumbleproto

// Message type identifiers, fixed by the Mumble wire protocol (§6).
const (
	TypeVersion                = uint16(0)
	TypeUDPTunnel              = uint16(1)
	TypeAuthenticate           = uint16(2)
	TypePing                   = uint16(3)
	TypeReject                 = uint16(4)
	TypeServerSync             = uint16(5)
	TypeChannelRemove          = uint16(6)
	TypeChannelState           = uint16(7)
	TypeUserRemove             = uint16(8)
	TypeUserState              = uint16(9)
	TypeBanList                = uint16(10)
	TypeTextMessage            = uint16(11)
	TypePermissionDenied       = uint16(12)
	TypeACL                    = uint16(13)
	TypeQueryUsers             = uint16(14)
	TypeCryptSetup             = uint16(15)
	TypeContextActionModify    = uint16(16)
	TypeContextAction          = uint16(17)
	TypeUserList               = uint16(18)
	TypeVoiceTarget            = uint16(19)
	TypePermissionQuery        = uint16(20)
	TypeCodecVersion           = uint16(21)
	TypeUserStats              = uint16(22)
	TypeRequestBlob            = uint16(23)
	TypeServerConfig           = uint16(24)
	TypeSuggestConfig          = uint16(25)
	TypePluginDataTransmission = uint16(26)
)

// RejectType enumerates Mumble's authentication-failure reasons
// (§4.7, §7).
type RejectType int32

const (
	RejectNone RejectType = iota
	RejectWrongVersion
	RejectWrongUserPW
	RejectUsernameInUse
	RejectServerFull
	RejectNoCertificate
	RejectAuthenticatorFail
	RejectInvalidUsername
)

// DenyType enumerates why a requested action was
// refused (§4.7, §7).
type DenyType int32

const (
	DenyText DenyType = iota
	DenyPermission
	DenySuperUser
	DenyChannelName
	DenyTextTooLong
	DenyH9K
	DenyTemporaryChannel
	DenyMissingCertificate
	DenyUserName
	DenyChannelFull
	DenyNestingLimit
)

// Message is implemented by every control message struct. marshal and
// unmarshal operate on the payload only; the 6-byte frame header is
// handled by pkg/framing.
type Message interface {
	marshal() []byte
	unmarshal(data []byte) error
}

// MessageType returns the wire type identifier for a concrete message
// value, mirroring the teacher's `mumbleproto.MessageType(msg)` table
// dispatch used from `client.go`'s sendMessage.
func MessageType(msg interface{}) uint16 {
	switch msg.(type) {
	case []byte:
		return TypeUDPTunnel
	case *Version:
		return TypeVersion
	case *Authenticate:
		return TypeAuthenticate
	case *Ping:
		return TypePing
	case *Reject:
		return TypeReject
	case *ServerSync:
		return TypeServerSync
	case *ChannelRemove:
		return TypeChannelRemove
	case *ChannelState:
		return TypeChannelState
	case *UserRemove:
		return TypeUserRemove
	case *UserState:
		return TypeUserState
	case *BanList:
		return TypeBanList
	case *TextMessage:
		return TypeTextMessage
	case *PermissionDenied:
		return TypePermissionDenied
	case *ACL:
		return TypeACL
	case *QueryUsers:
		return TypeQueryUsers
	case *CryptSetup:
		return TypeCryptSetup
	case *ContextActionModify:
		return TypeContextActionModify
	case *ContextAction:
		return TypeContextAction
	case *UserList:
		return TypeUserList
	case *VoiceTarget:
		return TypeVoiceTarget
	case *PermissionQuery:
		return TypePermissionQuery
	case *CodecVersion:
		return TypeCodecVersion
	case *UserStats:
		return TypeUserStats
	case *RequestBlob:
		return TypeRequestBlob
	case *ServerConfig:
		return TypeServerConfig
	case *SuggestConfig:
		return TypeSuggestConfig
	case *PluginDataTransmission:
		return TypePluginDataTransmission
	default:
		panic("mumbleproto: unknown message type")
	}
}
