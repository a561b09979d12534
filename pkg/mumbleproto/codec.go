package mumbleproto

import "fmt"

// Encode marshals msg into its wire payload, ready for pkg/framing to
// attach the 6-byte header.
func Encode(msg Message) []byte {
	return msg.marshal()
}

// Decode allocates the concrete message for typ and unmarshals data
// into it.
func Decode(typ uint16, data []byte) (Message, error) {
	msg := newMessage(typ)
	if msg == nil {
		return nil, fmt.Errorf("mumbleproto: unknown message type %d", typ)
	}
	if err := msg.unmarshal(data); err != nil {
		return nil, fmt.Errorf("mumbleproto: decode type %d: %w", typ, err)
	}
	return msg, nil
}

func newMessage(typ uint16) Message {
	switch typ {
	case TypeVersion:
		return &Version{}
	case TypeAuthenticate:
		return &Authenticate{}
	case TypePing:
		return &Ping{}
	case TypeReject:
		return &Reject{}
	case TypeServerSync:
		return &ServerSync{}
	case TypeChannelRemove:
		return &ChannelRemove{}
	case TypeChannelState:
		return &ChannelState{}
	case TypeUserRemove:
		return &UserRemove{}
	case TypeUserState:
		return &UserState{}
	case TypeBanList:
		return &BanList{}
	case TypeTextMessage:
		return &TextMessage{}
	case TypePermissionDenied:
		return &PermissionDenied{}
	case TypeACL:
		return &ACL{}
	case TypeQueryUsers:
		return &QueryUsers{}
	case TypeCryptSetup:
		return &CryptSetup{}
	case TypeContextActionModify:
		return &ContextActionModify{}
	case TypeContextAction:
		return &ContextAction{}
	case TypeUserList:
		return &UserList{}
	case TypeVoiceTarget:
		return &VoiceTarget{}
	case TypePermissionQuery:
		return &PermissionQuery{}
	case TypeCodecVersion:
		return &CodecVersion{}
	case TypeUserStats:
		return &UserStats{}
	case TypeRequestBlob:
		return &RequestBlob{}
	case TypeServerConfig:
		return &ServerConfig{}
	case TypeSuggestConfig:
		return &SuggestConfig{}
	case TypePluginDataTransmission:
		return &PluginDataTransmission{}
	default:
		return nil
	}
}
