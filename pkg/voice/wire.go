package voice

// channelTargetBit marks a marshaled EdgeVoiceHeader.TargetID as a
// channel id rather than an explicit session id, since both ids share
// the same uint32 space and the fixed-size Edge<->Edge header (§5) has
// no separate discriminant field. Session and channel ids in practice
// never approach this bit (Hub-allocated monotonic counters), so the
// reservation costs nothing in range.
const channelTargetBit = uint32(1) << 31

// EncodeTarget packs a Forward's destination into an EdgeVoiceHeader
// TargetID.
func EncodeTarget(f Forward) uint32 {
	if f.IsSession {
		return f.SessionID &^ channelTargetBit
	}
	return f.ChannelID | channelTargetBit
}

// DecodeTarget unpacks an EdgeVoiceHeader TargetID back into a
// (isChannel, id) pair.
func DecodeTarget(raw uint32) (isChannel bool, id uint32) {
	if raw&channelTargetBit != 0 {
		return true, raw &^ channelTargetBit
	}
	return false, raw
}
