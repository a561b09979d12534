package model

import "time"

// MuteState bundles the mute/deaf bits carried on every Session (§3).
type MuteState struct {
	Mute           bool
	Deaf           bool
	Suppress       bool
	SelfMute       bool
	SelfDeaf       bool
	PrioritySpeaker bool
	Recording      bool
}

// Muted reports whether the session's own voice should be dropped at
// the router, independent of any recipient-side deaf/mute state
// (Testable Property #15).
func (m MuteState) Muted() bool {
	return m.Mute || m.SelfMute || m.Suppress
}

// Deafened reports whether this session should not receive any voice
// at all, regardless of target (§4.10 recipient filter).
func (m MuteState) Deafened() bool {
	return m.Deaf || m.SelfDeaf
}

// CodecSupport records which audio codecs a session's client can
// decode, aggregated server-side into CodecVersion negotiation.
type CodecSupport struct {
	CELTAlpha bool
	CELTBeta  int32
	Opus      bool
}

// VoiceTargetChannel is one channel entry inside a VoiceTarget slot
// (§3, §4.12).
type VoiceTargetChannel struct {
	ChannelID uint32
	Links     bool
	Children  bool
	Group     string
}

// VoiceTarget is one addressable whisper/shout target, written by the
// client via the VoiceTarget message and read by the router (§4.10,
// §4.12). Slots are indexed 1..30; slot 0 is the implicit "talk into my
// channel" and slot 31 is server loopback, neither is stored here.
type VoiceTarget struct {
	Channels []VoiceTargetChannel
	Sessions []uint32
}

// Flags are per-session capability/behavior bits that don't fit the
// mute/deaf bitset (§3).
type Flags struct {
	HasFullUserList bool
	Promiscuous     bool
}

// Session is a live, authenticated client connection (§3). It is
// never persisted; it is rebuilt from Hub RPC on Edge restart and
// discarded on disconnect/kick/ban/eviction.
type Session struct {
	Session   uint32
	UserID    uint32 // 0 = guest
	Username  string
	ChannelID uint32
	EdgeID    string

	Mute MuteState

	ListeningChannels map[uint32]struct{}
	TemporaryTokens   []string
	CertHash          string
	IP                string

	Codec CodecSupport

	VoiceTargets map[uint32]*VoiceTarget // slot 1..30

	LastActive time.Time
	Flags      Flags

	superUser bool
}

// IsGuest reports whether the session authenticated without a
// registered user_id.
func (s *Session) IsGuest() bool {
	return s.UserID == 0 && !s.IsSuperUser()
}

// IsSuperUser reports whether this session is the built-in SuperUser
// account (user_id 0 is reserved for guests *except* when the
// authenticated identity is explicitly flagged SuperUser by the auth
// coordinator, tracked separately since user_id alone is ambiguous for
// guests vs. SuperUser in this cluster's auth model).
func (s *Session) IsSuperUser() bool {
	return s.superUser
}

// SetSuperUser records whether the session is the SuperUser. The Edge
// calls it once at authentication, from the group list the Hub
// returns; no client message sets it.
func (s *Session) SetSuperUser(v bool) { s.superUser = v }

// MarkActive stamps LastActive, used by the idle-timeout sweep
// (§5 clientTimeout).
func (s *Session) MarkActive(now time.Time) {
	s.LastActive = now
}

// Idle reports whether the session has been silent longer than
// timeout.
func (s *Session) Idle(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActive) > timeout
}
