package hub

import (
	"sync"

	"mumble.info/grumble/pkg/rpc"
	"mumble.info/grumble/pkg/session"
)

// remoteSession is the Hub's record of one live session anywhere in
// the cluster (§3 Session, §4.16), reported by its owning Edge via
// edge.reportSession and torn down when its Edge expires from the
// registry.
type remoteSession struct {
	SessionID uint32
	EdgeID    string
	UserID    int32
	Username  string
	ChannelID uint32
	StartTime int64
	IP        string
	CertHash  string
}

// Sessions is the Hub's cluster-wide session directory: who is
// connected, and which Edge owns them (§3, §4.16). It also tracks
// listening-channel subscriptions across the whole cluster, since the
// ListenersPerChannel/ListenersPerUser caps (§4.11) apply regardless of
// which Edge a listener or a channel's members sit on.
type Sessions struct {
	ids *session.Allocator

	mu   sync.RWMutex
	byID map[uint32]remoteSession

	listenMu      sync.Mutex
	sessionListen map[uint32]map[uint32]struct{} // session -> listened channel ids
	channelCount  map[uint32]int                 // channel -> listener count
	userCount     map[int32]int                  // user -> total listener subscriptions
}

// NewSessions builds an empty directory with its own monotonic session
// id allocator (§4.14 edge.allocateSessionId).
func NewSessions() *Sessions {
	return &Sessions{
		ids:           session.NewAllocator(),
		byID:          make(map[uint32]remoteSession),
		sessionListen: make(map[uint32]map[uint32]struct{}),
		channelCount:  make(map[uint32]int),
		userCount:     make(map[int32]int),
	}
}

// Allocate returns a cluster-unique, non-zero session id.
func (s *Sessions) Allocate() uint32 {
	return s.ids.Next()
}

// Report records or updates a session reported by its Edge.
func (s *Sessions) Report(p rpc.EdgeReportSessionParams, edgeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[p.SessionID] = remoteSession{
		SessionID: p.SessionID, EdgeID: edgeID, UserID: p.UserID, Username: p.Username, ChannelID: p.ChannelID,
		StartTime: p.StartTime, IP: p.IPAddress, CertHash: p.CertHash,
	}
}

// RemoveAllOnEdge drops every session owned by edgeID, used when that
// Edge is dropped after its heartbeat deadline lapses. Returns the
// removed session ids.
func (s *Sessions) RemoveAllOnEdge(edgeID string) []uint32 {
	s.mu.Lock()
	var removed []remoteSession
	for id, sess := range s.byID {
		if sess.EdgeID == edgeID {
			sess.SessionID = id
			removed = append(removed, sess)
			delete(s.byID, id)
		}
	}
	s.mu.Unlock()

	s.listenMu.Lock()
	for _, sess := range removed {
		s.clearListeningLocked(sess.SessionID, sess.UserID)
	}
	s.listenMu.Unlock()

	ids := make([]uint32, len(removed))
	for i, sess := range removed {
		ids[i] = sess.SessionID
	}
	return ids
}

// UpdateListening applies one session's ListeningChannelAdd/Remove
// request against the cluster-wide listener caps (§4.11), returning
// the subset of add that was granted. Removals always succeed; a
// channel already being listened to is reported as granted without
// re-counting against the caps.
func (s *Sessions) UpdateListening(sessionID uint32, userID int32, add, remove []uint32, perChannelCap, perUserCap int) []uint32 {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()

	current, ok := s.sessionListen[sessionID]
	if !ok {
		current = make(map[uint32]struct{})
		s.sessionListen[sessionID] = current
	}

	for _, channelID := range remove {
		if _, listening := current[channelID]; !listening {
			continue
		}
		delete(current, channelID)
		s.channelCount[channelID]--
		s.userCount[userID]--
	}

	var granted []uint32
	for _, channelID := range add {
		if _, already := current[channelID]; already {
			granted = append(granted, channelID)
			continue
		}
		if perChannelCap > 0 && s.channelCount[channelID] >= perChannelCap {
			continue
		}
		if perUserCap > 0 && s.userCount[userID] >= perUserCap {
			continue
		}
		current[channelID] = struct{}{}
		s.channelCount[channelID]++
		s.userCount[userID]++
		granted = append(granted, channelID)
	}
	return granted
}

// clearListeningLocked drops every listening-channel subscription a
// departed session held. Caller must hold listenMu.
func (s *Sessions) clearListeningLocked(sessionID uint32, userID int32) {
	current, ok := s.sessionListen[sessionID]
	if !ok {
		return
	}
	for channelID := range current {
		s.channelCount[channelID]--
		s.userCount[userID]--
	}
	delete(s.sessionListen, sessionID)
}

// Snapshot builds the edge.fullSync session table for a newly-joined
// Edge's remote directory (§4.16).
func (s *Sessions) Snapshot() []rpc.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]rpc.SessionSnapshot, 0, len(s.byID))
	for id, sess := range s.byID {
		out = append(out, rpc.SessionSnapshot{
			SessionID: id, EdgeID: sess.EdgeID, ChannelID: sess.ChannelID,
			UserID: sess.UserID, Username: sess.Username,
		})
	}
	return out
}

// Len reports the cluster-wide session count.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
