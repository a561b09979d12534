// Package session implements the per-Edge table of local client
// sessions (§3 Session, §2 "Session registry").
package session

import (
	"sync"

	"mumble.info/grumble/pkg/model"
)

// Registry is the owning Edge's in-memory session table. Every
// session is created on authenticate-success and destroyed on
// disconnect/kick/ban/Hub eviction; it is never persisted (§4.17).
type Registry struct {
	mu       sync.RWMutex
	byID     map[uint32]*model.Session
	byChannel map[uint32]map[uint32]struct{} // channel -> set of session ids
	byListen  map[uint32]map[uint32]struct{} // listened channel -> set of session ids (§4.11)
}

// New builds an empty session registry.
func New() *Registry {
	return &Registry{
		byID:      make(map[uint32]*model.Session),
		byChannel: make(map[uint32]map[uint32]struct{}),
		byListen:  make(map[uint32]map[uint32]struct{}),
	}
}

// Add registers a new local session.
func (r *Registry) Add(s *model.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[s.Session] = s
	r.indexChannel(s.ChannelID, s.Session)
	for channelID := range s.ListeningChannels {
		r.indexListen(channelID, s.Session)
	}
}

// Remove deletes a session by id, returning it if present.
func (r *Registry) Remove(id uint32) (*model.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	delete(r.byID, id)
	r.deindexChannel(s.ChannelID, id)
	for channelID := range s.ListeningChannels {
		r.deindexListen(channelID, id)
	}
	return s, true
}

// Get returns a session by id.
func (r *Registry) Get(id uint32) (*model.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byID[id]
	return s, ok
}

// Move updates a session's channel membership and the channel index,
// used whenever UserState changes channel_id.
func (r *Registry) Move(id, newChannelID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return
	}
	r.deindexChannel(s.ChannelID, id)
	s.ChannelID = newChannelID
	r.indexChannel(newChannelID, id)
}

// InChannel returns the session ids currently in channelID.
func (r *Registry) InChannel(channelID uint32) []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byChannel[channelID]
	out := make([]uint32, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// ListeningTo returns the session ids subscribed to channelID via
// UserState.ListeningChannelAdd, including any that are also members
// of channelID itself.
func (r *Registry) ListeningTo(channelID uint32) []uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byListen[channelID]
	out := make([]uint32, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// SetListening adds or removes channelID from id's listening-channel
// index, mirroring a mutation already applied to the session's own
// model.Session.ListeningChannels map.
func (r *Registry) SetListening(id, channelID uint32, listening bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if listening {
		r.indexListen(channelID, id)
	} else {
		r.deindexListen(channelID, id)
	}
}

// All returns every locally-held session, for broadcast construction.
func (r *Registry) All() []*model.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Session, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

// Len reports the number of locally-held sessions, used for Edge
// heartbeat load reporting (§4.14 `edge.heartbeat {stats}`).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Registry) indexChannel(channelID, sessionID uint32) {
	set, ok := r.byChannel[channelID]
	if !ok {
		set = make(map[uint32]struct{})
		r.byChannel[channelID] = set
	}
	set[sessionID] = struct{}{}
}

func (r *Registry) deindexChannel(channelID, sessionID uint32) {
	set, ok := r.byChannel[channelID]
	if !ok {
		return
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(r.byChannel, channelID)
	}
}

func (r *Registry) indexListen(channelID, sessionID uint32) {
	set, ok := r.byListen[channelID]
	if !ok {
		set = make(map[uint32]struct{})
		r.byListen[channelID] = set
	}
	set[sessionID] = struct{}{}
}

func (r *Registry) deindexListen(channelID, sessionID uint32) {
	set, ok := r.byListen[channelID]
	if !ok {
		return
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(r.byListen, channelID)
	}
}
