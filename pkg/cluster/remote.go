package cluster

import "sync"

// RemoteUser is what an Edge knows about a session hosted on a peer
// Edge (§4.16 `remoteUsers: session -> {edge_id, channel_id}`).
type RemoteUser struct {
	EdgeID    string
	ChannelID uint32
}

// RemoteDirectory is the mirrored view of global sessions an Edge
// keeps for voice routing, updated by `user.remoteUserJoined/Left/
// StateChanged` notifications (§4.16).
type RemoteDirectory struct {
	mu              sync.RWMutex
	users           map[uint32]RemoteUser   // session -> remote location
	channelUsers    map[uint32]map[string]int // channel -> edge_id -> recipient count
}

// NewRemoteDirectory builds an empty remote-user directory.
func NewRemoteDirectory() *RemoteDirectory {
	return &RemoteDirectory{
		users:        make(map[uint32]RemoteUser),
		channelUsers: make(map[uint32]map[string]int),
	}
}

// Joined records a remote session, called on `user.remoteUserJoined`.
func (d *RemoteDirectory) Joined(session uint32, edgeID string, channelID uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.users[session] = RemoteUser{EdgeID: edgeID, ChannelID: channelID}
	d.incChannel(channelID, edgeID)
}

// Left removes a remote session, called on `user.remoteUserLeft`.
func (d *RemoteDirectory) Left(session uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[session]
	if !ok {
		return
	}
	delete(d.users, session)
	d.decChannel(u.ChannelID, u.EdgeID)
}

// StateChanged updates a remote session's channel, called on
// `user.remoteUserStateChanged` when channel_id changes.
func (d *RemoteDirectory) StateChanged(session uint32, newChannelID uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[session]
	if !ok || u.ChannelID == newChannelID {
		return
	}
	d.decChannel(u.ChannelID, u.EdgeID)
	u.ChannelID = newChannelID
	d.users[session] = u
	d.incChannel(newChannelID, u.EdgeID)
}

// Lookup returns where a remote session currently lives.
func (d *RemoteDirectory) Lookup(session uint32) (RemoteUser, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[session]
	return u, ok
}

// EdgesHosting returns the set of Edge ids that currently host at
// least one session in channelID — the strict subset the voice router
// fans out to (§4.10 "minimal set of peer Edges", §4.16).
func (d *RemoteDirectory) EdgesHosting(channelID uint32) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	byEdge := d.channelUsers[channelID]
	out := make([]string, 0, len(byEdge))
	for edgeID := range byEdge {
		out = append(out, edgeID)
	}
	return out
}

func (d *RemoteDirectory) incChannel(channelID uint32, edgeID string) {
	m, ok := d.channelUsers[channelID]
	if !ok {
		m = make(map[string]int)
		d.channelUsers[channelID] = m
	}
	m[edgeID]++
}

func (d *RemoteDirectory) decChannel(channelID uint32, edgeID string) {
	m, ok := d.channelUsers[channelID]
	if !ok {
		return
	}
	m[edgeID]--
	if m[edgeID] <= 0 {
		delete(m, edgeID)
	}
	if len(m) == 0 {
		delete(d.channelUsers, channelID)
	}
}
