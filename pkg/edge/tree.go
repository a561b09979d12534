// Package edge implements the Edge node: the client-facing TLS/UDP
// listener, the per-client connection state machine, and the glue
// between an Edge's local session table and the Hub it defers to for
// every authoritative decision (auth, ACL, channel tree) (§2, §4.7).
package edge

import (
	"sync"

	"mumble.info/grumble/pkg/acl"
	"mumble.info/grumble/pkg/model"
	"mumble.info/grumble/pkg/rpc"
)

// channelNode is one cached row of the Hub's authoritative channel
// tree, enriched with the ACL/group rows scoped to it.
type channelNode struct {
	snap     rpc.ChannelSnapshot
	children []uint32
	entries  []acl.Entry
	groups   map[string]*acl.GroupDef
}

// LocalTree is the Edge's read-only mirror of the Hub's channel tree,
// rebuilt from `edge.fullSync` and re-pulled whole from the Hub on every
// `edge.aclUpdated` notification (§4.14). It implements both
// pkg/acl.Tree and pkg/voice.ChannelTree so the Edge can evaluate
// permissions and resolve voice fan-out locally without a Hub
// round-trip for every packet.
type LocalTree struct {
	mu    sync.RWMutex
	nodes map[uint32]*channelNode
	root  uint32
}

// NewLocalTree builds an empty tree.
func NewLocalTree() *LocalTree {
	return &LocalTree{nodes: make(map[uint32]*channelNode)}
}

// ApplyChannelTable replaces the tree's channel/parent/link rows
// wholesale, as delivered by `edge.fullSync`.
func (t *LocalTree) ApplyChannelTable(table rpc.ChannelTable) {
	t.mu.Lock()
	defer t.mu.Unlock()

	nodes := make(map[uint32]*channelNode, len(table.Channels))
	for _, c := range table.Channels {
		nodes[c.ID] = &channelNode{snap: c, groups: map[string]*acl.GroupDef{}}
		if c.ParentID == nil {
			t.root = c.ID
		}
	}
	for _, c := range table.Channels {
		if c.ParentID == nil {
			continue
		}
		if parent, ok := nodes[*c.ParentID]; ok {
			parent.children = append(parent.children, c.ID)
		}
	}
	t.nodes = nodes
}

// ApplyACLTable replaces the ACL entries and group definitions scoped
// to each channel, as delivered by `edge.fullSync` or re-pulled after
// `edge.aclUpdated`.
func (t *LocalTree) ApplyACLTable(table rpc.ACLTable) {
	t.mu.Lock()
	defer t.mu.Unlock()

	byChannel := make(map[uint32][]acl.Entry)
	for _, e := range table.Entries {
		byChannel[e.ChannelID] = append(byChannel[e.ChannelID], acl.Entry{
			UserID:    e.UserID,
			Group:     e.Group,
			ApplyHere: e.ApplyHere,
			ApplySubs: e.ApplySubs,
			Allow:     model.Permission(e.Allow),
			Deny:      model.Permission(e.Deny),
		})
	}
	groupsByChannel := make(map[uint32]map[string]*acl.GroupDef)
	for _, g := range table.Groups {
		m, ok := groupsByChannel[g.ChannelID]
		if !ok {
			m = map[string]*acl.GroupDef{}
			groupsByChannel[g.ChannelID] = m
		}
		m[g.Name] = &acl.GroupDef{
			Name:        g.Name,
			Inherit:     g.Inherit,
			Inheritable: g.Inheritable,
			Add:         toSet(g.Add),
			Remove:      toSet(g.Remove),
		}
	}

	for id, node := range t.nodes {
		node.entries = byChannel[id]
		if m, ok := groupsByChannel[id]; ok {
			node.groups = m
		} else {
			node.groups = map[string]*acl.GroupDef{}
		}
	}
}

// UpdateChannel applies one incremental ChannelState change (rename,
// move, link change) to the mirror.
func (t *LocalTree) UpdateChannel(snap rpc.ChannelSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.nodes[snap.ID]
	if !ok {
		node = &channelNode{groups: map[string]*acl.GroupDef{}}
		t.nodes[snap.ID] = node
	} else if node.snap.ParentID != nil {
		if old, ok := t.nodes[*node.snap.ParentID]; ok {
			for i, c := range old.children {
				if c == snap.ID {
					old.children = append(old.children[:i:i], old.children[i+1:]...)
					break
				}
			}
		}
	}
	node.snap = snap
	if snap.ParentID == nil {
		t.root = snap.ID
	} else if parent, ok := t.nodes[*snap.ParentID]; ok {
		parent.children = append(parent.children, snap.ID)
	}
}

// RemoveChannel deletes a channel from the local mirror.
func (t *LocalTree) RemoveChannel(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if node, ok := t.nodes[id]; ok && node.snap.ParentID != nil {
		if parent, ok := t.nodes[*node.snap.ParentID]; ok {
			for i, c := range parent.children {
				if c == id {
					parent.children = append(parent.children[:i:i], parent.children[i+1:]...)
					break
				}
			}
		}
	}
	delete(t.nodes, id)
}

// Root returns the tree's root channel id.
func (t *LocalTree) Root() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// Channel implements pkg/acl.Tree.
func (t *LocalTree) Channel(id uint32) (*acl.Channel, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	node, ok := t.nodes[id]
	if !ok {
		return nil, false
	}
	return &acl.Channel{
		ID:         node.snap.ID,
		ParentID:   node.snap.ParentID,
		InheritACL: node.snap.InheritACL,
		ACL:        node.entries,
		Groups:     node.groups,
	}, true
}

// Descendants implements pkg/voice.ChannelTree: every channel
// transitively nested under id, not including id itself.
func (t *LocalTree) Descendants(id uint32) []uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []uint32
	var walk func(uint32)
	walk = func(cur uint32) {
		node, ok := t.nodes[cur]
		if !ok {
			return
		}
		for _, child := range node.children {
			out = append(out, child)
			walk(child)
		}
	}
	walk(id)
	return out
}

// Links implements pkg/voice.ChannelTree.
func (t *LocalTree) Links(id uint32) []uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	node, ok := t.nodes[id]
	if !ok {
		return nil
	}
	return node.snap.Links
}

// Name returns a channel's display name, used when sending
// ChannelState to a newly-connected client.
func (t *LocalTree) Name(id uint32) (rpc.ChannelSnapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node, ok := t.nodes[id]
	if !ok {
		return rpc.ChannelSnapshot{}, false
	}
	return node.snap, true
}

func toSet(ids []uint32) map[uint32]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
