// Package hub implements the Hub node: the cluster's single
// authoritative channel/ACL/ban/user store, the Edge registry and
// global session directory, the external credential-endpoint client,
// and the edge.* RPC surface every Edge dials into (§3, §4.14, §4.17).
package hub

import (
	"fmt"
	"sync"

	"mumble.info/grumble/pkg/acl"
	"mumble.info/grumble/pkg/database"
	"mumble.info/grumble/pkg/model"
	"mumble.info/grumble/pkg/rpc"
)

// channelNode is the Hub's in-memory mirror of one persisted channel,
// kept current underneath every read so ACL evaluation and fullSync
// snapshots never hit the database on the hot path.
type channelNode struct {
	snap     rpc.ChannelSnapshot
	children []uint32
	entries  []acl.Entry
	groups   map[string]*acl.GroupDef
}

// Tree is the Hub's authoritative channel tree: loaded from
// pkg/database at startup, mutated in memory, and persisted back on
// every ACL write (§3 Channel, §4.9, §4.17). It implements
// pkg/acl.Tree directly so the Hub can evaluate permissions itself
// when deciding whether to honor an edge.handleACL write.
type Tree struct {
	db *database.DB

	mu    sync.RWMutex
	nodes map[uint32]*channelNode
	root  uint32
}

// NewTree builds a Tree and loads every persisted channel/ACL/group
// row, seeding a root channel (id 0) if the database is empty (first
// launch, §3 "id 0 is always the root").
func NewTree(db *database.DB) (*Tree, error) {
	t := &Tree{db: db, nodes: make(map[uint32]*channelNode)}
	if err := t.reload(); err != nil {
		return nil, err
	}
	if _, ok := t.nodes[0]; !ok {
		tx := db.Tx()
		if err := tx.ChannelSave(&database.Channel{ID: 0, Name: "Root", InheritACL: true}); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("hub: seeding root channel: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		if err := t.reload(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// reload rebuilds the entire in-memory tree from the database. Called
// at startup and is cheap enough to call again after a bulk ACL write
// instead of patching the cache incrementally.
func (t *Tree) reload() error {
	tx := t.db.Tx()
	channels, err := tx.ChannelRead()
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("hub: loading channels: %w", err)
	}
	links, err := tx.ChannelLinksRead()
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("hub: loading channel links: %w", err)
	}
	tx.Rollback()

	linksByChannel := make(map[uint32][]uint32)
	for _, l := range links {
		linksByChannel[l.ChannelID] = append(linksByChannel[l.ChannelID], l.LinkedID)
	}

	nodes := make(map[uint32]*channelNode, len(channels))
	var root uint32
	hasRoot := false
	for _, c := range channels {
		nodes[c.ID] = &channelNode{
			snap: rpc.ChannelSnapshot{
				ID: c.ID, ParentID: c.ParentID, Name: c.Name, Position: c.Position,
				MaxUsers: c.MaxUsers, InheritACL: c.InheritACL, Links: linksByChannel[c.ID],
			},
			groups: map[string]*acl.GroupDef{},
		}
		if c.ParentID == nil {
			root = c.ID
			hasRoot = true
		}
	}
	for _, c := range channels {
		if c.ParentID == nil {
			continue
		}
		if parent, ok := nodes[*c.ParentID]; ok {
			parent.children = append(parent.children, c.ID)
		}
	}

	for id, node := range nodes {
		if err := t.loadACL(id, node); err != nil {
			return err
		}
	}

	t.mu.Lock()
	t.nodes = nodes
	if hasRoot {
		t.root = root
	}
	t.mu.Unlock()
	return nil
}

func (t *Tree) loadACL(id uint32, node *channelNode) error {
	tx := t.db.Tx()
	defer tx.Rollback()

	entries, err := tx.ACLRead(id)
	if err != nil {
		return fmt.Errorf("hub: loading acl for channel %d: %w", id, err)
	}
	for _, e := range entries {
		node.entries = append(node.entries, acl.Entry{
			UserID: e.UserID, Group: derefGroup(e.Group), ApplyHere: e.ApplyHere,
			ApplySubs: e.ApplySubs, Allow: model.Permission(e.Allow), Deny: model.Permission(e.Deny),
		})
	}

	groups, err := tx.GroupsRead(id)
	if err != nil {
		return fmt.Errorf("hub: loading groups for channel %d: %w", id, err)
	}
	for _, g := range groups {
		members, err := tx.GroupMembersRead(id, g.Name)
		if err != nil {
			return fmt.Errorf("hub: loading group members for %s/%d: %w", g.Name, id, err)
		}
		def := &acl.GroupDef{Name: g.Name, Inherit: g.Inherit, Inheritable: g.Inheritable,
			Add: map[uint32]struct{}{}, Remove: map[uint32]struct{}{}}
		for _, m := range members {
			if m.Kind == database.GroupMemberAdd {
				def.Add[m.UserID] = struct{}{}
			} else {
				def.Remove[m.UserID] = struct{}{}
			}
		}
		node.groups[g.Name] = def
	}
	return nil
}

func derefGroup(g *string) string {
	if g == nil {
		return ""
	}
	return *g
}

// Channel implements pkg/acl.Tree.
func (t *Tree) Channel(id uint32) (*acl.Channel, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	node, ok := t.nodes[id]
	if !ok {
		return nil, false
	}
	return &acl.Channel{
		ID: node.snap.ID, ParentID: node.snap.ParentID, InheritACL: node.snap.InheritACL,
		ACL: node.entries, Groups: node.groups,
	}, true
}

// Root returns the tree's root channel id.
func (t *Tree) Root() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// WriteACL persists a channel's ACL entries and groups wholesale, then
// reloads the node in memory, matching the Edge's forwarded full-ACL
// write semantics (§4.9).
func (t *Tree) WriteACL(channelID uint32, entries []database.ACLEntry, groups []struct {
	Group   database.Group
	Members []database.GroupMember
}) error {
	tx := t.db.Tx()
	if err := tx.ACLWrite(channelID, entries); err != nil {
		tx.Rollback()
		return fmt.Errorf("hub: writing acl entries: %w", err)
	}
	for _, g := range groups {
		if err := tx.GroupWrite(&g.Group, g.Members); err != nil {
			tx.Rollback()
			return fmt.Errorf("hub: writing group %s: %w", g.Group.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return t.reload()
}

// ChannelSnapshot builds the full edge.fullSync channel table.
func (t *Tree) ChannelSnapshot() rpc.ChannelTable {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := rpc.ChannelTable{Channels: make([]rpc.ChannelSnapshot, 0, len(t.nodes))}
	for _, node := range t.nodes {
		out.Channels = append(out.Channels, node.snap)
	}
	return out
}

// ACLSnapshot builds the full edge.fullSync ACL/group table.
func (t *Tree) ACLSnapshot() rpc.ACLTable {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var table rpc.ACLTable
	for id, node := range t.nodes {
		for _, e := range node.entries {
			table.Entries = append(table.Entries, rpc.ACLEntrySnapshot{
				ChannelID: id, UserID: e.UserID, Group: e.Group, ApplyHere: e.ApplyHere,
				ApplySubs: e.ApplySubs, Allow: uint64(e.Allow), Deny: uint64(e.Deny),
			})
		}
		for name, g := range node.groups {
			table.Groups = append(table.Groups, rpc.GroupSnapshot{
				ChannelID: id, Name: name, Inherit: g.Inherit, Inheritable: g.Inheritable,
				Add: fromSet(g.Add), Remove: fromSet(g.Remove),
			})
		}
	}
	return table
}

func fromSet(set map[uint32]struct{}) []uint32 {
	if len(set) == 0 {
		return nil
	}
	out := make([]uint32, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}
