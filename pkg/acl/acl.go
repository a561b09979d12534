// Package acl implements permission evaluation over the channel tree:
// ACL chain walking with inheritance, channel-group membership
// including the special groups, and a SuperUser shortcut (§4.5, §4.6).
package acl

import (
	"sync"

	"mumble.info/grumble/pkg/model"
)

// Entry is one ACL row, channel-agnostic (the caller supplies which
// channel it lives on when building a Chain).
type Entry struct {
	UserID    *int32 // nil => group entry
	Group     string
	ApplyHere bool
	ApplySubs bool
	Allow     model.Permission
	Deny      model.Permission
}

// GroupDef is one named group's definition, without its resolved
// membership (§3 Group).
type GroupDef struct {
	Name        string
	Inherit     bool
	Inheritable bool
	Add         map[uint32]struct{}
	Remove      map[uint32]struct{}
}

// Channel is the subset of channel state the evaluator needs: its
// ancestry link, ACL list, and group definitions (§3 Channel).
type Channel struct {
	ID         uint32
	ParentID   *uint32
	InheritACL bool
	ACL        []Entry
	Groups     map[string]*GroupDef
}

// Tree resolves a channel id to its Channel record; supplied by the
// caller (Hub-side in-memory channel table) so this package stays free
// of storage concerns.
type Tree interface {
	Channel(id uint32) (*Channel, bool)
}

// Subject is the evaluated principal: a live session (or, for offline
// evaluation, a registered user id and cert hash).
type Subject struct {
	UserID    uint32
	CertHash  string
	ChannelID uint32 // session's current channel, for in/out special groups
	SuperUser bool
}

// Evaluator computes and caches effective permission bitmasks (§4.5).
type Evaluator struct {
	tree Tree

	mu    sync.Mutex
	cache map[cacheKey]model.Permission
}

type cacheKey struct {
	session   uint32
	channelID uint32
}

// New builds an Evaluator over tree.
func New(tree Tree) *Evaluator {
	return &Evaluator{tree: tree, cache: make(map[cacheKey]model.Permission)}
}

// HasPermission reports whether subject (addressed by sessionID for
// cache keying) holds perm on channelID (§4.5).
func (e *Evaluator) HasPermission(sessionID, channelID uint32, subject Subject, perm model.Permission) bool {
	return model.Effective(e.effectiveMask(sessionID, channelID, subject)).Has(perm)
}

// effectiveMask computes (or returns the cached) full permission
// bitmask for (sessionID, channelID) (Testable Property #1).
func (e *Evaluator) effectiveMask(sessionID, channelID uint32, subject Subject) model.Permission {
	key := cacheKey{session: sessionID, channelID: channelID}

	e.mu.Lock()
	if mask, ok := e.cache[key]; ok {
		e.mu.Unlock()
		return mask
	}
	e.mu.Unlock()

	mask := e.compute(channelID, subject)

	e.mu.Lock()
	e.cache[key] = mask
	e.mu.Unlock()

	return mask
}

// Invalidate drops every cached mask; called on ACL/channel/group
// change at or above a channel (§4.5 cache invalidation). Since the
// cache is keyed by (session, channel) and not the full chain, the
// whole cache is flushed rather than only the affected subtree: ACL
// changes are infrequent relative to HasPermission calls.
func (e *Evaluator) Invalidate() {
	e.mu.Lock()
	e.cache = make(map[cacheKey]model.Permission)
	e.mu.Unlock()
}

// chain builds [first, ..., channel] by walking parent links until a
// channel with InheritACL=false is reached (that channel is the last
// included ancestor). The first element is root only when every
// channel on the way up inherits; otherwise it is the nearest channel
// (possibly channelID itself) with InheritACL=false.
func (e *Evaluator) chain(channelID uint32) []*Channel {
	var reverse []*Channel

	id := channelID
	for {
		ch, ok := e.tree.Channel(id)
		if !ok {
			break
		}
		reverse = append(reverse, ch)
		if !ch.InheritACL || ch.ParentID == nil {
			break
		}
		id = *ch.ParentID
	}

	chain := make([]*Channel, len(reverse))
	for i, ch := range reverse {
		chain[len(reverse)-1-i] = ch
	}
	return chain
}

func (e *Evaluator) compute(channelID uint32, subject Subject) model.Permission {
	if subject.SuperUser {
		return model.AllPermissions
	}

	chain := e.chain(channelID)
	if len(chain) == 0 {
		return 0
	}

	granted := model.DefaultPermissions

	for i, ch := range chain {
		isTarget := i == len(chain)-1
		if !ch.InheritACL {
			granted = model.DefaultPermissions
		}

		for _, entry := range ch.ACL {
			applies := (isTarget && entry.ApplyHere) || (!isTarget && entry.ApplySubs)
			if !applies {
				continue
			}
			if !e.entryMatches(entry, ch.ID, subject) {
				continue
			}
			granted = model.Grant(granted, entry.Allow, entry.Deny)
		}

		if !model.Effective(granted).Has(model.PermissionTraverse) && !granted.Has(model.PermissionWrite) {
			return 0
		}
	}

	return granted
}

func (e *Evaluator) entryMatches(entry Entry, channelID uint32, subject Subject) bool {
	if entry.UserID != nil {
		return *entry.UserID >= 0 && uint32(*entry.UserID) == subject.UserID
	}
	return e.IsMember(channelID, entry.Group, subject)
}
