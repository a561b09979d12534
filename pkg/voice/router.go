// Package voice implements the fan-out engine that turns one talker's
// voice datagram into a deduplicated recipient set: local sessions
// delivered directly and peer Edges forwarded to over Edge<->Edge UDP
// (§4.10-4.13).
package voice

import (
	"fmt"

	"mumble.info/grumble/pkg/acl"
	"mumble.info/grumble/pkg/cluster"
	"mumble.info/grumble/pkg/model"
	"mumble.info/grumble/pkg/session"
)

// ChannelTree resolves the channel topology the router needs beyond
// ACL ancestry: a channel's descendants at every depth and its symmetric links
// (§3 Channel, §4.10).
type ChannelTree interface {
	Descendants(channelID uint32) []uint32
	Links(channelID uint32) []uint32
}

// Plan is the result of resolving one voice datagram's target: the
// local sessions to deliver to directly, and the peer Edges (each
// scoped to one concrete channel or one explicit remote session) to
// forward the datagram to (§4.10, §4.16).
type Plan struct {
	Local   []uint32
	Forward []Forward
}

// Forward is one outbound Edge<->Edge voice datagram, after cross-Edge
// fan-out has been narrowed to the minimal set of Edges hosting a
// recipient (§4.10 "minimal set of peer Edges").
//
// Channel forwards carry a concrete channel id; the receiving Edge
// applies its own local recipient filter (deaf/mute, listener
// subscriptions) to its own sessions in that channel. Session forwards
// name one explicit remote recipient directly and skip channel
// resolution on the receiving side. Group-filtered whisper targets are
// only fully enforced against local candidates: a cross-Edge group
// filter degrades to "all of that Edge's members of the channel",
// since the sending Edge's RemoteDirectory does not mirror recipients'
// user ids (documented simplification, see DESIGN.md).
type Forward struct {
	EdgeID    string
	ChannelID uint32
	SessionID uint32
	IsSession bool
}

// Router resolves a sender + VoiceTarget slot into a Plan (§4.10).
type Router struct {
	edgeID   string
	sessions *session.Registry
	tree     ChannelTree
	acl      *acl.Evaluator
	remote   *cluster.RemoteDirectory
}

// NewRouter builds a Router scoped to one Edge.
func NewRouter(edgeID string, sessions *session.Registry, tree ChannelTree, evaluator *acl.Evaluator, remote *cluster.RemoteDirectory) *Router {
	return &Router{edgeID: edgeID, sessions: sessions, tree: tree, acl: evaluator, remote: remote}
}

// Route resolves voice from sender on targetSlot into a delivery plan.
// targetSlot 0 is normal talk into the sender's own channel, 1..30
// selects a previously-written VoiceTarget slot, 31 is server loopback
// (§3 "Voice target slot", §4.4, §4.10).
func (r *Router) Route(sender *model.Session, targetSlot byte) Plan {
	switch {
	case targetSlot == 31:
		return Plan{Local: []uint32{sender.Session}}
	case targetSlot == 0:
		return r.filter(sender, r.normalPlan(sender))
	case targetSlot >= 1 && targetSlot <= 30:
		return r.filter(sender, r.whisperPlan(sender, targetSlot))
	default:
		return Plan{}
	}
}

// normalPlan resolves ordinary talk (target slot 0): the sender's own
// channel, every other session listening to that channel regardless of
// where it sits, and the members of each channel linked to the
// sender's channel for which the sender holds Speak on that specific
// linked channel (§4.10 first bullet, §4.11).
func (r *Router) normalPlan(sender *model.Session) Plan {
	channels := map[uint32]struct{}{sender.ChannelID: {}}

	subject := acl.Subject{UserID: sender.UserID, CertHash: sender.CertHash, ChannelID: sender.ChannelID, SuperUser: sender.IsSuperUser()}
	for _, linked := range r.tree.Links(sender.ChannelID) {
		if r.acl.HasPermission(sender.Session, linked, subject, model.PermissionSpeak) {
			channels[linked] = struct{}{}
		}
	}

	var plan Plan
	seenEdges := make(map[string]struct{})
	for id := range channels {
		plan.Local = append(plan.Local, r.sessions.InChannel(id)...)

		for _, edgeID := range r.remote.EdgesHosting(id) {
			key := fmt.Sprintf("%s:%d", edgeID, id)
			if _, ok := seenEdges[key]; ok {
				continue
			}
			seenEdges[key] = struct{}{}
			plan.Forward = append(plan.Forward, Forward{EdgeID: edgeID, ChannelID: id})
		}
	}

	// Listeners reach C_S's audio regardless of which channel they sit
	// in themselves; link expansion above does not apply to them.
	plan.Local = append(plan.Local, r.sessions.ListeningTo(sender.ChannelID)...)

	return plan
}

// whisperPlan resolves a whisper/shout VoiceTarget slot: a union of
// channel entries (each possibly expanded by links/children and
// filtered by group) plus any explicit sessions named directly
// (§4.10 second bullet, §4.12).
func (r *Router) whisperPlan(sender *model.Session, slot byte) Plan {
	target, ok := sender.VoiceTargets[uint32(slot)]
	if !ok {
		return Plan{}
	}

	var plan Plan
	subject := acl.Subject{UserID: sender.UserID, CertHash: sender.CertHash, ChannelID: sender.ChannelID, SuperUser: sender.IsSuperUser()}

	for _, entry := range target.Channels {
		if !r.acl.HasPermission(sender.Session, entry.ChannelID, subject, model.PermissionWhisper) {
			continue
		}
		sub := r.channelPlan(sender, entry.ChannelID, entry.Links, entry.Children, entry.Group)
		plan.Local = append(plan.Local, sub.Local...)
		plan.Forward = append(plan.Forward, sub.Forward...)
	}

	for _, sid := range target.Sessions {
		if sid == sender.Session {
			continue
		}
		if _, ok := r.sessions.Get(sid); ok {
			plan.Local = append(plan.Local, sid)
			continue
		}
		if remote, ok := r.remote.Lookup(sid); ok {
			plan.Forward = append(plan.Forward, Forward{EdgeID: remote.EdgeID, SessionID: sid, IsSession: true})
		}
	}

	return plan
}

// channelPlan expands one target channel (optionally its links and/or
// descendants) into local recipients plus one Forward per hosting peer
// Edge, applying the group filter to local candidates only.
func (r *Router) channelPlan(sender *model.Session, channelID uint32, links, children bool, group string) Plan {
	channels := map[uint32]struct{}{channelID: {}}
	if links {
		for _, id := range r.tree.Links(channelID) {
			channels[id] = struct{}{}
		}
	}
	if children {
		for _, id := range r.tree.Descendants(channelID) {
			channels[id] = struct{}{}
		}
	}

	var plan Plan
	seenEdges := make(map[string]struct{})

	for id := range channels {
		for _, sid := range r.sessions.InChannel(id) {
			if group != "" {
				s, ok := r.sessions.Get(sid)
				if !ok {
					continue
				}
				subj := acl.Subject{UserID: s.UserID, CertHash: s.CertHash, ChannelID: s.ChannelID, SuperUser: s.IsSuperUser()}
				if !r.acl.IsMember(id, group, subj) {
					continue
				}
			}
			plan.Local = append(plan.Local, sid)
		}

		for _, edgeID := range r.remote.EdgesHosting(id) {
			key := fmt.Sprintf("%s:%d", edgeID, id)
			if _, ok := seenEdges[key]; ok {
				continue
			}
			seenEdges[key] = struct{}{}
			plan.Forward = append(plan.Forward, Forward{EdgeID: edgeID, ChannelID: id})
		}
	}

	return plan
}

// filter drops loopback self-delivery duplicates and recipients that
// should never hear voice: deaf/self_deaf recipients are dropped, and
// a sender who is muted/self_muted/suppressed never reaches the
// router in the first place at the call site, but filter defends
// against stale caller state too (§4.10 recipient filter, Testable
// Property #15). It also deduplicates the local recipient set.
func (r *Router) filter(sender *model.Session, plan Plan) Plan {
	if sender.Mute.Muted() {
		return Plan{}
	}

	seen := make(map[uint32]struct{}, len(plan.Local))
	out := make([]uint32, 0, len(plan.Local))
	for _, sid := range plan.Local {
		if sid == sender.Session {
			continue
		}
		if _, dup := seen[sid]; dup {
			continue
		}
		seen[sid] = struct{}{}

		s, ok := r.sessions.Get(sid)
		if !ok || s.Mute.Deafened() {
			continue
		}
		out = append(out, sid)
	}
	plan.Local = out
	return plan
}
