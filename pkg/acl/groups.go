package acl

import "strings"

// IsMember evaluates channel-group membership for subject at
// channelID, handling the special groups first (§4.6).
func (e *Evaluator) IsMember(channelID uint32, group string, subject Subject) bool {
	switch group {
	case "all":
		return true
	case "auth":
		return subject.UserID > 0
	case "in":
		return subject.ChannelID == channelID
	case "out":
		return subject.ChannelID != channelID
	}
	if strings.HasPrefix(group, "$") {
		return subject.CertHash != "" && subject.CertHash == strings.TrimPrefix(group, "$")
	}

	members := e.effectiveGroupMembers(channelID, group)
	_, ok := members[subject.UserID]
	return ok
}

// effectiveGroupMembers computes a named group's effective membership
// at channelID: (parent inherited ∪ add) \ remove, recursing only when
// this channel's definition says Inherit and the parent's says
// Inheritable (§4.6, §3 Group).
func (e *Evaluator) effectiveGroupMembers(channelID uint32, name string) map[uint32]struct{} {
	ch, ok := e.tree.Channel(channelID)
	if !ok {
		return nil
	}

	def := ch.Groups[name]

	members := make(map[uint32]struct{})
	if def != nil && def.Inherit && ch.ParentID != nil {
		if parent, ok := e.tree.Channel(*ch.ParentID); ok {
			if parentDef, ok := parent.Groups[name]; ok && parentDef.Inheritable {
				for uid := range e.effectiveGroupMembers(*ch.ParentID, name) {
					members[uid] = struct{}{}
				}
			}
		}
	}

	if def == nil {
		return members
	}
	for uid := range def.Add {
		members[uid] = struct{}{}
	}
	for uid := range def.Remove {
		delete(members, uid)
	}
	return members
}
