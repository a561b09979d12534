package database

// Group is a persisted named group on a channel (§3 Group). Effective
// membership (inherited ∪ add \ remove) is computed by pkg/acl from
// this row plus its GroupMember rows; the cache of effective members
// is kept in memory at the Hub, not persisted.
type Group struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	ChannelID   uint32 `gorm:"index:idx_group_channel_name,unique"`
	Name        string `gorm:"index:idx_group_channel_name,unique"`
	Inherit     bool
	Inheritable bool
}

func (Group) TableName() string {
	return "groups"
}

// GroupMemberKind distinguishes an explicit add from an explicit
// remove within a group's membership list.
type GroupMemberKind int

const (
	GroupMemberAdd GroupMemberKind = iota
	GroupMemberRemove
)

// GroupMember is one explicit add/remove entry of a Group (§3
// `add:{user_id}`, `remove:{user_id}`).
type GroupMember struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	ChannelID uint32 `gorm:"index"`
	GroupName string
	UserID    uint32
	Kind      GroupMemberKind
}

func (GroupMember) TableName() string {
	return "group_members"
}

// GroupsRead loads every group defined directly on a channel.
func (d *DbTx) GroupsRead(channelID uint32) ([]Group, error) {
	var groups []Group
	if err := d.db.Find(&groups, "channel_id = ?", channelID).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

// GroupMembersRead loads every add/remove row for a group.
func (d *DbTx) GroupMembersRead(channelID uint32, name string) ([]GroupMember, error) {
	var members []GroupMember
	if err := d.db.Find(&members, "channel_id = ? AND group_name = ?", channelID, name).Error; err != nil {
		return nil, err
	}
	return members, nil
}

// GroupWrite upserts a group definition and replaces its membership
// list wholesale.
func (d *DbTx) GroupWrite(g *Group, members []GroupMember) error {
	if g.ID == 0 {
		var existing Group
		if err := d.db.Where("channel_id = ? AND name = ?", g.ChannelID, g.Name).Limit(1).Find(&existing).Error; err != nil {
			return err
		}
		g.ID = existing.ID
	}
	if err := d.db.Save(g).Error; err != nil {
		return err
	}
	if err := d.db.Where("channel_id = ? AND group_name = ?", g.ChannelID, g.Name).
		Delete(&GroupMember{}).Error; err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	return d.db.Create(members).Error
}
