package database

// Channel is a persisted node in the channel tree (§3). Temporary
// channels are never written here; they exist only in the Hub's
// in-memory overlay and vanish when their last user leaves.
type Channel struct {
	ID              uint32 `gorm:"primaryKey"`
	ParentID        *uint32
	Name            string `gorm:"uniqueIndex:idx_channel_parent_name"`
	Description     string
	DescriptionHash []byte
	Position        int32
	MaxUsers        uint32
	InheritACL      bool `gorm:"default:true"`
}

func (Channel) TableName() string {
	return "channels"
}

// ChannelLink is one direction of a symmetric channel link (§3, #4
// Testable Property). Both directions are always written together so
// the relation stays symmetric by construction.
type ChannelLink struct {
	ChannelID uint32 `gorm:"primaryKey"`
	LinkedID  uint32 `gorm:"primaryKey"`
}

func (ChannelLink) TableName() string {
	return "channel_links"
}

// ChannelRead loads every persisted channel.
func (d *DbTx) ChannelRead() ([]Channel, error) {
	var channels []Channel
	if err := d.db.Order("id ASC").Find(&channels).Error; err != nil {
		return nil, err
	}
	return channels, nil
}

// ChannelLinksRead loads the full symmetric link relation.
func (d *DbTx) ChannelLinksRead() ([]ChannelLink, error) {
	var links []ChannelLink
	if err := d.db.Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

// ChannelSave upserts a single channel record.
func (d *DbTx) ChannelSave(c *Channel) error {
	return d.db.Save(c).Error
}

// ChannelDelete removes a channel and cascades to its ACL entries and
// groups (§6 "cascading delete of ACL/groups when channel deleted").
func (d *DbTx) ChannelDelete(id uint32) error {
	if err := d.db.Where("channel_id = ?", id).Delete(&ACLEntry{}).Error; err != nil {
		return err
	}
	if err := d.db.Where("channel_id = ?", id).Delete(&GroupMember{}).Error; err != nil {
		return err
	}
	if err := d.db.Where("channel_id = ?", id).Delete(&Group{}).Error; err != nil {
		return err
	}
	if err := d.db.Where("channel_id = ? OR linked_id = ?", id, id).Delete(&ChannelLink{}).Error; err != nil {
		return err
	}
	return d.db.Delete(&Channel{}, "id = ?", id).Error
}

// ChannelLinkAdd links two channels symmetrically by inserting both
// directions; linking an already-linked pair fails on the primary key.
func (d *DbTx) ChannelLinkAdd(a, b uint32) error {
	if err := d.db.Create(&ChannelLink{ChannelID: a, LinkedID: b}).Error; err != nil {
		return err
	}
	return d.db.Create(&ChannelLink{ChannelID: b, LinkedID: a}).Error
}

// ChannelLinkRemove removes both directions of a link.
func (d *DbTx) ChannelLinkRemove(a, b uint32) error {
	if err := d.db.Where("channel_id = ? AND linked_id = ?", a, b).Delete(&ChannelLink{}).Error; err != nil {
		return err
	}
	return d.db.Where("channel_id = ? AND linked_id = ?", b, a).Delete(&ChannelLink{}).Error
}
