package database

// ACLEntry is one persisted ACL row on a channel (§3 ACLEntry). UserID
// is nil for group entries; Group is nil for user entries.
type ACLEntry struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	ChannelID uint32 `gorm:"index"`
	UserID    *int32
	Group     *string
	ApplyHere bool
	ApplySubs bool
	Allow     uint64
	Deny      uint64
}

func (ACLEntry) TableName() string {
	return "acl_entries"
}

// ACLRead loads every ACL entry on a channel, in insertion order (the
// order entries are evaluated in, per §4.5).
func (d *DbTx) ACLRead(channelID uint32) ([]ACLEntry, error) {
	var entries []ACLEntry
	if err := d.db.Order("id ASC").Find(&entries, "channel_id = ?", channelID).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ACLWrite replaces a channel's ACL entries wholesale, matching how the
// Edge forwards a full ACL message for a write (§4.9).
func (d *DbTx) ACLWrite(channelID uint32, entries []ACLEntry) error {
	if err := d.db.Where("channel_id = ?", channelID).Delete(&ACLEntry{}).Error; err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	for i := range entries {
		entries[i].ChannelID = channelID
	}
	return d.db.Create(entries).Error
}
