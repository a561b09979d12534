package database

import "time"

// Ban is a persisted IP/certificate ban (§3 Ban). The cluster has a
// single authoritative Hub, so unlike the teacher's per-virtual-server
// `Ban` this table is not scoped by a ServerID.
type Ban struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Address   []byte // CIDR base, net.IP bytes (4 or 16)
	Mask      int    // prefix length, 0..128
	Name      string
	Hash      string // certificate hash, empty if IP-only
	Reason    string
	Start     time.Time
	Duration  int // seconds, 0 = permanent
	CreatedBy uint32
}

func (Ban) TableName() string {
	return "bans"
}

// BanRead returns a page of the ban list ordered by Start descending.
func (d *DbTx) BanRead(limit, offset int) ([]Ban, int64, error) {
	var bans []Ban
	var count int64

	if err := d.db.Model(&Ban{}).Count(&count).Error; err != nil {
		return nil, 0, err
	}
	if err := d.db.Order("start DESC").Limit(limit).Offset(offset).Find(&bans).Error; err != nil {
		return nil, 0, err
	}
	return bans, count, nil
}

// BanWrite replaces the entire ban list, matching the teacher's
// delete-then-create write pattern for BanList updates (§4.14
// `edge.fullSync`, wire `BanList` message).
func (d *DbTx) BanWrite(bans []Ban) error {
	if err := d.db.Where("1 = 1").Delete(&Ban{}).Error; err != nil {
		return err
	}
	if len(bans) == 0 {
		return nil
	}
	return d.db.Create(bans).Error
}
