package database

import "time"

// User is a persisted registered-user account (§3 User). `user_id ==
// 0` is reserved for the SuperUser shortcut and never stored here.
type User struct {
	UserID        uint32 `gorm:"primaryKey"`
	Name          string `gorm:"uniqueIndex"`
	TextureHash   []byte
	CommentHash   []byte
	LastChannelID *uint32
	LastSeen      *time.Time
}

func (User) TableName() string {
	return "users"
}

// UserCertHash is one certificate fingerprint bound to a registered
// user (§3 `cert_hashes:{string}`). A user may register more than one
// certificate across devices.
type UserCertHash struct {
	UserID uint32 `gorm:"primaryKey"`
	Hash   string `gorm:"primaryKey"`
}

func (UserCertHash) TableName() string {
	return "user_cert_hashes"
}

// UserByID loads a registered user by id.
func (d *DbTx) UserByID(id uint32) (*User, error) {
	var u User
	if err := d.db.First(&u, "user_id = ?", id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UserByCertHash resolves a registered user from one of their bound
// certificate fingerprints, used during §4.8 SuperUser/registered-user
// lookup at authenticate time.
func (d *DbTx) UserByCertHash(hash string) (*User, error) {
	var link UserCertHash
	if err := d.db.First(&link, "hash = ?", hash).Error; err != nil {
		return nil, err
	}
	return d.UserByID(link.UserID)
}

// UserRegister persists a new registered user bound to certHash, used
// by the Register/SelfRegister UserState actions (SUPPLEMENTED
// FEATURES).
func (d *DbTx) UserRegister(u *User, certHash string) error {
	if err := d.db.Create(u).Error; err != nil {
		return err
	}
	return d.db.Create(&UserCertHash{UserID: u.UserID, Hash: certHash}).Error
}

// UserUnregister removes a registered user and all of their bound
// certificate hashes.
func (d *DbTx) UserUnregister(id uint32) error {
	if err := d.db.Where("user_id = ?", id).Delete(&UserCertHash{}).Error; err != nil {
		return err
	}
	return d.db.Delete(&User{}, "user_id = ?", id).Error
}

// UserTouch updates last_channel_id/last_seen on disconnect, used to
// restore a registered user's last channel on reconnect.
func (d *DbTx) UserTouch(id uint32, channelID uint32, seen time.Time) error {
	return d.db.Model(&User{}).Where("user_id = ?", id).
		Updates(map[string]interface{}{"last_channel_id": channelID, "last_seen": seen}).Error
}
