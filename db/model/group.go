package model

type Group struct {
	Base
	ID            string       `gorm:"primaryKey;type:uuid" json:"id"`
	Name          string       `json:"name"`
	NameKey       string       `gorm:"uniqueIndex;not null" json:"-"`
	HasPassword   bool         `json:"has_password"`
	JoinPassword  string       `json:"-"`
	OwnerID       string       `gorm:"index;not null" json:"owner_id"`
	Avatar        string       `json:"avatar"`
	EncryptionKey string       `json:"-"`
	Memberships   []Membership `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
