package model

type User struct {
	Base
	ID             string `gorm:"primaryKey" json:"id"`
	Email          string `gorm:"index" json:"email"`
	Nickname       string `json:"nickname"`
	CurrentChannel string `json:"-"`
	PushToken      string `json:"-"`
}
