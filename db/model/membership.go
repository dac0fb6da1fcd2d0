package model

import (
	"database/sql"
	"time"
)

type Membership struct {
	CreatedAt time.Time    `json:"created_at"`
	GroupID   string       `gorm:"primaryKey;type:uuid" json:"group_id"`
	UserID    string       `gorm:"primaryKey;index" json:"user_id"`
	Muted     bool         `json:"muted"`
	ReadAt    sql.NullTime `json:"read_at"`
}
