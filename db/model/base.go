package model

import "time"

// Base carries the bookkeeping timestamps. Rows are hard-deleted: a dissolved
// group must free its name for reuse.
type Base struct {
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
