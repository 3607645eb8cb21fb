package models

import "time"

// UserMeta is a single key-value profile field for a user.
type UserMeta struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:ux_user_meta_user_key,priority:1" json:"user_id"`
	MetaKey   string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_user_meta_user_key,priority:2" json:"meta_key"`
	MetaValue *string   `gorm:"type:text" json:"meta_value,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserMeta) TableName() string {
	return "user_meta"
}
