package model

import "time"

// KVEntry is the row layout shared by the SQL backends of the key-value store.
type KVEntry struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Value     string    `gorm:"type:text;not null"`
	Version   int64     `gorm:"not null;default:1"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (KVEntry) TableName() string {
	return "kv_entries"
}
