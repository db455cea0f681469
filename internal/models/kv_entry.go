package models

import "time"

// KVEntry is a durable device-local key/value pair. The location cache
// keeps its label and coordinates here.
type KVEntry struct {
	Key       string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// TableName pins the table name so it is stable across drivers.
func (KVEntry) TableName() string { return "kv_entries" }
