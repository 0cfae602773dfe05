// Package models contains the database model definitions.
// These models back the ambient settings store only; Program/Environment
// definitions are owned by the external program store (spec.md §1) and never
// persisted here.
package models

import (
	"time"
)

// Setting represents a persisted key/value runtime setting, used to resume
// the last-known Art-Net broadcast target and MQTT broker URL across restarts.
// Table: settings
type Setting struct {
	ID        string    `gorm:"column:id;primaryKey"`
	Key       string    `gorm:"column:key;uniqueIndex"`
	Value     string    `gorm:"column:value"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Setting) TableName() string { return "settings" }
