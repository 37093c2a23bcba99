package models

import (
	"time"

	"gorm.io/gorm"
)

// Archive is one uploaded conversation export. Identity is the sha256 over
// the raw bytes; re-uploading the same file resolves to the same row. The
// raw bytes live on disk under StoragePath, never in the database.
type Archive struct {
	ID                uint           `json:"id" gorm:"primaryKey"`
	ContentHash       string         `json:"contentHash" gorm:"uniqueIndex;not null"`
	Filename          string         `json:"filename" gorm:"not null"`
	Size              int64          `json:"size"`
	StoragePath       string         `json:"-"`
	ConversationCount int            `json:"conversationCount" gorm:"default:0"`
	MessageCount      int            `json:"messageCount" gorm:"default:0"`
	DateRangeStart    *time.Time     `json:"dateRangeStart"`
	DateRangeEnd      *time.Time     `json:"dateRangeEnd"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	DeletedAt         gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Archive) TableName() string {
	return "archives"
}
