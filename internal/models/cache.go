package models

import (
	"time"
)

// CacheEntry memoizes one pipeline run. Keyed by (content hash, options
// hash); Result holds the exact serialized AnalysisResult bytes so repeated
// fetches are byte-identical. Entries carry their own options so the cache
// can be inspected or cleared independent of job state.
type CacheEntry struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ContentHash    string    `json:"contentHash" gorm:"uniqueIndex:idx_cache_key;not null"`
	OptionsHash    string    `json:"optionsHash" gorm:"uniqueIndex:idx_cache_key;not null"`
	Options        JSONB     `json:"options" gorm:"type:jsonb"`
	Result         []byte    `json:"-"`
	SizeBytes      int64     `json:"sizeBytes"`
	LastAccessedAt time.Time `json:"lastAccessedAt" gorm:"index"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (CacheEntry) TableName() string {
	return "cache_entries"
}
