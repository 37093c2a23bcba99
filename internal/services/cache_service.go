package services

import (
	"sync"
	"time"

	"github.com/convoscope/backend/internal/logger"
	"github.com/convoscope/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CacheService is the content-addressed result store. Entries are keyed by
// (content hash, options hash) and carry their own options so the cache can
// be inspected or cleared independent of job state. Total stored bytes are
// tracked against a ceiling; least-recently-used entries are evicted first.
//
// IO problems are logged and surface as misses, never as job failures.
type CacheService struct {
	db       *gorm.DB
	maxBytes int64

	mu       sync.Mutex
	keyLocks map[string]*keyLock
}

// keyLock is refcounted so the lock table only holds keys somebody is
// actually waiting on; an unbounded key space must not grow the map forever.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewCacheService(db *gorm.DB, maxBytes int64) *CacheService {
	return &CacheService{
		db:       db,
		maxBytes: maxBytes,
		keyLocks: make(map[string]*keyLock),
	}
}

// lockKey serializes access to one cache key without blocking the others.
func (cs *CacheService) lockKey(contentHash, optionsHash string) func() {
	key := contentHash + "|" + optionsHash
	cs.mu.Lock()
	lock, ok := cs.keyLocks[key]
	if !ok {
		lock = &keyLock{}
		cs.keyLocks[key] = lock
	}
	lock.refs++
	cs.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		cs.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(cs.keyLocks, key)
		}
		cs.mu.Unlock()
	}
}

// Get returns the stored result bytes for the key, updating its recency.
// Any read problem counts as a miss.
func (cs *CacheService) Get(contentHash, optionsHash string) ([]byte, bool) {
	unlock := cs.lockKey(contentHash, optionsHash)
	defer unlock()

	var entry models.CacheEntry
	err := cs.db.Where("content_hash = ? AND options_hash = ?", contentHash, optionsHash).First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false
	}
	if err != nil {
		ioErr := &CacheIOError{Op: "read", Err: err}
		logger.Error("Cache read failed, treating as miss", map[string]interface{}{
			"content_hash": contentHash,
			"error":        ioErr.Error(),
		})
		return nil, false
	}

	if err := cs.db.Model(&models.CacheEntry{}).Where("id = ?", entry.ID).
		Update("last_accessed_at", time.Now().UTC()).Error; err != nil {
		logger.Warn("Cache recency update failed", map[string]interface{}{"error": err.Error()})
	}

	return entry.Result, true
}

// Put stores the serialized result for the key and evicts old entries if
// the byte ceiling is exceeded. Returns a CacheIOError on write problems;
// callers may ignore it and proceed uncached.
func (cs *CacheService) Put(contentHash, optionsHash string, options models.JSONB, result []byte) error {
	unlock := cs.lockKey(contentHash, optionsHash)
	defer unlock()

	entry := models.CacheEntry{
		ContentHash:    contentHash,
		OptionsHash:    optionsHash,
		Options:        options,
		Result:         result,
		SizeBytes:      int64(len(result)),
		LastAccessedAt: time.Now().UTC(),
	}

	err := cs.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "content_hash"}, {Name: "options_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{"options", "result", "size_bytes", "last_accessed_at"}),
	}).Create(&entry).Error
	if err != nil {
		return &CacheIOError{Op: "write", Err: err}
	}

	cs.evictOverLimit()
	return nil
}

// evictOverLimit drops least-recently-used entries until the total stored
// bytes fit the ceiling again.
func (cs *CacheService) evictOverLimit() {
	for {
		var total int64
		if err := cs.db.Model(&models.CacheEntry{}).
			Select("COALESCE(SUM(size_bytes), 0)").Scan(&total).Error; err != nil {
			logger.Warn("Cache size query failed", map[string]interface{}{"error": err.Error()})
			return
		}
		if total <= cs.maxBytes {
			return
		}

		var oldest models.CacheEntry
		if err := cs.db.Order("last_accessed_at asc").First(&oldest).Error; err != nil {
			return
		}
		if err := cs.db.Delete(&oldest).Error; err != nil {
			logger.Warn("Cache eviction failed", map[string]interface{}{"error": err.Error()})
			return
		}
		logger.Info("Evicted cache entry", map[string]interface{}{
			"content_hash": oldest.ContentHash,
			"size_bytes":   oldest.SizeBytes,
		})
	}
}

// Evict removes every entry for one content hash.
func (cs *CacheService) Evict(contentHash string) error {
	if err := cs.db.Where("content_hash = ?", contentHash).Delete(&models.CacheEntry{}).Error; err != nil {
		return &CacheIOError{Op: "evict", Err: err}
	}
	return nil
}

// Clear removes every entry.
func (cs *CacheService) Clear() error {
	if err := cs.db.Where("1 = 1").Delete(&models.CacheEntry{}).Error; err != nil {
		return &CacheIOError{Op: "clear", Err: err}
	}
	return nil
}

// HasEntries reports whether any cached result exists for the content hash.
func (cs *CacheService) HasEntries(contentHash string) bool {
	var count int64
	if err := cs.db.Model(&models.CacheEntry{}).
		Where("content_hash = ?", contentHash).Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}

// Stats returns the entry count and total stored bytes.
func (cs *CacheService) Stats() (count int64, bytes int64) {
	cs.db.Model(&models.CacheEntry{}).Count(&count)
	cs.db.Model(&models.CacheEntry{}).Select("COALESCE(SUM(size_bytes), 0)").Scan(&bytes)
	return count, bytes
}
