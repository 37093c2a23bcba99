package controllers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/convoscope/backend/internal/config"
	"github.com/convoscope/backend/internal/logger"
	"github.com/convoscope/backend/internal/models"
	"github.com/convoscope/backend/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UploadController struct {
	db    *gorm.DB
	cache *services.CacheService
	cfg   *config.Config
}

func NewUploadController(db *gorm.DB, cache *services.CacheService, cfg *config.Config) *UploadController {
	return &UploadController{db: db, cache: cache, cfg: cfg}
}

// UploadArchive handles conversation export upload. The archive is
// identified by the sha256 of its raw bytes; uploading the same file twice
// resolves to the same record.
func (uc *UploadController) UploadArchive(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}

	if filepath.Ext(file.Filename) != ".json" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only JSON exports are supported"})
		return
	}
	if file.Size > uc.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("File exceeds the %d byte upload limit", uc.cfg.MaxUploadBytes),
		})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read upload"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, uc.cfg.MaxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read upload"})
		return
	}
	if int64(len(data)) > uc.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("File exceeds the %d byte upload limit", uc.cfg.MaxUploadBytes),
		})
		return
	}

	// Structural validation up front so a broken export fails the upload,
	// not a job later.
	conversations, _, err := services.NewNormalizer().Normalize(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sum := sha256.Sum256(data)
	contentHash := hex.EncodeToString(sum[:])

	if err := os.MkdirAll(uc.cfg.UploadDir, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create upload directory"})
		return
	}
	storagePath := filepath.Join(uc.cfg.UploadDir, contentHash+".json")
	if err := os.WriteFile(storagePath, data, 0644); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store archive"})
		return
	}

	messageCount := 0
	var rangeStart, rangeEnd *time.Time
	for _, conv := range conversations {
		messageCount += len(conv.Messages)
		for _, msg := range conv.Messages {
			if msg.Timestamp.IsZero() {
				continue
			}
			ts := msg.Timestamp
			if rangeStart == nil || ts.Before(*rangeStart) {
				rangeStart = &ts
			}
			if rangeEnd == nil || ts.After(*rangeEnd) {
				rangeEnd = &ts
			}
		}
	}

	archive := models.Archive{
		ContentHash:       contentHash,
		Filename:          file.Filename,
		Size:              int64(len(data)),
		StoragePath:       storagePath,
		ConversationCount: len(conversations),
		MessageCount:      messageCount,
		DateRangeStart:    rangeStart,
		DateRangeEnd:      rangeEnd,
	}
	// Re-uploading revives a soft-deleted archive.
	err = uc.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "content_hash"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"filename":           archive.Filename,
			"size":               archive.Size,
			"storage_path":       archive.StoragePath,
			"conversation_count": archive.ConversationCount,
			"message_count":      archive.MessageCount,
			"date_range_start":   archive.DateRangeStart,
			"date_range_end":     archive.DateRangeEnd,
			"deleted_at":         nil,
		}),
	}).Create(&archive).Error
	if err != nil {
		os.Remove(storagePath)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save archive record"})
		return
	}

	logger.WithArchive(contentHash).WithField("filename", file.Filename).Info("Archive uploaded")

	c.JSON(http.StatusCreated, gin.H{
		"message":          "Archive uploaded successfully",
		"archive":          archive,
		"hasCachedResults": uc.cache.HasEntries(contentHash),
	})
}

// GetArchives returns uploaded archives, newest first.
func (uc *UploadController) GetArchives(c *gin.Context) {
	var archives []models.Archive
	if err := uc.db.Order("created_at DESC").Find(&archives).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch archives"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"archives": archives})
}

// GetArchive returns one archive by content hash.
func (uc *UploadController) GetArchive(c *gin.Context) {
	var archive models.Archive
	if err := uc.db.Where("content_hash = ?", c.Param("contentHash")).First(&archive).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Archive not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"archive":          archive,
		"hasCachedResults": uc.cache.HasEntries(archive.ContentHash),
	})
}

// DeleteArchive removes an archive, its stored file, and its cached
// results.
func (uc *UploadController) DeleteArchive(c *gin.Context) {
	contentHash := c.Param("contentHash")

	var archive models.Archive
	if err := uc.db.Where("content_hash = ?", contentHash).First(&archive).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Archive not found"})
		return
	}

	if err := uc.db.Delete(&archive).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete archive"})
		return
	}
	if err := uc.cache.Evict(contentHash); err != nil {
		logger.WithError(err, "upload_controller").Warn("Failed to evict cached results")
	}
	if err := os.Remove(archive.StoragePath); err != nil && !os.IsNotExist(err) {
		logger.WithError(err, "upload_controller").Warn("Failed to remove stored archive file")
	}

	c.JSON(http.StatusOK, gin.H{"message": "Archive deleted"})
}
