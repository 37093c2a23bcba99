package controllers

import (
	"net/http"

	"github.com/convoscope/backend/internal/services"
	"github.com/gin-gonic/gin"
)

type CacheController struct {
	cache *services.CacheService
}

func NewCacheController(cache *services.CacheService) *CacheController {
	return &CacheController{cache: cache}
}

// GetCacheStats returns the entry count and total stored bytes.
func (cc *CacheController) GetCacheStats(c *gin.Context) {
	count, bytes := cc.cache.Stats()
	c.JSON(http.StatusOK, gin.H{
		"entries":    count,
		"totalBytes": bytes,
	})
}

// ClearCache removes cached results: every entry for ?content_hash=…, or
// the whole cache without it. Jobs and archives are untouched; the next
// analysis recomputes from scratch.
func (cc *CacheController) ClearCache(c *gin.Context) {
	if contentHash := c.Query("content_hash"); contentHash != "" {
		if err := cc.cache.Evict(contentHash); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Cache entries evicted", "contentHash": contentHash})
		return
	}

	if err := cc.cache.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cache cleared"})
}
