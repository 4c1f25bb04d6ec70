package handlers

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lyrasync/backend/internal/logger"
	"github.com/lyrasync/backend/internal/util"
)

// ServeFile streams a persisted audio artifact inline so finished results'
// audio_url stays playable until the client deletes the file
func (h *Handlers) ServeFile(c *gin.Context) {
	name := c.Param("name")

	sanitized, err := util.SanitizeFilename(name)
	if err != nil || sanitized != name {
		util.RespondNotFound(c, "file")
		return
	}

	path := filepath.Join(h.volume.AudioDir(), sanitized)
	if _, err := os.Stat(path); err != nil {
		util.RespondNotFound(c, "file")
		return
	}

	c.File(path)
}

// DeleteFile removes a persisted audio artifact. The operation is
// idempotent: deleting a file that is already gone still answers 200.
func (h *Handlers) DeleteFile(c *gin.Context) {
	name := c.Param("name")

	// The sanitized form must equal the original; anything else is a
	// traversal attempt
	sanitized, err := util.SanitizeFilename(name)
	if err != nil || sanitized != name {
		util.RespondBadRequest(c, "Invalid filename.")
		return
	}

	path := filepath.Join(h.volume.AudioDir(), sanitized)
	if err := h.volume.Remove(path); err != nil {
		logger.Log.Warn("Failed to delete audio artifact",
			zap.String("path", path),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, gin.H{"message": "File cleanup processed."})
}
