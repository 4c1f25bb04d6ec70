package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lyrasync/backend/internal/jobs"
	"github.com/lyrasync/backend/internal/logger"
	"github.com/lyrasync/backend/internal/util"
)

// Translate accepts an audio+lyrics submission and enqueues a translation
// job. The response is 202 with the job ID; processing happens on the
// worker pool and clients poll /api/results/{job_id}.
func (h *Handlers) Translate(c *gin.Context) {
	ctx := c.Request.Context()

	// The queue must be reachable before any work is accepted
	if err := h.broker.Ping(ctx); err != nil {
		logger.ErrorWithFields("Broker unreachable at submit", err)
		util.RespondServiceUnavailable(c, "translation queue")
		return
	}

	if !h.cfg.HasAccessCode(accessCode(c)) {
		util.RespondUnauthorized(c, "invalid or missing access code")
		return
	}

	audioFile, err := c.FormFile("audio")
	if err != nil {
		util.RespondBadRequest(c, "Missing audio or lyrics file.")
		return
	}
	lyricsFile, err := c.FormFile("lyrics")
	if err != nil {
		util.RespondBadRequest(c, "Missing audio or lyrics file.")
		return
	}

	audioName, err := util.SanitizeFilename(audioFile.Filename)
	if err != nil {
		util.RespondBadRequest(c, "Invalid audio filename.")
		return
	}
	lyricsName, err := util.SanitizeFilename(lyricsFile.Filename)
	if err != nil {
		util.RespondBadRequest(c, "Invalid lyrics filename.")
		return
	}

	jobID := uuid.New().String()
	audioPath := h.volume.AudioPath(jobID, audioName)
	lyricsPath := h.volume.LyricsPath(jobID, lyricsName)

	if err := h.volume.SaveUpload(audioFile, audioPath); err != nil {
		logger.ErrorWithFields("Failed to persist audio upload", err)
		util.RespondInternalError(c, "Failed to save uploaded files.")
		return
	}
	if err := h.volume.SaveUpload(lyricsFile, lyricsPath); err != nil {
		logger.ErrorWithFields("Failed to persist lyrics upload", err)
		h.volume.RemoveBestEffort(audioPath)
		util.RespondInternalError(c, "Failed to save uploaded files.")
		return
	}

	if err := h.validateAudio(ctx, audioPath); err != nil {
		h.volume.RemoveBestEffort(audioPath, lyricsPath)
		util.RespondBadRequest(c, "Invalid audio file.")
		return
	}
	if err := h.validateLyrics(lyricsPath); err != nil {
		h.volume.RemoveBestEffort(audioPath, lyricsPath)
		util.RespondBadRequest(c, "Invalid lyrics file.")
		return
	}

	job := &jobs.Job{
		ID:        jobID,
		Status:    jobs.StatusQueued,
		CreatedAt: time.Now().UTC(),
		Payload: jobs.Payload{
			AudioPath:        audioPath,
			LyricsPath:       lyricsPath,
			StoredAudioName:  jobID + "_" + audioName,
			OriginalFilename: audioName,
		},
	}

	if err := h.broker.EnqueueTranslation(ctx, job, h.cfg.JobTimeout); err != nil {
		logger.ErrorWithFields("Failed to enqueue translation job", err)
		h.volume.RemoveBestEffort(audioPath, lyricsPath)
		util.RespondServiceUnavailable(c, "translation queue")
		return
	}

	logger.Log.Info("📥 Translation job accepted",
		logger.WithJobID(jobID),
		zap.String("audio", audioName),
		zap.String("lyrics", lyricsName),
	)

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// accessCode reads the submit access code from the query string or the
// X-Access-Code header
func accessCode(c *gin.Context) string {
	if code := c.Query("access_code"); code != "" {
		return code
	}
	return c.GetHeader("X-Access-Code")
}
