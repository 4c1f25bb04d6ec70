package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lyrasync/backend/internal/broker"
	"github.com/lyrasync/backend/internal/jobs"
	"github.com/lyrasync/backend/internal/logger"
	"github.com/lyrasync/backend/internal/util"
)

// Results reports a job's status and, once finished, its result.
// Non-terminal jobs answer 202 so clients keep polling.
func (h *Handlers) Results(c *gin.Context) {
	jobID := c.Param("job_id")

	job, err := h.broker.GetJob(c.Request.Context(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, broker.ErrNoSuchJob):
			c.JSON(http.StatusNotFound, gin.H{
				"status":  "error",
				"message": "Job ID not found or invalid.",
			})
		case errors.Is(err, broker.ErrCorruptRecord):
			logger.ErrorWithFields("Job record is corrupt", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":  "error",
				"message": "Job result could not be read.",
			})
		default:
			logger.ErrorWithFields("Broker unreachable at poll", err)
			util.RespondServiceUnavailable(c, "translation queue")
		}
		return
	}

	switch job.Status {
	case jobs.StatusFinished:
		if job.Result == nil {
			// A finished job must carry a result; anything else is
			// record corruption
			logger.Error("Finished job has no stored result",
				logger.WithJobID(jobID),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":  "error",
				"message": "Job result could not be read.",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": string(jobs.StatusFinished),
			"result": job.Result,
		})

	case jobs.StatusFailed:
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  string(jobs.StatusFailed),
			"message": job.ExcInfo,
		})

	default:
		resp := gin.H{"status": string(job.Status)}
		if job.ProgressStage != "" {
			resp["progress_stage"] = job.ProgressStage
		}
		c.JSON(http.StatusAccepted, resp)
	}
}
