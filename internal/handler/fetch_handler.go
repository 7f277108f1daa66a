package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DevNectorFoods/Email-Automation/internal/ingest"
)

type FetchHandler struct {
	scheduler *ingest.Scheduler
}

func NewFetchHandler(scheduler *ingest.Scheduler) *FetchHandler {
	return &FetchHandler{
		scheduler: scheduler,
	}
}

// TriggerFetch handles POST /fetch. The pass runs synchronously and the
// response carries its full result, the same shape GET /status replays.
func (h *FetchHandler) TriggerFetch(c *gin.Context) {
	var req struct {
		Account string `json:"account"`
		Limit   int    `json:"limit"`
	}

	// body 可以整个省略，省略就是抓全部账号
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	result, err := h.scheduler.FetchNow(c.Request.Context(), req.Account, req.Limit)
	if err != nil {
		if errors.Is(err, ingest.ErrNoAccounts) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no active accounts to fetch"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "completed",
		"result": result,
	})
}

// GetStatus handles GET /status
func (h *FetchHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Status())
}
