package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/DevNectorFoods/Email-Automation/internal/repository"
)

type EmailQueryHandler struct {
	emails *repository.EmailRepository
}

func NewEmailQueryHandler(emails *repository.EmailRepository) *EmailQueryHandler {
	return &EmailQueryHandler{
		emails: emails,
	}
}

// GetEmails handles GET /emails
func (h *EmailQueryHandler) GetEmails(c *gin.Context) {
	filter := repository.ListFilter{
		AccountEmail: c.Query("account"),
		Category:     c.Query("category"),
		MainCategory: c.Query("main_category"),
		SubCategory:  c.Query("sub_category"),
		Search:       c.Query("search"),
		Page:         intQuery(c, "page", 1),
		PerPage:      intQuery(c, "per_page", 20),
	}
	if v := c.Query("is_read"); v != "" {
		isRead, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid is_read"})
			return
		}
		filter.IsRead = &isRead
	}
	filter = filter.Normalized()

	emails, total, err := h.emails.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch emails"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"emails": emails,
		"pagination": gin.H{
			"page":     filter.Page,
			"per_page": filter.PerPage,
			"total":    total,
			"pages":    (total + filter.PerPage - 1) / filter.PerPage,
		},
	})
}

// GetStats handles GET /emails/stats
func (h *EmailQueryHandler) GetStats(c *gin.Context) {
	stats, err := h.emails.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get email statistics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func intQuery(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
