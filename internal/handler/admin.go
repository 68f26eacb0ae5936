package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"botrelay/internal/controlplane"
	"botrelay/internal/model"
)

type AdminHandler struct {
	Service *controlplane.Service
	Now     func() time.Time
}

// authorizeBody takes either an absolute expiry or a duration in days.
// Neither means the authorization never lapses.
type authorizeBody struct {
	ExpiresAt    *time.Time `json:"expiresAt"`
	DurationDays int        `json:"durationDays"`
}

type toggleBody struct {
	Status model.Status `json:"status" binding:"required"`
}

func (h *AdminHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *AdminHandler) List(c *gin.Context) {
	sessions, err := h.Service.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bots": sessionViews(sessions)})
}

func (h *AdminHandler) Authorize(c *gin.Context) {
	var body authorizeBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
	}
	if body.DurationDays < 0 || (body.ExpiresAt != nil && body.DurationDays != 0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	expiresAt := body.ExpiresAt
	if body.DurationDays > 0 {
		t := h.now().Add(time.Duration(body.DurationDays) * 24 * time.Hour)
		expiresAt = &t
	}
	if expiresAt != nil && !expiresAt.After(h.now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expiresAt must be in the future"})
		return
	}

	sess, err := h.Service.Authorize(c.Request.Context(), c.Param("id"), expiresAt)
	if err != nil && sess.ID == "" {
		writeError(c, err)
		return
	}
	resp := gin.H{"bot": sessionView(sess)}
	if err != nil {
		resp["error"] = err.Error()
		c.JSON(statusFor(err), resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AdminHandler) Toggle(c *gin.Context) {
	var body toggleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	sess, err := h.Service.Toggle(c.Request.Context(), c.Param("id"), body.Status)
	if err != nil && sess.ID == "" {
		writeError(c, err)
		return
	}
	resp := gin.H{"bot": sessionView(sess)}
	if err != nil {
		resp["error"] = err.Error()
		c.JSON(statusFor(err), resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AdminHandler) Delete(c *gin.Context) {
	if err := h.Service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
