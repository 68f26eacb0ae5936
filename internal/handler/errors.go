package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"botrelay/internal/model"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrDuplicateCredential):
		return http.StatusConflict
	case errors.Is(err, model.ErrQuotaExceeded):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNotAuthorized),
		errors.Is(err, model.ErrNotTrial),
		errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, model.ErrLinkDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("component", "http").Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

func sessionView(sess model.Session) gin.H {
	view := gin.H{
		"id":           sess.ID,
		"ownerRef":     sess.OwnerRef,
		"welcomeText":  sess.WelcomeText,
		"mode":         sess.Mode,
		"status":       sess.Status,
		"messageCount": sess.MessageCount,
		"quotaLimit":   sess.QuotaLimit,
		"expiresAt":    sess.ExpiresAt,
		"createdAt":    sess.CreatedAt,
		"updatedAt":    sess.UpdatedAt,
	}
	if sess.Mode == model.ModeTrial {
		view["quotaRemaining"] = sess.QuotaRemaining()
	}
	if sess.LastError != "" {
		view["lastError"] = sess.LastError
	}
	return view
}

func sessionViews(sessions []model.Session) []gin.H {
	resp := make([]gin.H, 0, len(sessions))
	for _, sess := range sessions {
		resp = append(resp, sessionView(sess))
	}
	return resp
}
