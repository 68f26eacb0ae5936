package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"botrelay/internal/auth"
	"botrelay/internal/controlplane"
	"botrelay/internal/middleware"
	"botrelay/internal/model"
)

type BotHandler struct {
	Service *controlplane.Service
}

type createBotBody struct {
	CredentialRef string `json:"credentialRef" binding:"required"`
	WelcomeText   string `json:"welcomeText"`
}

type trialMessageBody struct {
	BotID   string `json:"botId" binding:"required"`
	Message string `json:"message" binding:"required"`
}

func (h *BotHandler) StartTrial(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	var body createBotBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	sess, err := h.Service.StartTrial(c.Request.Context(), userID, body.CredentialRef, body.WelcomeText)
	if err != nil {
		// the session exists; the worker will not see it until the link is back
		if sess.ID != "" && errors.Is(err, model.ErrLinkDown) {
			c.JSON(http.StatusAccepted, gin.H{"bot": sessionView(sess), "error": err.Error()})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"bot": sessionView(sess)})
}

func (h *BotHandler) SendTrialMessage(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	var body trialMessageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	sess, err := h.Service.Get(c.Request.Context(), body.BotID)
	if err == nil && sess.OwnerRef != userID && middleware.RoleFromContext(c) != auth.RoleAdmin {
		err = model.ErrNotFound
	}
	if err != nil {
		writeError(c, err)
		return
	}

	res, err := h.Service.SendTrialMessage(c.Request.Context(), body.BotID, body.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messageCount":   res.NewCount,
		"quotaRemaining": sess.QuotaLimit - res.NewCount,
	})
}

func (h *BotHandler) List(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	sessions, err := h.Service.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bots": sessionViews(sessions)})
}

func (h *BotHandler) Add(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	var body createBotBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	sess, err := h.Service.AddBot(c.Request.Context(), userID, body.CredentialRef, body.WelcomeText)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"bot": sessionView(sess)})
}
