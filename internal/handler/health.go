package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"botrelay/internal/relay"
)

type LinkStatus interface {
	Status() relay.State
}

type HealthHandler struct {
	Link LinkStatus
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":     true,
		"worker": h.Link.Status().String(),
	})
}
