package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-presensi-api/internal/middleware"
	"github.com/noah-isme/sma-presensi-api/internal/service"
	"github.com/noah-isme/sma-presensi-api/pkg/response"
)

// SessionHandler exposes session closeout endpoints.
type SessionHandler struct {
	closeouts *service.CloseoutService
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(closeouts *service.CloseoutService) *SessionHandler {
	return &SessionHandler{closeouts: closeouts}
}

// Close godoc
// @Summary Finalize a session for today
// @Tags Sessions
// @Produce json
// @Param id path string true "Schedule session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/close [post]
func (h *SessionHandler) Close(c *gin.Context) {
	closeout, err := h.closeouts.Close(c.Request.Context(), c.Param("id"), middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, closeout, nil)
}

// Status godoc
// @Summary Get today's closeout marker for a session
// @Tags Sessions
// @Produce json
// @Param id path string true "Schedule session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/closeout [get]
func (h *SessionHandler) Status(c *gin.Context) {
	closeout, err := h.closeouts.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"closed": closeout != nil, "closeout": closeout}, nil)
}
