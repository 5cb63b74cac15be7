package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-presensi-api/internal/middleware"
	"github.com/noah-isme/sma-presensi-api/internal/service"
	appErrors "github.com/noah-isme/sma-presensi-api/pkg/errors"
	"github.com/noah-isme/sma-presensi-api/pkg/response"
)

// TokenHandler exposes QR token lifecycle endpoints.
type TokenHandler struct {
	tokens *service.TokenService
}

// NewTokenHandler constructs TokenHandler.
func NewTokenHandler(tokens *service.TokenService) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

type tokenValueRequest struct {
	Token string `json:"token" binding:"required"`
}

// Generate godoc
// @Summary Issue a QR token for a session and category
// @Tags Tokens
// @Accept json
// @Produce json
// @Param payload body service.GenerateTokenRequest true "Token request"
// @Success 201 {object} response.Envelope
// @Router /qr-tokens [post]
func (h *TokenHandler) Generate(c *gin.Context) {
	var req service.GenerateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	token, err := h.tokens.Generate(c.Request.Context(), req, middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, token)
}

// Validate godoc
// @Summary Resolve a scanned token value
// @Tags Tokens
// @Accept json
// @Produce json
// @Param payload body tokenValueRequest true "Token value"
// @Success 200 {object} response.Envelope
// @Router /qr-tokens/validate [post]
func (h *TokenHandler) Validate(c *gin.Context) {
	var req tokenValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	token, err := h.tokens.Validate(c.Request.Context(), req.Token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, token, nil)
}

// Revoke godoc
// @Summary Revoke a token before its natural expiry
// @Tags Tokens
// @Accept json
// @Produce json
// @Param payload body tokenValueRequest true "Token value"
// @Success 204
// @Router /qr-tokens/revoke [post]
func (h *TokenHandler) Revoke(c *gin.Context) {
	var req tokenValueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.tokens.Revoke(c.Request.Context(), req.Token, middleware.CurrentClaims(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
