package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-presensi-api/internal/middleware"
	"github.com/noah-isme/sma-presensi-api/internal/service"
	appErrors "github.com/noah-isme/sma-presensi-api/pkg/errors"
	"github.com/noah-isme/sma-presensi-api/pkg/response"
)

// ScanHandler exposes the attendance recording endpoints.
type ScanHandler struct {
	attendance *service.AttendanceService
}

// NewScanHandler constructs ScanHandler.
func NewScanHandler(attendance *service.AttendanceService) *ScanHandler {
	return &ScanHandler{attendance: attendance}
}

// Scan godoc
// @Summary Record attendance from a QR token
// @Tags Scans
// @Accept json
// @Produce json
// @Param payload body service.ScanRequest true "Scan payload"
// @Success 200 {object} response.Envelope
// @Router /scans [post]
func (h *ScanHandler) Scan(c *gin.Context) {
	var req service.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.attendance.Scan(c.Request.Context(), req, middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ScanByIdentifier godoc
// @Summary Record attendance on behalf of a student by NIS
// @Tags Scans
// @Accept json
// @Produce json
// @Param payload body service.ScanByIdentifierRequest true "Assisted scan payload"
// @Success 200 {object} response.Envelope
// @Router /scans/assisted [post]
func (h *ScanHandler) ScanByIdentifier(c *gin.Context) {
	var req service.ScanByIdentifierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.attendance.ScanByIdentifier(c.Request.Context(), req, middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
