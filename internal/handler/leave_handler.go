package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-presensi-api/internal/middleware"
	"github.com/noah-isme/sma-presensi-api/internal/service"
	appErrors "github.com/noah-isme/sma-presensi-api/pkg/errors"
	"github.com/noah-isme/sma-presensi-api/pkg/response"
)

// LeaveHandler exposes leave permission endpoints.
type LeaveHandler struct {
	leaves *service.LeaveService
}

// NewLeaveHandler constructs LeaveHandler.
func NewLeaveHandler(leaves *service.LeaveService) *LeaveHandler {
	return &LeaveHandler{leaves: leaves}
}

// CreateFullDay godoc
// @Summary Grant a full-day leave
// @Tags Leaves
// @Accept json
// @Produce json
// @Param payload body service.FullDayLeaveRequest true "Leave payload"
// @Success 201 {object} response.Envelope
// @Router /leaves/full-day [post]
func (h *LeaveHandler) CreateFullDay(c *gin.Context) {
	var req service.FullDayLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	permission, err := h.leaves.CreateFullDay(c.Request.Context(), req, middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, permission)
}

// CreateEarly godoc
// @Summary Grant a partial-day leave
// @Tags Leaves
// @Accept json
// @Produce json
// @Param payload body service.EarlyLeaveRequest true "Leave payload"
// @Success 201 {object} response.Envelope
// @Router /leaves/early [post]
func (h *LeaveHandler) CreateEarly(c *gin.Context) {
	var req service.EarlyLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	permission, err := h.leaves.CreateEarly(c.Request.Context(), req, middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, permission)
}

// MarkReturned godoc
// @Summary Mark a student as returned from leave
// @Tags Leaves
// @Produce json
// @Param id path string true "Leave ID"
// @Success 200 {object} response.Envelope
// @Router /leaves/{id}/return [post]
func (h *LeaveHandler) MarkReturned(c *gin.Context) {
	permission, err := h.leaves.MarkReturned(c.Request.Context(), c.Param("id"), middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, permission, nil)
}

// MarkExpired godoc
// @Summary Expire a leave whose student never returned
// @Tags Leaves
// @Produce json
// @Param id path string true "Leave ID"
// @Success 200 {object} response.Envelope
// @Router /leaves/{id}/expire [post]
func (h *LeaveHandler) MarkExpired(c *gin.Context) {
	permission, err := h.leaves.MarkExpired(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, permission, nil)
}

// Get godoc
// @Summary Get leave detail
// @Tags Leaves
// @Produce json
// @Param id path string true "Leave ID"
// @Success 200 {object} response.Envelope
// @Router /leaves/{id} [get]
func (h *LeaveHandler) Get(c *gin.Context) {
	permission, err := h.leaves.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, permission, nil)
}

// List godoc
// @Summary List leave permissions
// @Tags Leaves
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param date query string false "Filter by date (YYYY-MM-DD)"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /leaves [get]
func (h *LeaveHandler) List(c *gin.Context) {
	req := service.LeaveListRequest{StudentID: c.Query("studentId")}
	if raw := c.Query("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD"))
			return
		}
		req.Date = &date
	}
	if status := c.Query("status"); status != "" {
		req.Status = &status
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		req.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		req.PageSize = size
	}

	rows, pagination, err := h.leaves.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}
