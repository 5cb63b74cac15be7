package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-presensi-api/internal/middleware"
	"github.com/noah-isme/sma-presensi-api/internal/service"
	appErrors "github.com/noah-isme/sma-presensi-api/pkg/errors"
	"github.com/noah-isme/sma-presensi-api/pkg/response"
)

// AttendanceHandler exposes the attendance read side, corrections and recaps.
type AttendanceHandler struct {
	attendance *service.AttendanceService
	recaps     *service.RecapService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance *service.AttendanceService, recaps *service.RecapService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, recaps: recaps}
}

// List godoc
// @Summary List attendance records
// @Tags Attendance
// @Produce json
// @Param sessionId query string false "Filter by session"
// @Param attendeeId query string false "Filter by attendee"
// @Param attendeeType query string false "STUDENT or TEACHER"
// @Param status query string false "Filter by status"
// @Param from query string false "Date from (YYYY-MM-DD)"
// @Param to query string false "Date to (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	req := service.ListRequest{
		ScheduleSessionID: c.Query("sessionId"),
		AttendeeID:        c.Query("attendeeId"),
		SortBy:            c.Query("sort"),
		SortOrder:         c.Query("order"),
	}
	if t := c.Query("attendeeType"); t != "" {
		req.AttendeeType = &t
	}
	if status := c.Query("status"); status != "" {
		req.Status = &status
	}
	var err error
	if req.DateFrom, err = parseDateQuery(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if req.DateTo, err = parseDateQuery(c, "to"); err != nil {
		response.Error(c, err)
		return
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		req.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		req.PageSize = size
	}

	rows, pagination, err := h.attendance.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// SessionAttendance godoc
// @Summary Attendance report for one session on a date
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/attendance [get]
func (h *AttendanceHandler) SessionAttendance(c *gin.Context) {
	date, err := recapDate(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	req := service.ListRequest{
		ScheduleSessionID: c.Param("id"),
		DateFrom:          &date,
		DateTo:            &date,
		Page:              1,
		PageSize:          100,
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "100")); err == nil {
		req.PageSize = size
	}
	rows, pagination, err := h.attendance.List(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, pagination)
}

// Correct godoc
// @Summary Correct an attendance record's status
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body service.CorrectRequest true "Correction payload"
// @Success 200 {object} response.Envelope
// @Router /attendance/{id} [patch]
func (h *AttendanceHandler) Correct(c *gin.Context) {
	var req service.CorrectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.attendance.Correct(c.Request.Context(), c.Param("id"), req, middleware.CurrentClaims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Recap godoc
// @Summary Per-student attendance recap for a class and date
// @Tags Attendance
// @Produce json
// @Param id path string true "Class ID"
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/recap [get]
func (h *AttendanceHandler) Recap(c *gin.Context) {
	date, err := recapDate(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	rows, err := h.recaps.Recap(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// ExportRecap godoc
// @Summary Export the class recap as CSV or PDF
// @Tags Attendance
// @Produce octet-stream
// @Param id path string true "Class ID"
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /classes/{id}/recap/export [get]
func (h *AttendanceHandler) ExportRecap(c *gin.Context) {
	date, err := recapDate(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	classID := c.Param("id")
	filename := fmt.Sprintf("recap-%s-%s", classID, date.Format("2006-01-02"))

	switch c.DefaultQuery("format", "csv") {
	case "csv":
		data, err := h.recaps.ExportCSV(c.Request.Context(), classID, date)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", filename))
		c.Data(http.StatusOK, "text/csv", data)
	case "pdf":
		data, err := h.recaps.ExportPDF(c.Request.Context(), classID, date)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", filename))
		c.Data(http.StatusOK, "application/pdf", data)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
	}
}

func recapDate(c *gin.Context) (time.Time, error) {
	raw := c.Query("date")
	if raw == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), nil
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}
	return date, nil
}

func parseDateQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, key+" must be YYYY-MM-DD")
	}
	return &date, nil
}
