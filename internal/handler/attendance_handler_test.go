package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-presensi-api/internal/middleware"
	"github.com/noah-isme/sma-presensi-api/internal/models"
)

func testContext(t *testing.T, method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "teacher-1", Role: models.RoleTeacher})
	return c, w
}

func TestScanHandlerRejectsMalformedBody(t *testing.T) {
	handler := NewScanHandler(nil)
	c, w := testContext(t, http.MethodPost, "/scans", "{not json")

	handler.Scan(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTokenHandlerRejectsMissingToken(t *testing.T) {
	handler := NewTokenHandler(nil)
	c, w := testContext(t, http.MethodPost, "/qr-tokens/validate", `{}`)

	handler.Validate(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLeaveHandlerListInvalidDate(t *testing.T) {
	handler := NewLeaveHandler(nil)
	c, w := testContext(t, http.MethodGet, "/leaves?date=bad-date", "")

	handler.List(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerListInvalidDateRange(t *testing.T) {
	handler := NewAttendanceHandler(nil, nil)
	c, w := testContext(t, http.MethodGet, "/attendance?from=2026-99-99", "")

	handler.List(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAttendanceHandlerExportRejectsUnknownFormat(t *testing.T) {
	handler := NewAttendanceHandler(nil, nil)
	c, w := testContext(t, http.MethodGet, "/classes/class-1/recap/export?format=xlsx", "")
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}

	handler.ExportRecap(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
