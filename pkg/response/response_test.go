package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/visitor-attendance-api/pkg/errors"
	"github.com/noah-isme/visitor-attendance-api/pkg/middleware/requestid"
)

func run(t *testing.T, h gin.HandlerFunc) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(requestid.Middleware())
	router.GET("/", h)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestid.Header, "req-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestJSONMergesMeta(t *testing.T) {
	rec, body := run(t, func(c *gin.Context) {
		JSON(c, http.StatusOK, gin.H{"visits": 3}, nil,
			map[string]interface{}{"cache_hit": false, "view": "summary"},
			nil,
			map[string]interface{}{"cache_hit": true})
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, map[string]interface{}{"cache_hit": true, "view": "summary"}, body["meta"])
	assert.NotContains(t, body, "pagination")
}

func TestAccepted(t *testing.T) {
	rec, body := run(t, func(c *gin.Context) {
		Accepted(c, gin.H{"id": "job-1"}, "/api/v1/reports/status/job-1")
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "/api/v1/reports/status/job-1", rec.Header().Get("Location"))
	assert.Equal(t, "job-1", body["data"].(map[string]interface{})["id"])
}

func TestErrorEnvelope(t *testing.T) {
	rec, body := run(t, func(c *gin.Context) {
		Error(c, appErrors.Clone(appErrors.ErrOpenEntry, "visitor already inside"))
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "OPEN_ENTRY", errBody["code"])
	assert.Equal(t, "visitor already inside", errBody["message"])
	assert.Equal(t, "req-1", body["meta"].(map[string]interface{})["request_id"])

	rec, body = run(t, func(c *gin.Context) { Error(c, errors.New("pq: connection refused")) })
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", body["error"].(map[string]interface{})["message"])
}
