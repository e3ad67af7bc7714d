package utils

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollectorCountsAndExposes(t *testing.T) {
	mc := NewMetricsCollector()
	mc.IncrementRequests()
	mc.IncrementRequests()
	mc.IncrementErrors()
	mc.AddOperationLatency("toggle_like", 3*time.Millisecond)

	snap := mc.Snapshot()
	assert.Equal(t, uint64(2), snap.Requests)
	assert.Equal(t, uint64(1), snap.Errors)

	rec := httptest.NewRecorder()
	mc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "freshhub_http_requests_total 2")
	assert.Contains(t, body, `freshhub_operation_duration_seconds_count{operation="toggle_like"} 1`)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "json", false).Info("post created", "postId", 4)
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
	assert.Contains(t, buf.String(), `"postId":4`)

	buf.Reset()
	NewLogger(&buf, "text", false).Debug("hidden")
	assert.Empty(t, buf.String())

	NewLogger(&buf, "text", true).Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}
