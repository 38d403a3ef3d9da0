package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReporter struct {
	healthy bool
	active  map[string]time.Time
}

func (f fakeReporter) Health(context.Context) bool                 { return f.healthy }
func (f fakeReporter) ActiveReconciliations() map[string]time.Time { return f.active }

func TestHandlerReturnsOKWhenHealthy(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	Handler(fakeReporter{healthy: true, active: map[string]time.Time{"j1": time.Now()}}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var result Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Healthy)
	assert.Equal(t, 1, result.ActiveReconciliations)
}

func TestHandlerReturnsServiceUnavailableWhenUnhealthy(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	Handler(fakeReporter{healthy: false, active: map[string]time.Time{}}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
