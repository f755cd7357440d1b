package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/api/v1/portal/lois/:id/pdf",
		NormalizePath("/api/v1/portal/lois/6f1c1f2e-7d0a-4b59-9d55-0b6f0c1b2a33/pdf"))
	assert.Equal(t, "/api/v1/admin/leads", NormalizePath("/api/v1/admin/leads"))
	assert.Equal(t, "/api/v1/prospectuses/harbor-view", NormalizePath("/api/v1/prospectuses/harbor-view"))
}

func TestPrometheusMiddlewareKeepsStatus(t *testing.T) {
	h := PrometheusMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}
