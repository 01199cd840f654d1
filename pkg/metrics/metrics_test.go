package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordTask("tts", "synthesize", "succeeded", 1500*time.Millisecond)
	m.RecordTask("tts", "synthesize", "succeeded", time.Second)
	m.RecordPlayback("playing")
	m.SetRegistrySize("voices", 7)
	m.RecordCacheHit("synthesis")
	m.RecordCacheMiss("synthesis")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.tasksTotal.WithLabelValues("tts", "synthesize", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.playbackTransitions.WithLabelValues("playing")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.registrySize.WithLabelValues("voices")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHitsTotal.WithLabelValues("synthesis")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTask("asr", "transcribe", "failed", time.Second)
		m.RecordPlayback("idle")
		m.SetRegistrySize("speakers", 1)
	})
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(prometheus.NewRegistry())

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/api/voices/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/voices/v1", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/api/voices/:id", "204")))
}
