package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"dispatch/internal/logger"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	prev := logger.GetGlobalLogger()
	logger.SetGlobalLogger(zap.New(core))
	t.Cleanup(func() { logger.SetGlobalLogger(prev) })
	return logs
}

func TestRecovery_ConvertsPanicTo500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := observe(t)

	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestLogging_RecordsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := observe(t)

	r := gin.New()
	r.Use(Logging())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

	entries := logs.FilterMessage("http request").All()
	if assert.Len(t, entries, 1) {
		ctx := entries[0].ContextMap()
		assert.Equal(t, "/ok", ctx["path"])
		assert.EqualValues(t, http.StatusNoContent, ctx["status"])
	}
}
