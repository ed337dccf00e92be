package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestRouter(t *testing.T) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log, logs := observed()

	router := gin.New()
	router.Use(Recovery(log), GinMiddleware(log))
	router.GET("/ok", func(c *gin.Context) {
		FromContext(c.Request.Context()).Info("handler")
		GetGinLogger(c).Info("gin handler")
		c.Status(http.StatusOK)
	})
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	router.GET("/panic", func(c *gin.Context) { panic("boom") })
	return router, logs
}

func requestEntry(logs *observer.ObservedLogs) *observer.LoggedEntry {
	for _, e := range logs.All() {
		if e.Message == "HTTP Request" {
			return &e
		}
	}
	return nil
}

func TestGinMiddleware_GeneratesRequestID(t *testing.T) {
	router, logs := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	requestID := w.Header().Get(RequestIDHeader)
	require.NotEmpty(t, requestID)

	require.Len(t, logs.FilterMessage("handler").All(), 1)
	assert.Equal(t, requestID, logs.FilterMessage("handler").All()[0].ContextMap()["request_id"])
	require.Len(t, logs.FilterMessage("gin handler").All(), 1)

	entry := requestEntry(logs)
	require.NotNil(t, entry)
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.EqualValues(t, http.StatusOK, entry.ContextMap()["status"])
}

func TestGinMiddleware_KeepsIncomingRequestID(t *testing.T) {
	router, logs := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
	entry := requestEntry(logs)
	require.NotNil(t, entry)
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "req-42", entry.ContextMap()["request_id"])
}

func TestRecovery(t *testing.T) {
	router, logs := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Len(t, logs.FilterMessage("Panic recovered").All(), 1)
}

func TestGetGinLogger_Missing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.NotNil(t, GetGinLogger(c))
}
