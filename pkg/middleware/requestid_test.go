package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine() (*gin.Engine, *string) {
	gin.SetMode(gin.TestMode)
	var seen string

	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/", func(c *gin.Context) {
		seen = GetRequestID(c)
		c.Status(http.StatusOK)
	})
	return engine, &seen
}

func TestRequestIDGenerated(t *testing.T) {
	engine, seen := newEngine()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, *seen)
	assert.Len(t, *seen, 26) // ULID length
	assert.Equal(t, *seen, w.Header().Get(RequestIDHeader))
}

func TestRequestIDPropagated(t *testing.T) {
	engine, seen := newEngine()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, "upstream-id", *seen)
	assert.Equal(t, "upstream-id", w.Header().Get(RequestIDHeader))
}

func TestRequestIDUniquePerRequest(t *testing.T) {
	engine, seen := newEngine()

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	first := *seen
	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEqual(t, first, *seen)
}

func TestRecoveryTurnsPanicInto500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(Recovery())
	engine.GET("/boom", func(c *gin.Context) { panic("handler exploded") })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}
