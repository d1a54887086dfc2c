package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func correlationRouter(captured *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CorrelationIDMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		*captured = CorrelationIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})
	return router
}

func TestCorrelationIDEchoed(t *testing.T) {
	var captured string
	router := correlationRouter(&captured)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(CorrelationIDHeader, "delivery-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "delivery-42", w.Header().Get(CorrelationIDHeader))
	assert.Equal(t, "delivery-42", captured)
}

func TestCorrelationIDGenerated(t *testing.T) {
	var captured string
	router := correlationRouter(&captured)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	generated := w.Header().Get(CorrelationIDHeader)
	require.NotEmpty(t, generated)
	_, err := uuid.Parse(generated)
	assert.NoError(t, err)
	assert.Equal(t, generated, captured)
}
