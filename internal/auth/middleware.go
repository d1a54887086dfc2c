// Package auth resolves the acting account for API requests.
package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/invoply/invoply-api/internal/logger"
	"github.com/invoply/invoply-api/internal/store"
)

const (
	// APIKeyHeader carries the account's API key on every authenticated
	// request.
	APIKeyHeader = "X-API-Key"

	accountKey = "account"
)

// Middleware authenticates requests by API key and attaches the acting
// account to the gin context. Requests without a valid key are rejected
// before reaching any handler.
func Middleware(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(APIKeyHeader)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}

		account, err := st.GetAccountByAPIKey(c.Request.Context(), key)
		if err != nil {
			if logger.Log != nil {
				logger.Log.Warn("authentication failed",
					zap.String("client_ip", c.ClientIP()))
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		c.Set(accountKey, account)
		c.Next()
	}
}

// AccountFromContext returns the authenticated account set by Middleware.
func AccountFromContext(c *gin.Context) (*store.Account, bool) {
	v, exists := c.Get(accountKey)
	if !exists {
		return nil, false
	}
	account, ok := v.(*store.Account)
	return account, ok
}
