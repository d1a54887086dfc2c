package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AccountHandler exposes the account profile endpoints.
type AccountHandler struct {
	common *CommonServices
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(common *CommonServices) *AccountHandler {
	return &AccountHandler{common: common}
}

// GetMe handles GET /api/v1/accounts/me
func (h *AccountHandler) GetMe(c *gin.Context) {
	account, ok := actingAccount(c)
	if !ok {
		return
	}

	// Re-read so entitlement changes applied since auth ran are visible.
	current, err := h.common.AccountService.Get(c.Request.Context(), account.ID)
	if err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, current)
}

// UpdateSettings handles PATCH /api/v1/accounts/me. Only the business name
// is writable; entitlement belongs to payment reconciliation.
func (h *AccountHandler) UpdateSettings(c *gin.Context) {
	account, ok := actingAccount(c)
	if !ok {
		return
	}

	var body struct {
		BusinessName string `json:"business_name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	updated, err := h.common.AccountService.UpdateBusinessName(c.Request.Context(), account.ID, body.BusinessName)
	if err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
