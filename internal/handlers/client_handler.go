package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/invoply/invoply-api/internal/services"
)

// ClientHandler exposes client CRUD over HTTP.
type ClientHandler struct {
	common *CommonServices
}

// NewClientHandler creates a new client handler.
func NewClientHandler(common *CommonServices) *ClientHandler {
	return &ClientHandler{common: common}
}

// CreateClient handles POST /api/v1/clients
func (h *ClientHandler) CreateClient(c *gin.Context) {
	account, ok := actingAccount(c)
	if !ok {
		return
	}

	var params services.ClientParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	client, err := h.common.ClientService.Create(c.Request.Context(), account.ID, params)
	if err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusCreated, client)
}

// ListClients handles GET /api/v1/clients
func (h *ClientHandler) ListClients(c *gin.Context) {
	account, ok := actingAccount(c)
	if !ok {
		return
	}

	clients, err := h.common.ClientService.List(c.Request.Context(), account.ID)
	if err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clients": clients})
}

// GetClient handles GET /api/v1/clients/:client_id
func (h *ClientHandler) GetClient(c *gin.Context) {
	account, ok := actingAccount(c)
	if !ok {
		return
	}
	clientID, ok := pathUUID(c, "client_id")
	if !ok {
		return
	}

	client, err := h.common.ClientService.Get(c.Request.Context(), account.ID, clientID)
	if err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// UpdateClient handles PUT /api/v1/clients/:client_id
func (h *ClientHandler) UpdateClient(c *gin.Context) {
	account, ok := actingAccount(c)
	if !ok {
		return
	}
	clientID, ok := pathUUID(c, "client_id")
	if !ok {
		return
	}

	var params services.ClientParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	client, err := h.common.ClientService.Update(c.Request.Context(), account.ID, clientID, params)
	if err != nil {
		sendError(c, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// DeleteClient handles DELETE /api/v1/clients/:client_id
func (h *ClientHandler) DeleteClient(c *gin.Context) {
	account, ok := actingAccount(c)
	if !ok {
		return
	}
	clientID, ok := pathUUID(c, "client_id")
	if !ok {
		return
	}

	if err := h.common.ClientService.Delete(c.Request.Context(), account.ID, clientID); err != nil {
		sendError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
