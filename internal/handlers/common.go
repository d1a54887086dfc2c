package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/invoply/invoply-api/internal/apperrors"
	"github.com/invoply/invoply-api/internal/auth"
	"github.com/invoply/invoply-api/internal/logger"
	"github.com/invoply/invoply-api/internal/services"
	"github.com/invoply/invoply-api/internal/store"
)

// CommonServices holds common dependencies used across handlers
type CommonServices struct {
	store          store.Store
	InvoiceService *services.InvoiceService
	ClientService  *services.ClientService
	AccountService *services.AccountService
	Reconciliation *services.ReconciliationService
	EmailService   *services.EmailService
	logger         *zap.Logger
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// CommonServicesConfig contains all dependencies needed to create CommonServices
type CommonServicesConfig struct {
	Store          store.Store
	InvoiceService *services.InvoiceService
	ClientService  *services.ClientService
	AccountService *services.AccountService
	Reconciliation *services.ReconciliationService
	EmailService   *services.EmailService
	Logger         *zap.Logger
}

// NewCommonServices creates a new instance of CommonServices
func NewCommonServices(config CommonServicesConfig) *CommonServices {
	if config.Logger == nil {
		config.Logger = logger.Log
	}
	return &CommonServices{
		store:          config.Store,
		InvoiceService: config.InvoiceService,
		ClientService:  config.ClientService,
		AccountService: config.AccountService,
		Reconciliation: config.Reconciliation,
		EmailService:   config.EmailService,
		logger:         config.Logger,
	}
}

// sendError maps a service error to its HTTP status and writes the response.
func sendError(c *gin.Context, err error) {
	switch {
	case apperrors.IsValidation(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case apperrors.IsNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	case apperrors.IsForbidden(err):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
	case apperrors.IsRender(err):
		if logger.Log != nil {
			logger.Log.Error("document render failed", zap.Error(err))
		}
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "document generation failed"})
	default:
		if logger.Log != nil {
			logger.Log.Error("internal error", zap.Error(err))
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// actingAccount pulls the authenticated account off the context, aborting
// with 401 if auth middleware did not run.
func actingAccount(c *gin.Context) (*store.Account, bool) {
	account, ok := auth.AccountFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
		return nil, false
	}
	return account, true
}

// pathUUID parses the named path parameter as a UUID, responding 400 on
// malformed input.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}
