// Package server assembles the gin engine: middleware, routes and the
// handler graph.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/invoply/invoply-api/internal/artifact"
	"github.com/invoply/invoply-api/internal/auth"
	"github.com/invoply/invoply-api/internal/config"
	"github.com/invoply/invoply-api/internal/handlers"
	"github.com/invoply/invoply-api/internal/logger"
	"github.com/invoply/invoply-api/internal/middleware"
	"github.com/invoply/invoply-api/internal/services"
	"github.com/invoply/invoply-api/internal/store"
)

// Server is the assembled HTTP service.
type Server struct {
	cfg    *config.Config
	store  store.Store
	router *gin.Engine
	http   *http.Server
}

// New wires the full service graph on top of the given store.
func New(cfg *config.Config, st store.Store) (*Server, error) {
	if cfg.Stage == config.StageProd {
		gin.SetMode(gin.ReleaseMode)
	}

	blobs, err := artifact.NewFSStore(cfg.ArtifactDir)
	if err != nil {
		return nil, err
	}
	cache := artifact.NewCache(st, blobs, logger.Log)

	invoiceService := services.NewInvoiceService(st, cache, logger.Log)
	common := handlers.NewCommonServices(handlers.CommonServicesConfig{
		Store:          st,
		InvoiceService: invoiceService,
		ClientService:  services.NewClientService(st, logger.Log),
		AccountService: services.NewAccountService(st, logger.Log),
		Reconciliation: services.NewReconciliationService(st, invoiceService, logger.Log),
		EmailService:   services.NewEmailService(cfg.ResendAPIKey, cfg.EmailFrom, cfg.EmailName, logger.Log),
		Logger:         logger.Log,
	})

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationIDMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", auth.APIKeyHeader, middleware.CorrelationIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.CorrelationIDHeader},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	registerRoutes(router, st, common, limiter)

	return &Server{
		cfg:    cfg,
		store:  st,
		router: router,
		http: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func registerRoutes(router *gin.Engine, st store.Store, common *handlers.CommonServices, limiter *middleware.RateLimiter) {
	healthHandler := handlers.NewHealthHandler(common)
	webhookHandler := handlers.NewWebhookHandler(common)
	invoiceHandler := handlers.NewInvoiceHandler(common)
	clientHandler := handlers.NewClientHandler(common)
	accountHandler := handlers.NewAccountHandler(common)

	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	// The provider cannot authenticate with an account key; the webhook
	// stays public, throttled per source IP, and relies on subject
	// resolution.
	v1.POST("/payments/webhook", limiter.Middleware(), webhookHandler.HandlePaymentWebhook)

	// Auth runs before the limiter so quotas attach to the resolved
	// account rather than whatever IP or header the request arrived with.
	authed := v1.Group("")
	authed.Use(auth.Middleware(st), limiter.Middleware())
	{
		authed.GET("/accounts/me", accountHandler.GetMe)
		authed.PATCH("/accounts/me", accountHandler.UpdateSettings)

		authed.POST("/clients", clientHandler.CreateClient)
		authed.GET("/clients", clientHandler.ListClients)
		authed.GET("/clients/:client_id", clientHandler.GetClient)
		authed.PUT("/clients/:client_id", clientHandler.UpdateClient)
		authed.DELETE("/clients/:client_id", clientHandler.DeleteClient)

		authed.POST("/invoices", invoiceHandler.CreateInvoice)
		authed.GET("/invoices", invoiceHandler.ListInvoices)
		authed.GET("/invoices/:invoice_id", invoiceHandler.GetInvoice)
		authed.GET("/invoices/:invoice_id/document", invoiceHandler.GetInvoiceDocument)
		authed.POST("/invoices/:invoice_id/mark-paid", invoiceHandler.MarkInvoicePaid)
		authed.POST("/invoices/:invoice_id/re-render", invoiceHandler.ReRenderInvoice)
		authed.POST("/invoices/:invoice_id/send", invoiceHandler.SendInvoice)
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	logger.Info("starting API server",
		zap.String("addr", s.cfg.ListenAddr),
		zap.String("stage", s.cfg.Stage),
		zap.String("store_driver", s.cfg.StoreDriver))
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	return s.store.Close()
}
