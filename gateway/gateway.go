package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/example/posbackoffice/pkg/config"
	"github.com/example/posbackoffice/pkg/metrics"
	"github.com/example/posbackoffice/pkg/models"
	"github.com/example/posbackoffice/pkg/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	requestIDHeader   = "X-Request-ID"
	defaultAuditLimit = 50
)

type Gateway struct {
	config  *config.ServerConfig
	service *service.Service
	metrics *metrics.Metrics
	logger  *zap.Logger
	router  *gin.Engine
	server  *http.Server
}

func NewGateway(cfg *config.ServerConfig, svc *service.Service, m *metrics.Metrics, logger *zap.Logger) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware(logger))
	if m != nil {
		router.Use(metricsMiddleware(m))
	}
	if cfg.CORSAllowAll {
		router.Use(corsMiddleware())
	}

	g := &Gateway{
		config:  cfg,
		service: svc,
		metrics: m,
		logger:  logger,
		router:  router,
	}
	g.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g.setupRoutes()
	return g
}

func (g *Gateway) setupRoutes() {
	g.router.GET("/health", g.health)
	g.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := g.router.Group("/api/restaurant")
	{
		api.GET("/tables", g.listTables)
		api.POST("/tables", g.replaceTables)

		api.GET("/menu", g.listMenu)
		api.POST("/menu", g.replaceMenu)

		api.GET("/orders", g.listOrders)
		api.POST("/orders", g.reconcileOrders)

		api.GET("/counter", g.nextOrderNumber)

		api.GET("/audit", g.auditLogs)
	}
}

// Handler exposes the router, mainly for tests.
func (g *Gateway) Handler() http.Handler {
	return g.router
}

func (g *Gateway) Start() error {
	g.logger.Info("Gateway starting", zap.String("address", g.server.Addr))

	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}

// Drain shuts the server down and then runs closers in order. Closers run
// even if the shutdown fails; all errors are joined.
func (g *Gateway) Drain(ctx context.Context, closers ...func(ctx context.Context) error) error {
	errs := []error{g.Shutdown(ctx)}
	for _, closeFn := range closers {
		errs = append(errs, closeFn(ctx))
	}
	return errors.Join(errs...)
}

func (g *Gateway) health(c *gin.Context) {
	if err := g.service.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (g *Gateway) listTables(c *gin.Context) {
	tables, err := g.service.ListTables(c.Request.Context())
	if err != nil {
		g.fail(c, "Failed to list tables", err)
		return
	}
	c.JSON(http.StatusOK, tables)
}

func (g *Gateway) replaceTables(c *gin.Context) {
	var tables []models.OrderTable
	if !g.bind(c, &tables) {
		return
	}
	if err := g.service.ReplaceTables(c.Request.Context(), tables); err != nil {
		g.fail(c, "Failed to replace tables", err)
		return
	}
	c.Status(http.StatusOK)
}

func (g *Gateway) listMenu(c *gin.Context) {
	products, err := g.service.ListMenu(c.Request.Context())
	if err != nil {
		g.fail(c, "Failed to list menu", err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (g *Gateway) replaceMenu(c *gin.Context) {
	var products []models.Product
	if !g.bind(c, &products) {
		return
	}
	if err := g.service.ReplaceMenu(c.Request.Context(), products); err != nil {
		g.fail(c, "Failed to replace menu", err)
		return
	}
	c.Status(http.StatusOK)
}

func (g *Gateway) listOrders(c *gin.Context) {
	orders, err := g.service.ListOrders(c.Request.Context())
	if err != nil {
		g.fail(c, "Failed to list orders", err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (g *Gateway) reconcileOrders(c *gin.Context) {
	var orders []models.Order
	if !g.bind(c, &orders) {
		return
	}
	if err := g.service.ReconcileOrders(c.Request.Context(), orders); err != nil {
		g.fail(c, "Failed to reconcile orders", err)
		return
	}
	c.Status(http.StatusOK)
}

// nextOrderNumber answers with a bare integer; failures carry the store's message.
func (g *Gateway) nextOrderNumber(c *gin.Context) {
	n, err := g.service.NextOrderNumber(c.Request.Context())
	if err != nil {
		g.logger.Error("Failed to compute next order number", zap.Error(err))
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, n)
}

// auditLogs serves ?entity=menu|tables|orders&limit=N, newest first.
func (g *Gateway) auditLogs(c *gin.Context) {
	limit := defaultAuditLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = n
	}

	logs, err := g.service.AuditLogs(c.Request.Context(), c.Query("entity"), limit)
	if err != nil {
		g.fail(c, "Failed to read audit logs", err)
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (g *Gateway) bind(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func (g *Gateway) fail(c *gin.Context, msg string, err error) {
	switch {
	case service.IsInvalidInput(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAuditDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case service.IsConstraint(err):
		g.logger.Warn(msg, zap.String("request_id", c.GetString(requestIDHeader)), zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		g.logger.Error(msg, zap.String("request_id", c.GetString(requestIDHeader)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
