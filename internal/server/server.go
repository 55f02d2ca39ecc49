// Package server exposes the warehouse and shipment services over REST.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/shopkart/fulfillment/internal/reconcile"
	"github.com/shopkart/fulfillment/internal/shipment"
	"github.com/shopkart/fulfillment/internal/store"
	"github.com/shopkart/fulfillment/internal/telemetry"
	"github.com/shopkart/fulfillment/pkg/carrier"
)

// WarehouseRepo is the slice of the warehouse repository the handlers use.
type WarehouseRepo interface {
	Create(ctx context.Context, w *store.Warehouse) error
	FindByID(ctx context.Context, id string) (*store.Warehouse, error)
	FindByName(ctx context.Context, name string) (*store.Warehouse, error)
	ActiveNameExists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context, q store.ListQuery) ([]store.Warehouse, int64, error)
	UpdateFields(ctx context.Context, id primitive.ObjectID, fields bson.M) error
	SaveCarrierSnapshot(ctx context.Context, id primitive.ObjectID, snap *store.CarrierSnapshot, status store.Status) error
	Deactivate(ctx context.Context, id, name string) error
}

// Syncer is the reconciliation surface the sync endpoints call.
type Syncer interface {
	PullFromCarrier(ctx context.Context) *reconcile.Report
	PushToCarrier(ctx context.Context, warehouseID string) *reconcile.Report
	FullSync(ctx context.Context) *reconcile.Report
	Stats(ctx context.Context) (*store.SyncStats, error)
}

// Shipments is the shipment-service surface the shipment endpoints call.
type Shipments interface {
	Create(ctx context.Context, req *shipment.Request) (*carrier.Result, error)
	Track(ctx context.Context, waybill string) (*carrier.Result, error)
	SchedulePickup(ctx context.Context, req *shipment.PickupRequest) (*carrier.Result, error)
	ReserveWaybills(ctx context.Context, count int) ([]string, error)
}

// HealthChecker reports storage connectivity for the health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config holds server configuration.
type Config struct {
	Port      int
	JWTSecret string
}

// Server is the HTTP server for the fulfillment service.
type Server struct {
	cfg        Config
	warehouses WarehouseRepo
	sync       Syncer
	shipments  Shipments
	carrier    carrier.Carrier
	health     HealthChecker
	logger     *otelzap.Logger
	metrics    *telemetry.Metrics
}

// New creates a new server instance.
func New(cfg Config, warehouses WarehouseRepo, sync Syncer, shipments Shipments,
	c carrier.Carrier, health HealthChecker, logger *otelzap.Logger) *Server {
	return &Server{
		cfg:        cfg,
		warehouses: warehouses,
		sync:       sync,
		shipments:  shipments,
		carrier:    c,
		health:     health,
		logger:     logger,
		metrics:    telemetry.NewMetrics(),
	}
}

// Handler builds the gin engine with all routes mounted. Split from Run so
// tests can drive it with httptest.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.observe())

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := r.Group("/", Authenticate([]byte(s.cfg.JWTSecret)))

	wh := auth.Group("/warehouse")
	{
		wh.POST("", RequireVerified(), s.handleCreateWarehouse)
		wh.GET("", s.handleListWarehouses)
		wh.GET("/update", s.handleGetWarehouse)
		wh.PUT("/update", RequireVerified(), s.handleUpdateWarehouse)
		wh.DELETE("/update", RequireVerified(), s.handleDeleteWarehouse)
		wh.POST("/sync", RequireAdmin(), s.handleSync)
		wh.GET("/sync", RequireAdmin(), s.handleSyncStats)
	}

	sh := auth.Group("/shipment", RequireVerified())
	{
		sh.POST("", s.handleCreateShipment)
		sh.GET("/track/:waybill", s.handleTrackShipment)
		sh.POST("/pickup", s.handleSchedulePickup)
		sh.GET("/waybill", s.handleReserveWaybills)
	}

	return r
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// observe records request count and latency per route.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RecordRequest(
			c.Request.Method+" "+route,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start).Seconds(),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	if err := s.health.HealthCheck(ctx); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		s.logger.Warn("Health check failed", zap.Error(err))
	}

	c.JSON(code, gin.H{
		"status":  status,
		"carrier": s.carrier.Name(),
	})
}
