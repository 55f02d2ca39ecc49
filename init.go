package main

import (
	"context"
	"fmt"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/shopkart/fulfillment/internal/config"
	"github.com/shopkart/fulfillment/internal/reconcile"
	"github.com/shopkart/fulfillment/internal/shipment"
	"github.com/shopkart/fulfillment/internal/store"
	"github.com/shopkart/fulfillment/internal/telemetry"
	"github.com/shopkart/fulfillment/pkg/carrier"
	"github.com/shopkart/fulfillment/pkg/carrier/delhivery"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(level string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(level)
}

func initTracer(ctx context.Context, cfg *config.Config) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return noop.NewTracerProvider().Tracer(cfg.ServiceName),
			func(context.Context) error { return nil }, nil
	}

	tracer, shutdown, err := telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version)
	if err != nil {
		// Tracing is best effort; the service runs without it.
		return noop.NewTracerProvider().Tracer(cfg.ServiceName),
			func(context.Context) error { return nil }, err
	}
	return tracer, shutdown, nil
}

func initStore(ctx context.Context, cfg *config.Config) (*store.Client, *store.WarehouseStore, error) {
	storeCfg := store.DefaultConfig()
	storeCfg.URI = cfg.MongoURI
	storeCfg.Database = cfg.MongoDatabase

	client, err := store.NewClient(ctx, storeCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to mongodb: %w", err)
	}

	warehouses := store.NewWarehouseStore(client)
	if err := warehouses.EnsureIndexes(ctx); err != nil {
		client.Close(ctx)
		return nil, nil, err
	}
	return client, warehouses, nil
}

func initCarrier(cfg *config.Config, logger *otelzap.Logger, tracer trace.Tracer) carrier.Carrier {
	return delhivery.New(delhivery.Config{
		APIToken:          cfg.DelhiveryAPIToken,
		BaseURL:           cfg.DelhiveryBaseURL,
		StagingURL:        cfg.DelhiveryStagingURL,
		AllowDemoFallback: cfg.DelhiveryDemoFallback,
		Timeout:           cfg.DelhiveryTimeout,
		UseMock:           cfg.DelhiveryUseMock,
	}, logger, tracer)
}

func initServices(warehouses *store.WarehouseStore, c carrier.Carrier, logger *otelzap.Logger) (*reconcile.Service, *shipment.Service) {
	metrics := telemetry.NewMetrics()
	syncSvc := reconcile.NewService(warehouses, c, logger, metrics)
	shipmentSvc := shipment.NewService(warehouses, c, logger, metrics)
	return syncSvc, shipmentSvc
}
