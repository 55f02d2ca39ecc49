// Package delhivery provides integration with the Delhivery logistics API.
package delhivery

import (
	"context"
	"net/http"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shopkart/fulfillment/pkg/carrier"
)

const carrierName = "delhivery"

// Config holds Delhivery configuration.
type Config struct {
	APIToken   string
	BaseURL    string
	StagingURL string

	// AllowDemoFallback widens the endpoint priority lists with the
	// staging host.
	AllowDemoFallback bool

	// Timeout bounds each endpoint attempt.
	Timeout time.Duration

	// UseMock swaps in the in-memory API client.
	UseMock bool
}

// Client is the Delhivery carrier client. It implements the carrier.Carrier
// interface and delegates API calls to the underlying APIClient (mock or
// HTTP), collapsing every wire response into carrier.Result.
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new Delhivery client.
// If cfg.UseMock is true, it uses a mock API client for testing.
// Otherwise, it uses the real HTTP API client.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL:           cfg.BaseURL,
			StagingURL:        cfg.StagingURL,
			APIToken:          cfg.APIToken,
			AllowDemoFallback: cfg.AllowDemoFallback,
			Timeout:           cfg.Timeout,
		})
	}

	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// NewWithAPIClient creates a new Delhivery client with a custom API client.
// This is useful for injecting mock clients in tests.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return carrierName
}

// CreateWarehouse registers a pickup warehouse with Delhivery.
func (c *Client) CreateWarehouse(ctx context.Context, req *carrier.WarehouseRequest) (*carrier.Result, error) {
	c.logger.Info("Registering Delhivery warehouse",
		zap.String("warehouse", req.Name),
		zap.String("pin", req.Pin),
	)

	apiResp, err := c.apiClient.CreateWarehouse(ctx, warehouseToAPI(req))
	if err != nil {
		c.logger.Error("Delhivery API error", zap.String("warehouse", req.Name), zap.Error(err))
		return nil, err
	}

	result := resultFromWarehouseResponse(apiResp)
	if result.WarehouseName == "" {
		result.WarehouseName = req.Name
	}
	return result, nil
}

// UpdateWarehouse edits an already-registered warehouse.
func (c *Client) UpdateWarehouse(ctx context.Context, req *carrier.WarehouseRequest) (*carrier.Result, error) {
	c.logger.Info("Updating Delhivery warehouse", zap.String("warehouse", req.Name))

	apiResp, err := c.apiClient.EditWarehouse(ctx, warehouseToAPI(req))
	if err != nil {
		c.logger.Error("Delhivery API error", zap.String("warehouse", req.Name), zap.Error(err))
		return nil, err
	}

	result := resultFromWarehouseResponse(apiResp)
	if result.WarehouseName == "" {
		result.WarehouseName = req.Name
	}
	return result, nil
}

// ListWarehouses fetches all warehouses registered with Delhivery.
func (c *Client) ListWarehouses(ctx context.Context) ([]carrier.RemoteWarehouse, error) {
	apiResp, err := c.apiClient.ListWarehouses(ctx)
	if err != nil {
		c.logger.Error("Delhivery API error listing warehouses", zap.Error(err))
		return nil, err
	}

	remote := make([]carrier.RemoteWarehouse, len(apiResp.Data))
	for i, w := range apiResp.Data {
		remote[i] = warehouseFromAPI(w)
	}
	return remote, nil
}

// ValidateToken probes the API. A 401 means the token is invalid; any other
// status (including 4xx business errors) means the token is accepted and the
// request was merely malformed.
func (c *Client) ValidateToken(ctx context.Context) (bool, error) {
	status, err := c.apiClient.Ping(ctx)
	if err != nil {
		if carrier.IsAuthFailure(err) {
			return false, nil
		}
		return false, err
	}
	return status != http.StatusUnauthorized, nil
}

// CreateShipment submits a manifest to Delhivery. All packages go in a
// single batched call; the carrier's endpoint expects the full set together
// for correct MPS linkage.
func (c *Client) CreateShipment(ctx context.Context, req *carrier.ShipmentRequest) (*carrier.Result, error) {
	c.logger.Info("Creating Delhivery shipment",
		zap.String("pickup_location", req.PickupLocation),
		zap.Int("package_count", len(req.Packages)),
	)

	apiResp, err := c.apiClient.CreateShipment(ctx, manifestToAPI(req))
	if err != nil {
		c.logger.Error("Delhivery API error", zap.Error(err))
		return nil, err
	}

	return manifestResultFromAPI(apiResp), nil
}

// TrackShipment fetches tracking detail for a waybill.
func (c *Client) TrackShipment(ctx context.Context, waybill string) (*carrier.Result, error) {
	apiResp, err := c.apiClient.GetTracking(ctx, waybill)
	if err != nil {
		c.logger.Error("Delhivery API error", zap.String("waybill", waybill), zap.Error(err))
		return nil, err
	}

	return &carrier.Result{
		Success: true,
		Data:    apiResp.ShipmentData,
	}, nil
}

// RequestPickup schedules a pickup visit to a registered warehouse.
func (c *Client) RequestPickup(ctx context.Context, req *carrier.PickupRequest) (*carrier.Result, error) {
	c.logger.Info("Scheduling Delhivery pickup",
		zap.String("pickup_location", req.PickupLocation),
		zap.String("date", req.Date),
		zap.Int("package_count", req.PackageCount),
	)

	apiResp, err := c.apiClient.RequestPickup(ctx, &PickupPayload{
		PickupLocation:       req.PickupLocation,
		PickupDate:           req.Date,
		PickupTime:           req.Time,
		ExpectedPackageCount: req.PackageCount,
	})
	if err != nil {
		c.logger.Error("Delhivery API error", zap.String("pickup_location", req.PickupLocation), zap.Error(err))
		return nil, err
	}

	return &carrier.Result{
		Success: true,
		Message: apiResp.Message,
		Data:    apiResp,
	}, nil
}

// FetchWaybills reserves a batch of waybill numbers.
func (c *Client) FetchWaybills(ctx context.Context, count int) ([]string, error) {
	waybills, err := c.apiClient.FetchWaybills(ctx, count)
	if err != nil {
		c.logger.Error("Delhivery API error fetching waybills", zap.Error(err))
		return nil, err
	}
	return waybills, nil
}

// ============================================================================
// Conversion helpers: carrier models -> API models
// ============================================================================

func warehouseToAPI(req *carrier.WarehouseRequest) *WarehousePayload {
	payload := &WarehousePayload{
		Name:           req.Name,
		RegisteredName: req.RegisteredName,
		Phone:          req.Phone,
		Email:          req.Email,
		Address:        req.Address,
		City:           req.City,
		Pin:            req.Pin,
		State:          req.State,
		Country:        req.Country,
		ReturnAddress:  req.ReturnAddress,
		ReturnCity:     req.ReturnCity,
		ReturnPin:      req.ReturnPin,
		ReturnState:    req.ReturnState,
		ReturnCountry:  req.ReturnCountry,
	}

	// Delhivery requires the reverse-logistics block; default it to the
	// forward address when the caller left it empty.
	if payload.ReturnAddress == "" {
		payload.ReturnAddress = req.Address
		payload.ReturnCity = req.City
		payload.ReturnPin = req.Pin
		payload.ReturnState = req.State
		payload.ReturnCountry = req.Country
	}
	return payload
}

func manifestToAPI(req *carrier.ShipmentRequest) *ManifestPayload {
	shipments := make([]ShipmentEntry, len(req.Packages))
	for i, p := range req.Packages {
		shipments[i] = ShipmentEntry{
			Order:           p.OrderID,
			Name:            p.ConsigneeName,
			Add:             p.Address,
			City:            p.City,
			Pin:             p.Pin,
			State:           p.State,
			Country:         p.Country,
			Phone:           p.Phone,
			PaymentMode:     string(p.PaymentMode),
			CODAmount:       p.CODAmount,
			TotalAmount:     p.DeclaredValue,
			ProductsDesc:    p.ProductsDesc,
			Weight:          p.Weight,
			Quantity:        p.Quantity,
			ShipmentLength:  p.Length,
			ShipmentWidth:   p.Breadth,
			ShipmentHeight:  p.Height,
			FragileShipment: p.FragileShipment,
			DangerousGood:   p.DangerousGood,
			MasterID:        p.MasterID,
			MPSChildren:     p.MPSChildren,
		}
	}
	return &ManifestPayload{
		PickupLocation: PickupLocation{Name: req.PickupLocation},
		Shipments:      shipments,
	}
}

// ============================================================================
// Conversion helpers: API models -> carrier models
// ============================================================================

func warehouseFromAPI(w WarehouseData) carrier.RemoteWarehouse {
	return carrier.RemoteWarehouse{
		Name:           w.Name,
		RegisteredName: w.RegisteredName,
		Phone:          w.Phone,
		Email:          w.Email,
		Address:        w.Address,
		City:           w.City,
		Pin:            w.Pin,
		State:          w.State,
		Country:        w.Country,
		ReturnAddress:  w.ReturnAddress,
		ReturnCity:     w.ReturnCity,
		ReturnPin:      w.ReturnPin,
		ReturnState:    w.ReturnState,
		ReturnCountry:  w.ReturnCountry,
		Active:         w.Active,
	}
}

func manifestResultFromAPI(resp *ManifestResponse) *carrier.Result {
	outcomes := make([]carrier.ShipmentOutcome, len(resp.Packages))
	failed := 0
	for i, p := range resp.Packages {
		remarks := ""
		if len(p.Remarks) > 0 {
			remarks = p.Remarks[0]
		}
		outcomes[i] = carrier.ShipmentOutcome{
			OrderID: p.RefNum,
			Waybill: p.Waybill,
			Status:  p.Status,
			Remarks: remarks,
		}
		if p.Status != "Success" {
			failed++
		}
	}

	result := &carrier.Result{
		Success: resp.Success && failed == 0,
		Data:    outcomes,
	}
	if resp.Error != "" {
		result.Message = resp.Error
	} else if resp.RMK != "" {
		result.Message = resp.RMK
	}
	return result
}

// Ensure Client implements carrier.Carrier interface
var _ carrier.Carrier = (*Client)(nil)
