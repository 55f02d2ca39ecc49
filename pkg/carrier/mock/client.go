// Package mock provides a mock carrier implementation for testing.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopkart/fulfillment/pkg/carrier"
)

// Client is a mock carrier for testing. Warehouses registered through it are
// remembered so ListWarehouses round-trips what CreateWarehouse saw.
type Client struct {
	name string

	mu         sync.Mutex
	warehouses map[string]carrier.RemoteWarehouse
}

// New creates a new mock carrier.
func New(name string) *Client {
	return &Client{
		name:       name,
		warehouses: make(map[string]carrier.RemoteWarehouse),
	}
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return c.name
}

// CreateWarehouse registers a mock warehouse.
func (c *Client) CreateWarehouse(ctx context.Context, req *carrier.WarehouseRequest) (*carrier.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.warehouses[req.Name]; exists {
		return nil, carrier.NewError(c.name, carrier.CodeDuplicate,
			fmt.Sprintf("warehouse %q already exists", req.Name)).
			WithCause(carrier.ErrDuplicateWarehouse)
	}

	c.warehouses[req.Name] = remoteFromRequest(req)
	return &carrier.Result{
		Success:       true,
		Message:       "warehouse created",
		WarehouseName: req.Name,
	}, nil
}

// UpdateWarehouse edits a mock warehouse.
func (c *Client) UpdateWarehouse(ctx context.Context, req *carrier.WarehouseRequest) (*carrier.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.warehouses[req.Name] = remoteFromRequest(req)
	return &carrier.Result{
		Success:       true,
		Message:       "warehouse updated",
		WarehouseName: req.Name,
	}, nil
}

// ListWarehouses returns every warehouse registered with the mock.
func (c *Client) ListWarehouses(ctx context.Context) ([]carrier.RemoteWarehouse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	remote := make([]carrier.RemoteWarehouse, 0, len(c.warehouses))
	for _, w := range c.warehouses {
		remote = append(remote, w)
	}
	return remote, nil
}

// ValidateToken always reports a valid token.
func (c *Client) ValidateToken(ctx context.Context) (bool, error) {
	return true, nil
}

// CreateShipment fabricates per-package successes.
func (c *Client) CreateShipment(ctx context.Context, req *carrier.ShipmentRequest) (*carrier.Result, error) {
	outcomes := make([]carrier.ShipmentOutcome, len(req.Packages))
	for i, p := range req.Packages {
		outcomes[i] = carrier.ShipmentOutcome{
			OrderID: p.OrderID,
			Waybill: fmt.Sprintf("%sWB%d%02d", c.name, time.Now().UnixNano()%1000000000, i),
			Status:  "Success",
		}
	}
	return &carrier.Result{Success: true, Data: outcomes}, nil
}

// TrackShipment fabricates an in-transit status.
func (c *Client) TrackShipment(ctx context.Context, waybill string) (*carrier.Result, error) {
	return &carrier.Result{
		Success: true,
		Data: map[string]string{
			"waybill": waybill,
			"status":  "In Transit",
		},
	}, nil
}

// RequestPickup accepts any pickup for a warehouse the mock knows about.
func (c *Client) RequestPickup(ctx context.Context, req *carrier.PickupRequest) (*carrier.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.warehouses[req.PickupLocation]; !exists {
		return nil, carrier.NewError(c.name, carrier.CodeNotFound,
			fmt.Sprintf("warehouse %q not registered", req.PickupLocation)).
			WithCause(carrier.ErrWarehouseNotFound)
	}
	return &carrier.Result{
		Success: true,
		Message: "pickup scheduled",
		Data: map[string]any{
			"pickup_location": req.PickupLocation,
			"pickup_date":     req.Date,
		},
	}, nil
}

// FetchWaybills fabricates a batch of waybill numbers.
func (c *Client) FetchWaybills(ctx context.Context, count int) ([]string, error) {
	waybills := make([]string, count)
	for i := range waybills {
		waybills[i] = fmt.Sprintf("%sWB%d%03d", c.name, time.Now().UnixNano()%1000000, i)
	}
	return waybills, nil
}

func remoteFromRequest(req *carrier.WarehouseRequest) carrier.RemoteWarehouse {
	return carrier.RemoteWarehouse{
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
		Active:         true,
	}
}

// Ensure Client implements carrier.Carrier interface
var _ carrier.Carrier = (*Client)(nil)
