// Package carrier provides an abstraction layer for logistics carriers.
package carrier

import (
	"context"
)

// Carrier defines the interface that a logistics carrier integration must
// implement. Every method collapses the carrier's wire-level response into a
// Result or a typed error; transport failures never escape as panics.
type Carrier interface {
	// Name returns the carrier identifier (e.g., "delhivery").
	Name() string

	// CreateWarehouse registers a pickup warehouse with the carrier.
	CreateWarehouse(ctx context.Context, req *WarehouseRequest) (*Result, error)

	// UpdateWarehouse edits an already-registered warehouse.
	UpdateWarehouse(ctx context.Context, req *WarehouseRequest) (*Result, error)

	// ListWarehouses fetches all warehouses known to the carrier.
	ListWarehouses(ctx context.Context) ([]RemoteWarehouse, error)

	// ValidateToken probes the carrier API and reports whether the
	// configured credentials are accepted.
	ValidateToken(ctx context.Context) (bool, error)

	// CreateShipment submits one or more packages as a single manifest call.
	CreateShipment(ctx context.Context, req *ShipmentRequest) (*Result, error)

	// TrackShipment fetches tracking detail for a waybill.
	TrackShipment(ctx context.Context, waybill string) (*Result, error)

	// RequestPickup schedules a pickup visit to a registered warehouse.
	RequestPickup(ctx context.Context, req *PickupRequest) (*Result, error)

	// FetchWaybills reserves a batch of waybill numbers.
	FetchWaybills(ctx context.Context, count int) ([]string, error)
}

// Result is the single shape every carrier interaction collapses to,
// regardless of which endpoint or status code produced it.
type Result struct {
	Success       bool   `json:"success"`
	Message       string `json:"message,omitempty"`
	Data          any    `json:"data,omitempty"`
	WarehouseName string `json:"warehouse_name,omitempty"`
}
