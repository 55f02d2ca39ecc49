package delhivery

import (
	"context"
)

// APIClient defines the interface for Delhivery API operations.
// This abstraction allows for mock implementations during testing
// and real implementations in production.
type APIClient interface {
	// CreateWarehouse registers a client warehouse with Delhivery.
	CreateWarehouse(ctx context.Context, req *WarehousePayload) (*WarehouseResponse, error)

	// EditWarehouse updates an already-registered client warehouse.
	EditWarehouse(ctx context.Context, req *WarehousePayload) (*WarehouseResponse, error)

	// ListWarehouses fetches all client warehouses registered with Delhivery.
	ListWarehouses(ctx context.Context) (*WarehouseListResponse, error)

	// Ping issues a lightweight authenticated probe and returns the HTTP
	// status code Delhivery answered with.
	Ping(ctx context.Context) (int, error)

	// CreateShipment submits a manifest (one or more packages) to Delhivery.
	CreateShipment(ctx context.Context, req *ManifestPayload) (*ManifestResponse, error)

	// GetTracking retrieves tracking information for a waybill.
	GetTracking(ctx context.Context, waybill string) (*TrackingResponse, error)

	// RequestPickup schedules a pickup visit to a registered warehouse.
	RequestPickup(ctx context.Context, req *PickupPayload) (*PickupResponse, error)

	// FetchWaybills reserves a batch of waybill numbers.
	FetchWaybills(ctx context.Context, count int) ([]string, error)
}

// ============================================================================
// API Request/Response Types (match Delhivery's REST API structure)
// ============================================================================

// WarehousePayload represents a Delhivery client-warehouse create/edit request.
// POST /api/backend/clientwarehouse/create/ and .../edit/
type WarehousePayload struct {
	Name           string `json:"name"`
	RegisteredName string `json:"registered_name,omitempty"`
	Phone          string `json:"phone"`
	Email          string `json:"email,omitempty"`
	Address        string `json:"address"`
	City           string `json:"city,omitempty"`
	Pin            string `json:"pin"`
	State          string `json:"state,omitempty"`
	Country        string `json:"country,omitempty"`
	ReturnAddress  string `json:"return_address,omitempty"`
	ReturnCity     string `json:"return_city,omitempty"`
	ReturnPin      string `json:"return_pin,omitempty"`
	ReturnState    string `json:"return_state,omitempty"`
	ReturnCountry  string `json:"return_country,omitempty"`
}

// WarehouseData is a warehouse record as Delhivery returns it. Optional
// fields the API omits decode to their zero value and must be treated as
// "not reported", never as an instruction to clear data.
type WarehouseData struct {
	Name           string `json:"name"`
	RegisteredName string `json:"registered_name,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Email          string `json:"email,omitempty"`
	Address        string `json:"address,omitempty"`
	City           string `json:"city,omitempty"`
	Pin            string `json:"pin,omitempty"`
	State          string `json:"state,omitempty"`
	Country        string `json:"country,omitempty"`
	ReturnAddress  string `json:"return_address,omitempty"`
	ReturnCity     string `json:"return_city,omitempty"`
	ReturnPin      string `json:"return_pin,omitempty"`
	ReturnState    string `json:"return_state,omitempty"`
	ReturnCountry  string `json:"return_country,omitempty"`
	Active         bool   `json:"active"`
}

// WarehouseResponse represents the create/edit response envelope.
// Delhivery answers either {"success": true, "data": {...}} or an error
// shape; bodies that are not JSON at all are preserved in RawBody by the
// normalizer.
type WarehouseResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Error   string         `json:"error,omitempty"`
	Data    *WarehouseData `json:"data,omitempty"`

	// RawBody holds the body text when the response was 2xx but not
	// parseable JSON.
	RawBody string `json:"-"`
}

// WarehouseListResponse represents the list-all response.
type WarehouseListResponse struct {
	Success bool            `json:"success"`
	Data    []WarehouseData `json:"data"`
}

// ManifestPayload represents a Delhivery shipment creation request.
// POST /api/cmu/create.json with body `format=json&data=<payload>`.
type ManifestPayload struct {
	PickupLocation PickupLocation  `json:"pickup_location"`
	Shipments      []ShipmentEntry `json:"shipments"`
}

// PickupLocation references a registered warehouse by name.
type PickupLocation struct {
	Name string `json:"name"`
}

// ShipmentEntry is one package in a manifest.
type ShipmentEntry struct {
	Order         string `json:"order"`
	Name          string `json:"name"`
	Add           string `json:"add"`
	City          string `json:"city,omitempty"`
	Pin           string `json:"pin"`
	State         string `json:"state,omitempty"`
	Country       string `json:"country,omitempty"`
	Phone         string `json:"phone"`
	PaymentMode   string `json:"payment_mode"`
	CODAmount     float64 `json:"cod_amount,omitempty"`
	TotalAmount   float64 `json:"total_amount,omitempty"`
	ProductsDesc  string `json:"products_desc,omitempty"`
	Weight        float64 `json:"weight,omitempty"`
	Quantity      int    `json:"quantity,omitempty"`
	ShipmentLength float64 `json:"shipment_length,omitempty"`
	ShipmentWidth  float64 `json:"shipment_width,omitempty"`
	ShipmentHeight float64 `json:"shipment_height,omitempty"`
	FragileShipment bool  `json:"fragile_shipment,omitempty"`
	DangerousGood   bool  `json:"dangerous_good,omitempty"`

	// MPS linkage: child packages share the parent's master_id and carry
	// the total package count.
	MasterID    string `json:"master_id,omitempty"`
	MPSChildren int    `json:"mps_children,omitempty"`
}

// ManifestResponse represents the shipment creation response.
type ManifestResponse struct {
	Success      bool            `json:"success"`
	Packages     []PackageResult `json:"packages"`
	PackagesCount int            `json:"package_count,omitempty"`
	CashPickups  float64         `json:"cash_pickups,omitempty"`
	Error        string          `json:"error,omitempty"`
	RMK          string          `json:"rmk,omitempty"`
}

// PackageResult is the per-package outcome inside a manifest response.
type PackageResult struct {
	Status  string   `json:"status"`
	Waybill string   `json:"waybill"`
	RefNum  string   `json:"refnum,omitempty"`
	Remarks []string `json:"remarks,omitempty"`
}

// TrackingResponse represents the package tracking response.
// GET /api/v1/packages/json/?waybill=
type TrackingResponse struct {
	ShipmentData []TrackedShipment `json:"ShipmentData"`
	Error        string            `json:"Error,omitempty"`
}

// TrackedShipment wraps one tracked shipment.
type TrackedShipment struct {
	Shipment ShipmentDetail `json:"Shipment"`
}

// ShipmentDetail is the tracking detail for one waybill.
type ShipmentDetail struct {
	AWB           string       `json:"AWB"`
	ReferenceNo   string       `json:"ReferenceNo,omitempty"`
	Status        StatusDetail `json:"Status"`
	PickupDate    string       `json:"PickUpDate,omitempty"`
	DeliveryDate  string       `json:"DeliveryDate,omitempty"`
	Destination   string       `json:"Destination,omitempty"`
	SenderName    string       `json:"SenderName,omitempty"`
	Scans         []ScanDetail `json:"Scans,omitempty"`
}

// StatusDetail is the current status block of a tracked shipment.
type StatusDetail struct {
	Status       string `json:"Status"`
	StatusType   string `json:"StatusType,omitempty"`
	StatusDateTime string `json:"StatusDateTime,omitempty"`
	Instructions string `json:"Instructions,omitempty"`
}

// ScanDetail is one scan event in a shipment's history.
type ScanDetail struct {
	ScanDetail ScanEvent `json:"ScanDetail"`
}

// ScanEvent carries a single scan's fields.
type ScanEvent struct {
	Scan         string `json:"Scan"`
	ScanDateTime string `json:"ScanDateTime,omitempty"`
	ScannedLocation string `json:"ScannedLocation,omitempty"`
	Instructions string `json:"Instructions,omitempty"`
}

// PickupPayload represents a pickup scheduling request.
// POST /fm/request/new/
type PickupPayload struct {
	PickupLocation       string `json:"pickup_location"`
	PickupDate           string `json:"pickup_date"`
	PickupTime           string `json:"pickup_time"`
	ExpectedPackageCount int    `json:"expected_package_count"`
}

// PickupResponse represents the pickup scheduling response.
type PickupResponse struct {
	PickupID       int64  `json:"pickup_id,omitempty"`
	PickupLocation string `json:"pickup_location_name,omitempty"`
	PickupDate     string `json:"pickup_date,omitempty"`
	PickupTime     string `json:"pickup_time,omitempty"`
	Error          string `json:"error,omitempty"`
	Message        string `json:"message,omitempty"`
}

// WaybillResponse represents the bulk waybill fetch response.
// GET /waybill/api/bulk/json/?count= returns a comma-separated string or a
// JSON array depending on the count; the normalizer handles both.
type WaybillResponse struct {
	Waybills []string
}

// APIError represents an error from the Delhivery API after normalization.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}
