package delhivery

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shopkart/fulfillment/pkg/carrier"
)

// MockAPIClient is a mock implementation of APIClient for testing.
// Individual operations can be overridden via the On* hooks; without a hook
// the mock keeps a small in-memory warehouse set and fabricates plausible
// responses.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnCreateWarehouse func(ctx context.Context, req *WarehousePayload) (*WarehouseResponse, error)
	OnEditWarehouse   func(ctx context.Context, req *WarehousePayload) (*WarehouseResponse, error)
	OnListWarehouses  func(ctx context.Context) (*WarehouseListResponse, error)
	OnPing            func(ctx context.Context) (int, error)
	OnCreateShipment  func(ctx context.Context, req *ManifestPayload) (*ManifestResponse, error)
	OnGetTracking     func(ctx context.Context, waybill string) (*TrackingResponse, error)
	OnRequestPickup   func(ctx context.Context, req *PickupPayload) (*PickupResponse, error)
	OnFetchWaybills   func(ctx context.Context, count int) ([]string, error)

	mu         sync.Mutex
	warehouses map[string]WarehouseData

	// CreateCalls counts warehouse create attempts, useful for asserting
	// idempotence guards.
	CreateCalls int
}

// NewMockAPIClient creates a new mock API client.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{
		warehouses: make(map[string]WarehouseData),
	}
}

func (m *MockAPIClient) delay() {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
}

// SeedWarehouse preloads the mock's warehouse set.
func (m *MockAPIClient) SeedWarehouse(data WarehouseData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warehouses[data.Name] = data
}

// CreateWarehouse registers a warehouse in the mock's in-memory set.
func (m *MockAPIClient) CreateWarehouse(ctx context.Context, req *WarehousePayload) (*WarehouseResponse, error) {
	m.delay()

	m.mu.Lock()
	m.CreateCalls++
	m.mu.Unlock()

	if m.OnCreateWarehouse != nil {
		return m.OnCreateWarehouse(ctx, req)
	}
	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "simulated create failure", StatusCode: http.StatusInternalServerError}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.warehouses[req.Name]; exists {
		return nil, carrier.NewError(carrierName, carrier.CodeDuplicate,
			fmt.Sprintf("warehouse %q already exists", req.Name)).
			WithStatusCode(http.StatusConflict).
			WithCause(carrier.ErrDuplicateWarehouse)
	}

	data := warehouseDataFromPayload(req)
	m.warehouses[req.Name] = data
	return &WarehouseResponse{Success: true, Data: &data}, nil
}

// EditWarehouse updates a warehouse in the mock's in-memory set.
func (m *MockAPIClient) EditWarehouse(ctx context.Context, req *WarehousePayload) (*WarehouseResponse, error) {
	m.delay()

	if m.OnEditWarehouse != nil {
		return m.OnEditWarehouse(ctx, req)
	}
	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "simulated edit failure", StatusCode: http.StatusInternalServerError}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	data := warehouseDataFromPayload(req)
	m.warehouses[req.Name] = data
	return &WarehouseResponse{Success: true, Data: &data}, nil
}

// ListWarehouses returns every warehouse known to the mock.
func (m *MockAPIClient) ListWarehouses(ctx context.Context) (*WarehouseListResponse, error) {
	m.delay()

	if m.OnListWarehouses != nil {
		return m.OnListWarehouses(ctx)
	}
	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "simulated list failure", StatusCode: http.StatusInternalServerError}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	data := make([]WarehouseData, 0, len(m.warehouses))
	for _, w := range m.warehouses {
		data = append(data, w)
	}
	return &WarehouseListResponse{Success: true, Data: data}, nil
}

// Ping reports a healthy authenticated probe.
func (m *MockAPIClient) Ping(ctx context.Context) (int, error) {
	m.delay()

	if m.OnPing != nil {
		return m.OnPing(ctx)
	}
	if m.SimulateErrors {
		return http.StatusUnauthorized, nil
	}
	return http.StatusOK, nil
}

// CreateShipment fabricates a per-package success manifest response.
func (m *MockAPIClient) CreateShipment(ctx context.Context, req *ManifestPayload) (*ManifestResponse, error) {
	m.delay()

	if m.OnCreateShipment != nil {
		return m.OnCreateShipment(ctx, req)
	}
	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "simulated manifest failure", StatusCode: http.StatusInternalServerError}
	}

	packages := make([]PackageResult, len(req.Shipments))
	for i, s := range req.Shipments {
		packages[i] = PackageResult{
			Status:  "Success",
			Waybill: fmt.Sprintf("MOCK%d%s", i, uuid.New().String()[:8]),
			RefNum:  s.Order,
		}
	}
	return &ManifestResponse{Success: true, Packages: packages, PackagesCount: len(packages)}, nil
}

// GetTracking fabricates an in-transit tracking response.
func (m *MockAPIClient) GetTracking(ctx context.Context, waybill string) (*TrackingResponse, error) {
	m.delay()

	if m.OnGetTracking != nil {
		return m.OnGetTracking(ctx, waybill)
	}
	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "simulated tracking failure", StatusCode: http.StatusInternalServerError}
	}

	return &TrackingResponse{
		ShipmentData: []TrackedShipment{
			{
				Shipment: ShipmentDetail{
					AWB: waybill,
					Status: StatusDetail{
						Status:     "In Transit",
						StatusType: "UD",
					},
					Scans: []ScanDetail{
						{ScanDetail: ScanEvent{Scan: "Manifested", ScannedLocation: "Delhi_Hub"}},
						{ScanDetail: ScanEvent{Scan: "In Transit", ScannedLocation: "Gurgaon_Hub"}},
					},
				},
			},
		},
	}, nil
}

// RequestPickup fabricates a scheduled pickup.
func (m *MockAPIClient) RequestPickup(ctx context.Context, req *PickupPayload) (*PickupResponse, error) {
	m.delay()

	if m.OnRequestPickup != nil {
		return m.OnRequestPickup(ctx, req)
	}
	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "simulated pickup failure", StatusCode: http.StatusInternalServerError}
	}

	return &PickupResponse{
		PickupID:       time.Now().UnixNano() % 1000000,
		PickupLocation: req.PickupLocation,
		PickupDate:     req.PickupDate,
		PickupTime:     req.PickupTime,
	}, nil
}

// FetchWaybills fabricates a batch of waybill numbers.
func (m *MockAPIClient) FetchWaybills(ctx context.Context, count int) ([]string, error) {
	m.delay()

	if m.OnFetchWaybills != nil {
		return m.OnFetchWaybills(ctx, count)
	}
	if m.SimulateErrors {
		return nil, &APIError{Code: "MOCK_ERROR", Message: "simulated waybill failure", StatusCode: http.StatusInternalServerError}
	}

	waybills := make([]string, count)
	for i := range waybills {
		waybills[i] = fmt.Sprintf("MOCKWB%s", uuid.New().String()[:12])
	}
	return waybills, nil
}

func warehouseDataFromPayload(req *WarehousePayload) WarehouseData {
	data := WarehouseData{
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
	if data.ReturnAddress == "" {
		data.ReturnAddress = req.Address
	}
	if data.ReturnPin == "" {
		data.ReturnPin = req.Pin
	}
	return data
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)
