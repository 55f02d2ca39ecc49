package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/shopkart/fulfillment/internal/reconcile"
	"github.com/shopkart/fulfillment/internal/store"
	"github.com/shopkart/fulfillment/internal/telemetry"
	"github.com/shopkart/fulfillment/pkg/carrier"
	"github.com/shopkart/fulfillment/pkg/carrier/mock"
)

// fakeStore is an in-memory stand-in for the Mongo warehouse repository.
type fakeStore struct {
	mu         sync.Mutex
	byID       map[string]*store.Warehouse
	createErr  func(name string) error
	updateErrs map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byID:       make(map[string]*store.Warehouse),
		updateErrs: make(map[string]error),
	}
}

func (f *fakeStore) add(w *store.Warehouse) *store.Warehouse {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w.ID.IsZero() {
		w.ID = primitive.NewObjectID()
	}
	f.byID[w.ID.Hex()] = w
	return w
}

func (f *fakeStore) FindByID(ctx context.Context, id string) (*store.Warehouse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (f *fakeStore) FindByName(ctx context.Context, name string) (*store.Warehouse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range f.byID {
		if w.Name == name && w.Status != store.StatusInactive {
			cp := *w
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) FindActive(ctx context.Context) ([]store.Warehouse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Warehouse
	for _, w := range f.byID {
		if w.Status == store.StatusActive {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (f *fakeStore) Create(ctx context.Context, w *store.Warehouse) error {
	if f.createErr != nil {
		if err := f.createErr(w.Name); err != nil {
			return err
		}
	}
	if w.Status == "" {
		w.Status = store.StatusPending
	}
	f.add(w)
	return nil
}

func (f *fakeStore) UpdateFields(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.byID[id.Hex()]
	if !ok {
		return store.ErrNotFound
	}
	if err := f.updateErrs[w.Name]; err != nil {
		return err
	}
	for k, v := range fields {
		s, _ := v.(string)
		switch k {
		case "phone":
			w.Phone = s
		case "email":
			w.Email = s
		case "registeredName":
			w.RegisteredName = s
		case "address":
			w.Address = s
		case "city":
			w.City = s
		case "pin":
			w.Pin = s
		case "state":
			w.State = s
		case "country":
			w.Country = s
		case "return_address":
			w.ReturnAddress = s
		case "return_city":
			w.ReturnCity = s
		case "return_pin":
			w.ReturnPin = s
		case "return_state":
			w.ReturnState = s
		case "return_country":
			w.ReturnCountry = s
		case "status":
			w.Status = store.Status(s)
		}
	}
	w.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeStore) SaveCarrierSnapshot(ctx context.Context, id primitive.ObjectID, snap *store.CarrierSnapshot, status store.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.byID[id.Hex()]
	if !ok {
		return store.ErrNotFound
	}
	w.DelhiveryResponse = snap
	w.Status = status
	return nil
}

func (f *fakeStore) Stats(ctx context.Context) (*store.SyncStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &store.SyncStats{Total: int64(len(f.byID))}
	for _, w := range f.byID {
		if w.Status == store.StatusActive {
			stats.Active++
		}
		if w.Registered() {
			stats.Synced++
		}
	}
	return stats, nil
}

// stubCarrier implements carrier.Carrier with per-operation hooks.
type stubCarrier struct {
	onList   func(ctx context.Context) ([]carrier.RemoteWarehouse, error)
	onCreate func(ctx context.Context, req *carrier.WarehouseRequest) (*carrier.Result, error)

	mu          sync.Mutex
	createCalls int
}

func (s *stubCarrier) Name() string { return "delhivery" }

func (s *stubCarrier) CreateWarehouse(ctx context.Context, req *carrier.WarehouseRequest) (*carrier.Result, error) {
	s.mu.Lock()
	s.createCalls++
	s.mu.Unlock()
	if s.onCreate != nil {
		return s.onCreate(ctx, req)
	}
	return &carrier.Result{Success: true, WarehouseName: req.Name}, nil
}

func (s *stubCarrier) UpdateWarehouse(ctx context.Context, req *carrier.WarehouseRequest) (*carrier.Result, error) {
	return &carrier.Result{Success: true, WarehouseName: req.Name}, nil
}

func (s *stubCarrier) ListWarehouses(ctx context.Context) ([]carrier.RemoteWarehouse, error) {
	if s.onList != nil {
		return s.onList(ctx)
	}
	return nil, nil
}

func (s *stubCarrier) ValidateToken(ctx context.Context) (bool, error) { return true, nil }

func (s *stubCarrier) CreateShipment(ctx context.Context, req *carrier.ShipmentRequest) (*carrier.Result, error) {
	return &carrier.Result{Success: true}, nil
}

func (s *stubCarrier) TrackShipment(ctx context.Context, waybill string) (*carrier.Result, error) {
	return &carrier.Result{Success: true}, nil
}

func (s *stubCarrier) RequestPickup(ctx context.Context, req *carrier.PickupRequest) (*carrier.Result, error) {
	return &carrier.Result{Success: true}, nil
}

func (s *stubCarrier) FetchWaybills(ctx context.Context, count int) ([]string, error) {
	return make([]string, count), nil
}

func newTestService(st *fakeStore, c *stubCarrier) *reconcile.Service {
	logger := otelzap.New(zap.NewNop())
	return reconcile.NewService(st, c, logger, telemetry.NewMetrics())
}

func activeWarehouse(name string) *store.Warehouse {
	return &store.Warehouse{
		Name:     name,
		VendorID: "vendor-1",
		Phone:    "9876543210",
		Pin:      "110001",
		Address:  "Addr " + name,
		Status:   store.StatusActive,
	}
}

func TestPushToCarrier_IdempotentSkip(t *testing.T) {
	st := newFakeStore()
	st.add(activeWarehouse("WH1"))
	registered := activeWarehouse("WH2")
	registered.DelhiveryResponse = &store.CarrierSnapshot{Success: true, SyncedAt: time.Now()}
	st.add(registered)
	st.add(activeWarehouse("WH3"))

	c := &stubCarrier{}
	svc := newTestService(st, c)

	report := svc.PushToCarrier(context.Background(), "")

	assert.True(t, report.Success)
	assert.Equal(t, 2, report.Registered)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	// The already-registered warehouse never reaches the carrier.
	assert.Equal(t, 2, c.createCalls)

	// A second push skips everything.
	second := svc.PushToCarrier(context.Background(), "")
	assert.Equal(t, 0, second.Registered)
	assert.Equal(t, 3, second.Skipped)
	assert.Equal(t, 2, c.createCalls)
}

func TestPushToCarrier_SingleWarehouse(t *testing.T) {
	st := newFakeStore()
	w := st.add(activeWarehouse("WH1"))

	c := &stubCarrier{}
	svc := newTestService(st, c)

	report := svc.PushToCarrier(context.Background(), w.ID.Hex())

	assert.Equal(t, 1, report.Registered)

	stored, err := st.FindByID(context.Background(), w.ID.Hex())
	require.NoError(t, err)
	require.NotNil(t, stored.DelhiveryResponse)
	assert.True(t, stored.DelhiveryResponse.Success)
	assert.Equal(t, store.StatusActive, stored.Status)
}

func TestPushToCarrier_UnknownID(t *testing.T) {
	svc := newTestService(newFakeStore(), &stubCarrier{})

	report := svc.PushToCarrier(context.Background(), primitive.NewObjectID().Hex())

	assert.False(t, report.Success)
	assert.Contains(t, report.Message, "not found")
}

func TestPushToCarrier_PartialFailure(t *testing.T) {
	st := newFakeStore()
	st.add(activeWarehouse("WH1"))
	st.add(activeWarehouse("WH2"))
	st.add(activeWarehouse("WH3"))

	c := &stubCarrier{}
	c.onCreate = func(ctx context.Context, req *carrier.WarehouseRequest) (*carrier.Result, error) {
		if req.Name == "WH2" {
			return nil, carrier.NewError("delhivery", carrier.CodeUnavailable, "down").
				WithRetryable(true)
		}
		return &carrier.Result{Success: true, WarehouseName: req.Name}, nil
	}
	svc := newTestService(st, c)

	report := svc.PushToCarrier(context.Background(), "")

	assert.Equal(t, 2, report.Registered)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "WH2")
}

func TestPushToCarrier_ConflictCountsAsRegistered(t *testing.T) {
	st := newFakeStore()
	w := st.add(activeWarehouse("WH1"))

	c := &stubCarrier{}
	c.onCreate = func(ctx context.Context, req *carrier.WarehouseRequest) (*carrier.Result, error) {
		return nil, carrier.NewError("delhivery", carrier.CodeDuplicate, "already exists").
			WithCause(carrier.ErrDuplicateWarehouse)
	}
	svc := newTestService(st, c)

	report := svc.PushToCarrier(context.Background(), "")

	// The carrier already knows the name; record it so pushes stop retrying.
	assert.Equal(t, 1, report.Registered)
	assert.Equal(t, 0, report.Failed)

	stored, err := st.FindByID(context.Background(), w.ID.Hex())
	require.NoError(t, err)
	require.NotNil(t, stored.DelhiveryResponse)
	assert.True(t, stored.DelhiveryResponse.Success)
}

func TestPullFromCarrier_HardFailOnListError(t *testing.T) {
	st := newFakeStore()
	c := &stubCarrier{
		onList: func(ctx context.Context) ([]carrier.RemoteWarehouse, error) {
			return nil, carrier.NewError("delhivery", carrier.CodeUnavailable, "unreachable").
				WithRetryable(true)
		},
	}
	svc := newTestService(st, c)

	report := svc.PullFromCarrier(context.Background())

	assert.False(t, report.Success)
	assert.Contains(t, report.Message, "unreachable")
	assert.Zero(t, report.Created)
	assert.Zero(t, report.Updated)
}

func TestPullFromCarrier_CreatesAndUpdates(t *testing.T) {
	st := newFakeStore()
	existing := activeWarehouse("WH1")
	existing.Email = "keep@example.com"
	st.add(existing)

	c := &stubCarrier{
		onList: func(ctx context.Context) ([]carrier.RemoteWarehouse, error) {
			return []carrier.RemoteWarehouse{
				// Known name, new phone, no email reported.
				{Name: "WH1", Phone: "1112223334", Pin: "110001", Active: true},
				// Unknown name without a return address.
				{Name: "WH9", Phone: "9998887776", Pin: "560001", Address: "Remote Addr",
					City: "Bangalore", State: "KA", Country: "India", Active: false},
			}, nil
		},
	}
	svc := newTestService(st, c)

	report := svc.PullFromCarrier(context.Background())

	assert.True(t, report.Success)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 0, report.Failed)

	updated, err := st.FindByName(context.Background(), "WH1")
	require.NoError(t, err)
	assert.Equal(t, "1112223334", updated.Phone)
	// An absent carrier field never clears local data.
	assert.Equal(t, "keep@example.com", updated.Email)

	created, err := st.FindByName(context.Background(), "WH9")
	require.NoError(t, err)
	assert.Equal(t, store.VendorAdmin, created.VendorID)
	assert.Equal(t, "system", created.CreatedBy)
	assert.Equal(t, store.StatusPending, created.Status)
	// Missing return block defaults to the forward address.
	assert.Equal(t, "Remote Addr", created.ReturnAddress)
	assert.Equal(t, "Bangalore", created.ReturnCity)
}

func TestPullFromCarrier_PartialFailureIsolation(t *testing.T) {
	st := newFakeStore()
	st.createErr = func(name string) error {
		if name == "WH2" {
			return fmt.Errorf("insert blew up")
		}
		return nil
	}

	c := &stubCarrier{
		onList: func(ctx context.Context) ([]carrier.RemoteWarehouse, error) {
			return []carrier.RemoteWarehouse{
				{Name: "WH1", Active: true},
				{Name: "WH2", Active: true},
				{Name: "WH3", Active: true},
			}, nil
		},
	}
	svc := newTestService(st, c)

	report := svc.PullFromCarrier(context.Background())

	// One bad record must not block the rest.
	assert.True(t, report.Success)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "WH2")

	_, err := st.FindByName(context.Background(), "WH3")
	assert.NoError(t, err)
}

func TestFullSync_CombinesBothDirections(t *testing.T) {
	st := newFakeStore()
	st.add(activeWarehouse("LOCAL1"))

	c := &stubCarrier{
		onList: func(ctx context.Context) ([]carrier.RemoteWarehouse, error) {
			return []carrier.RemoteWarehouse{{Name: "REMOTE1", Active: true}}, nil
		},
	}
	svc := newTestService(st, c)

	report := svc.FullSync(context.Background())

	assert.True(t, report.Success)
	// Pull creates the remote record locally as active; push then registers
	// both active warehouses since neither carries a snapshot yet.
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 2, report.Registered)
}

func TestFullSync_ConvergesWithStatefulCarrier(t *testing.T) {
	st := newFakeStore()
	st.add(activeWarehouse("LOCAL1"))

	mc := mock.New("delhivery")
	_, err := mc.CreateWarehouse(context.Background(), &carrier.WarehouseRequest{
		Name: "REMOTE1", Phone: "9998887776", Pin: "560001", Address: "Remote Addr",
	})
	require.NoError(t, err)

	logger := otelzap.New(zap.NewNop())
	svc := reconcile.NewService(st, mc, logger, telemetry.NewMetrics())

	first := svc.FullSync(context.Background())

	assert.True(t, first.Success)
	assert.Equal(t, 1, first.Created)
	// LOCAL1 registers cleanly; REMOTE1 hits the duplicate path and is
	// recorded as registered without an error.
	assert.Equal(t, 2, first.Registered)
	assert.Equal(t, 0, first.Failed)

	remote, err := mc.ListWarehouses(context.Background())
	require.NoError(t, err)
	assert.Len(t, remote, 2)

	// A second pass finds nothing left to do.
	second := svc.FullSync(context.Background())
	assert.True(t, second.Success)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Registered)
	assert.Equal(t, 2, second.Skipped)
}

func TestFullSync_PushRunsDespitePullFailure(t *testing.T) {
	st := newFakeStore()
	st.add(activeWarehouse("LOCAL1"))

	c := &stubCarrier{
		onList: func(ctx context.Context) ([]carrier.RemoteWarehouse, error) {
			return nil, errors.New("list broken")
		},
	}
	svc := newTestService(st, c)

	report := svc.FullSync(context.Background())

	assert.False(t, report.Success)
	assert.Equal(t, 1, report.Registered)
}
