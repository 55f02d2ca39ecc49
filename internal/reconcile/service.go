// Package reconcile keeps the local warehouse store and the carrier's
// warehouse registry consistent with each other.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/shopkart/fulfillment/internal/store"
	"github.com/shopkart/fulfillment/internal/telemetry"
	"github.com/shopkart/fulfillment/pkg/carrier"
)

// Store is the slice of the warehouse repository the reconciler needs.
// *store.WarehouseStore satisfies it; tests substitute an in-memory fake.
type Store interface {
	FindByID(ctx context.Context, id string) (*store.Warehouse, error)
	FindByName(ctx context.Context, name string) (*store.Warehouse, error)
	FindActive(ctx context.Context) ([]store.Warehouse, error)
	Create(ctx context.Context, w *store.Warehouse) error
	UpdateFields(ctx context.Context, id primitive.ObjectID, fields bson.M) error
	SaveCarrierSnapshot(ctx context.Context, id primitive.ObjectID, snap *store.CarrierSnapshot, status store.Status) error
	Stats(ctx context.Context) (*store.SyncStats, error)
}

// Service reconciles the two independently-mutable warehouse stores. Every
// operation returns a Report; failures on individual warehouses are folded
// into the report instead of aborting the loop. The only hard failure is the
// carrier's list endpoint being unreachable during a pull.
type Service struct {
	store   Store
	carrier carrier.Carrier
	logger  *otelzap.Logger
	metrics *telemetry.Metrics

	// locks serializes push attempts per warehouse name so two concurrent
	// sync-to-carrier calls cannot both register the same warehouse.
	locks keyedMutex
}

// NewService creates a reconciliation service.
func NewService(st Store, c carrier.Carrier, logger *otelzap.Logger, metrics *telemetry.Metrics) *Service {
	return &Service{
		store:   st,
		carrier: c,
		logger:  logger,
		metrics: metrics,
	}
}

// PullFromCarrier performs the carrier -> local direction. Remote records are
// matched to local ones by name alone, mirroring the carrier's flat
// namespace. One bad record must not block syncing the rest.
func (s *Service) PullFromCarrier(ctx context.Context) *Report {
	report := newReport()

	remote, err := s.carrier.ListWarehouses(ctx)
	if err != nil {
		s.logger.Error("Carrier warehouse list unavailable", zap.Error(err))
		s.metrics.RecordCarrierError(errorCode(err))
		report.Success = false
		report.Message = fmt.Sprintf("failed to fetch carrier warehouses: %v", err)
		return report
	}

	for _, rw := range remote {
		created, err := s.applyRemote(ctx, rw)
		if err != nil {
			s.logger.Warn("Skipping carrier warehouse after error",
				zap.String("warehouse", rw.Name),
				zap.Error(err),
			)
			report.addError(rw.Name, err)
			s.metrics.RecordSyncItem("pull", "failed")
			continue
		}

		if created {
			report.Created++
			s.metrics.RecordSyncItem("pull", "created")
		} else {
			report.Updated++
			s.metrics.RecordSyncItem("pull", "updated")
		}
	}

	report.Success = true
	report.Message = fmt.Sprintf("pulled %d warehouses from carrier", len(remote))
	return report
}

// applyRemote upserts one carrier record into the local store. The returned
// bool reports whether a new local record was created.
func (s *Service) applyRemote(ctx context.Context, rw carrier.RemoteWarehouse) (bool, error) {
	local, err := s.store.FindByName(ctx, rw.Name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return true, s.store.Create(ctx, newLocalFromRemote(rw))
	case err != nil:
		return false, err
	}

	// Overwrite mutable fields the carrier actually reported. An absent
	// carrier field must never null out local data.
	fields := bson.M{}
	setIfPresent(fields, "phone", rw.Phone)
	setIfPresent(fields, "email", rw.Email)
	setIfPresent(fields, "registeredName", rw.RegisteredName)
	setIfPresent(fields, "address", rw.Address)
	setIfPresent(fields, "city", rw.City)
	setIfPresent(fields, "pin", rw.Pin)
	setIfPresent(fields, "state", rw.State)
	setIfPresent(fields, "country", rw.Country)
	setIfPresent(fields, "return_address", rw.ReturnAddress)
	setIfPresent(fields, "return_city", rw.ReturnCity)
	setIfPresent(fields, "return_pin", rw.ReturnPin)
	setIfPresent(fields, "return_state", rw.ReturnState)
	setIfPresent(fields, "return_country", rw.ReturnCountry)
	fields["status"] = string(statusFromActive(rw.Active))

	return false, s.store.UpdateFields(ctx, local.ID, fields)
}

// PushToCarrier performs the local -> carrier direction. With a warehouseID
// it targets that single record, otherwise every active warehouse. A
// warehouse that already carries a successful carrier snapshot is skipped;
// that guard is what makes repeated pushes idempotent.
func (s *Service) PushToCarrier(ctx context.Context, warehouseID string) *Report {
	report := newReport()

	var targets []store.Warehouse
	if warehouseID != "" {
		w, err := s.store.FindByID(ctx, warehouseID)
		if err != nil {
			report.Success = false
			report.Message = fmt.Sprintf("warehouse %s: %v", warehouseID, err)
			return report
		}
		targets = []store.Warehouse{*w}
	} else {
		var err error
		targets, err = s.store.FindActive(ctx)
		if err != nil {
			report.Success = false
			report.Message = fmt.Sprintf("failed to load local warehouses: %v", err)
			return report
		}
	}

	// Outbound carrier calls stay sequential to respect carrier-side rate
	// limits; the per-name lock protects against concurrent pushes from
	// other requests.
	for i := range targets {
		w := &targets[i]
		s.pushOne(ctx, w, report)
	}

	report.Success = true
	report.Message = fmt.Sprintf("registered %d, skipped %d, failed %d",
		report.Registered, report.Skipped, report.Failed)
	return report
}

func (s *Service) pushOne(ctx context.Context, w *store.Warehouse, report *Report) {
	unlock := s.locks.lock(w.Name)
	defer unlock()

	// Re-read under the lock; a concurrent push may have registered it.
	if current, err := s.store.FindByID(ctx, w.ID.Hex()); err == nil {
		w = current
	}

	if w.Registered() {
		report.Skipped++
		s.metrics.RecordSyncItem("push", "skipped")
		return
	}

	result, err := s.carrier.CreateWarehouse(ctx, registrationRequest(w))
	switch {
	case carrier.IsConflict(err):
		// The carrier already knows this name. Record the registration so
		// future pushes skip it instead of retrying forever.
		result = &carrier.Result{
			Success:       true,
			Message:       "already registered with carrier",
			WarehouseName: w.Name,
		}
	case err != nil:
		s.metrics.RecordCarrierError(errorCode(err))
		s.metrics.RecordSyncItem("push", "failed")
		report.addError(w.Name, err)
		return
	case !result.Success:
		s.metrics.RecordSyncItem("push", "failed")
		report.addError(w.Name, fmt.Errorf("carrier rejected registration: %s", result.Message))
		return
	}

	snap := &store.CarrierSnapshot{
		Success:  result.Success,
		Message:  result.Message,
		Data:     result.Data,
		SyncedAt: now(),
	}
	if err := s.store.SaveCarrierSnapshot(ctx, w.ID, snap, store.StatusActive); err != nil {
		report.addError(w.Name, fmt.Errorf("saving carrier snapshot: %w", err))
		s.metrics.RecordSyncItem("push", "failed")
		return
	}

	report.Registered++
	s.metrics.RecordSyncItem("push", "registered")
}

// FullSync runs the pull direction then the push direction and returns the
// combined totals. The push runs regardless of the pull's outcome; this is
// best-effort reconciliation, not a transaction, and there is no rollback.
func (s *Service) FullSync(ctx context.Context) *Report {
	pull := s.PullFromCarrier(ctx)
	push := s.PushToCarrier(ctx, "")

	combined := newReport()
	combined.merge(pull)
	combined.merge(push)
	combined.Success = pull.Success && push.Success
	combined.Message = fmt.Sprintf("full sync: created %d, updated %d, registered %d, skipped %d, failed %d",
		combined.Created, combined.Updated, combined.Registered, combined.Skipped, combined.Failed)
	return combined
}

// Stats exposes the aggregate dashboard counts.
func (s *Service) Stats(ctx context.Context) (*store.SyncStats, error) {
	return s.store.Stats(ctx)
}

// ============================================================================
// Helpers
// ============================================================================

func newLocalFromRemote(rw carrier.RemoteWarehouse) *store.Warehouse {
	w := &store.Warehouse{
		Name:           rw.Name,
		VendorID:       store.VendorAdmin,
		RegisteredName: rw.RegisteredName,
		Phone:          rw.Phone,
		Email:          rw.Email,
		Address:        rw.Address,
		City:           rw.City,
		Pin:            rw.Pin,
		State:          rw.State,
		Country:        rw.Country,
		ReturnAddress:  rw.ReturnAddress,
		ReturnCity:     rw.ReturnCity,
		ReturnPin:      rw.ReturnPin,
		ReturnState:    rw.ReturnState,
		ReturnCountry:  rw.ReturnCountry,
		Status:         statusFromActive(rw.Active),
		CreatedBy:      "system",
	}

	// The carrier may omit the reverse-logistics block; default it to the
	// forward address.
	if w.ReturnAddress == "" {
		w.ReturnAddress = w.Address
		w.ReturnCity = w.City
		w.ReturnPin = w.Pin
		w.ReturnState = w.State
		w.ReturnCountry = w.Country
	}
	return w
}

func registrationRequest(w *store.Warehouse) *carrier.WarehouseRequest {
	return &carrier.WarehouseRequest{
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
	}
}

func statusFromActive(active bool) store.Status {
	if active {
		return store.StatusActive
	}
	return store.StatusPending
}

func setIfPresent(fields bson.M, key, value string) {
	if value != "" {
		fields[key] = value
	}
}

// now is a hook for tests.
var now = time.Now

func errorCode(err error) string {
	var carrierErr *carrier.Error
	if errors.As(err, &carrierErr) {
		return carrierErr.Code
	}
	return "unknown"
}

// keyedMutex hands out one mutex per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
