// Package shipment builds carrier manifests out of caller-facing shipment
// requests and routes them through the configured carrier.
package shipment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/shopkart/fulfillment/internal/store"
	"github.com/shopkart/fulfillment/internal/telemetry"
	"github.com/shopkart/fulfillment/pkg/carrier"
)

// Kind tags the shipment flavor. The flavor decides the carrier payment mode
// and, for mps, the multi-package linkage.
type Kind string

// defaultPickupTime is the slot the carrier assumes when the caller does not
// pick one.
const defaultPickupTime = "11:00:00"

const (
	KindForwardCOD     Kind = "forward-cod"
	KindForwardPrepaid Kind = "forward-prepaid"
	KindReverse        Kind = "reverse"
	KindReplacement    Kind = "replacement"
	KindMPS            Kind = "mps"
)

// Package is one physical package in a shipment request.
type Package struct {
	OrderID       string  `json:"orderId" validate:"required"`
	ConsigneeName string  `json:"consigneeName" validate:"required"`
	Address       string  `json:"address" validate:"required"`
	City          string  `json:"city"`
	Pin           string  `json:"pin" validate:"required,len=6,numeric"`
	State         string  `json:"state"`
	Country       string  `json:"country"`
	Phone         string  `json:"phone" validate:"required,min=10,max=13"`

	CODAmount     float64 `json:"codAmount" validate:"gte=0"`
	ProductsDesc  string  `json:"productsDesc"`
	DeclaredValue float64 `json:"declaredValue" validate:"gte=0"`

	Weight   float64 `json:"weight" validate:"gt=0"`
	Quantity int     `json:"quantity" validate:"gt=0"`
	Length   float64 `json:"length" validate:"gte=0"`
	Breadth  float64 `json:"breadth" validate:"gte=0"`
	Height   float64 `json:"height" validate:"gte=0"`

	FragileShipment bool `json:"fragileShipment"`
	DangerousGood   bool `json:"dangerousGood"`
}

// Request is a caller-facing shipment creation request. PickupLocation names
// a local warehouse that must already be registered with the carrier.
type Request struct {
	Kind           Kind      `json:"kind" validate:"required"`
	PickupLocation string    `json:"pickupLocation" validate:"required"`
	Packages       []Package `json:"packages" validate:"required,min=1,dive"`
}

// PickupRequest asks the carrier to send a van to a registered warehouse.
type PickupRequest struct {
	PickupLocation string `json:"pickupLocation" validate:"required"`
	Date           string `json:"date" validate:"required"`
	Time           string `json:"time"`
	PackageCount   int    `json:"packageCount" validate:"gt=0"`
}

// WarehouseFinder is the slice of the warehouse repository the shipment
// service needs.
type WarehouseFinder interface {
	FindByName(ctx context.Context, name string) (*store.Warehouse, error)
}

// Service validates shipment requests and submits them as carrier manifests.
type Service struct {
	warehouses WarehouseFinder
	carrier    carrier.Carrier
	logger     *otelzap.Logger
	metrics    *telemetry.Metrics
	validate   *validator.Validate
}

// NewService creates a shipment service.
func NewService(warehouses WarehouseFinder, c carrier.Carrier, logger *otelzap.Logger, metrics *telemetry.Metrics) *Service {
	return &Service{
		warehouses: warehouses,
		carrier:    c,
		logger:     logger,
		metrics:    metrics,
		validate:   validator.New(),
	}
}

// Create validates the request and submits a single manifest call to the
// carrier. Validation failures never reach the carrier. The caller's OrderID
// values pass through untouched; they are the carrier-side idempotency keys.
func (s *Service) Create(ctx context.Context, req *Request) (*carrier.Result, error) {
	if err := s.preflight(ctx, req); err != nil {
		return nil, err
	}

	creq := &carrier.ShipmentRequest{
		PickupLocation: req.PickupLocation,
		Packages:       make([]carrier.ShipmentPackage, 0, len(req.Packages)),
	}

	mode := paymentMode(req.Kind, req.Packages)

	// MPS packages travel as one manifest sharing a master id; the carrier
	// links the children to a single parent waybill.
	var masterID string
	var children int
	if req.Kind == KindMPS {
		masterID = uuid.NewString()
		children = len(req.Packages)
	}

	for _, p := range req.Packages {
		creq.Packages = append(creq.Packages, carrier.ShipmentPackage{
			OrderID:         p.OrderID,
			ConsigneeName:   p.ConsigneeName,
			Address:         p.Address,
			City:            p.City,
			Pin:             p.Pin,
			State:           p.State,
			Country:         p.Country,
			Phone:           p.Phone,
			PaymentMode:     mode,
			CODAmount:       codAmount(mode, p.CODAmount),
			ProductsDesc:    p.ProductsDesc,
			DeclaredValue:   p.DeclaredValue,
			Weight:          p.Weight,
			Quantity:        p.Quantity,
			Length:          p.Length,
			Breadth:         p.Breadth,
			Height:          p.Height,
			FragileShipment: p.FragileShipment,
			DangerousGood:   p.DangerousGood,
			MasterID:        masterID,
			MPSChildren:     children,
		})
	}

	result, err := s.carrier.CreateShipment(ctx, creq)
	if err != nil {
		s.metrics.RecordCarrierError(carrierErrorCode(err))
		s.logger.Error("Shipment creation failed",
			zap.String("kind", string(req.Kind)),
			zap.String("pickup", req.PickupLocation),
			zap.Int("packages", len(req.Packages)),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("Shipment manifest submitted",
		zap.String("kind", string(req.Kind)),
		zap.String("pickup", req.PickupLocation),
		zap.Int("packages", len(req.Packages)),
		zap.Bool("success", result.Success),
	)
	return result, nil
}

// Track fetches tracking detail for one waybill.
func (s *Service) Track(ctx context.Context, waybill string) (*carrier.Result, error) {
	if waybill == "" {
		return nil, carrier.NewError(s.carrier.Name(), carrier.CodeValidation,
			"waybill is required").WithCause(carrier.ErrValidationFailed)
	}
	result, err := s.carrier.TrackShipment(ctx, waybill)
	if err != nil {
		s.metrics.RecordCarrierError(carrierErrorCode(err))
		return nil, err
	}
	return result, nil
}

// SchedulePickup validates and forwards a pickup request. The pickup
// location must be a locally known, carrier-registered warehouse.
func (s *Service) SchedulePickup(ctx context.Context, req *PickupRequest) (*carrier.Result, error) {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return nil, validationError(s.carrier.Name(),
				fmt.Sprintf("field %s failed %s validation", f.Field(), f.Tag()))
		}
		return nil, validationError(s.carrier.Name(), err.Error())
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return nil, validationError(s.carrier.Name(), "date must be YYYY-MM-DD")
	}
	if req.Time == "" {
		req.Time = defaultPickupTime
	}

	w, err := s.warehouses.FindByName(ctx, req.PickupLocation)
	if errors.Is(err, store.ErrNotFound) {
		return nil, validationError(s.carrier.Name(),
			fmt.Sprintf("pickup location %q does not exist", req.PickupLocation))
	}
	if err != nil {
		return nil, fmt.Errorf("looking up pickup location: %w", err)
	}
	if !w.Registered() {
		return nil, validationError(s.carrier.Name(),
			fmt.Sprintf("pickup location %q is not registered with the carrier", req.PickupLocation))
	}

	result, err := s.carrier.RequestPickup(ctx, &carrier.PickupRequest{
		PickupLocation: req.PickupLocation,
		Date:           req.Date,
		Time:           req.Time,
		PackageCount:   req.PackageCount,
	})
	if err != nil {
		s.metrics.RecordCarrierError(carrierErrorCode(err))
		s.logger.Error("Pickup scheduling failed",
			zap.String("pickup", req.PickupLocation),
			zap.String("date", req.Date),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("Pickup scheduled",
		zap.String("pickup", req.PickupLocation),
		zap.String("date", req.Date),
		zap.Int("packages", req.PackageCount),
	)
	return result, nil
}

// ReserveWaybills reserves a batch of waybill numbers from the carrier.
func (s *Service) ReserveWaybills(ctx context.Context, count int) ([]string, error) {
	if count < 1 || count > 500 {
		return nil, carrier.NewError(s.carrier.Name(), carrier.CodeValidation,
			"count must be between 1 and 500").WithCause(carrier.ErrValidationFailed)
	}
	waybills, err := s.carrier.FetchWaybills(ctx, count)
	if err != nil {
		s.metrics.RecordCarrierError(carrierErrorCode(err))
		return nil, err
	}
	return waybills, nil
}

// preflight rejects malformed requests before any carrier traffic happens.
func (s *Service) preflight(ctx context.Context, req *Request) error {
	switch req.Kind {
	case KindForwardCOD, KindForwardPrepaid, KindReverse, KindReplacement, KindMPS:
	default:
		return validationError(s.carrier.Name(), fmt.Sprintf("unknown shipment kind %q", req.Kind))
	}

	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return validationError(s.carrier.Name(),
				fmt.Sprintf("field %s failed %s validation", f.Field(), f.Tag()))
		}
		return validationError(s.carrier.Name(), err.Error())
	}

	if req.Kind == KindForwardCOD {
		for _, p := range req.Packages {
			if p.CODAmount <= 0 {
				return validationError(s.carrier.Name(),
					fmt.Sprintf("order %s: codAmount must be positive for COD shipments", p.OrderID))
			}
		}
	}
	if req.Kind == KindMPS && len(req.Packages) < 2 {
		return validationError(s.carrier.Name(), "mps shipments need at least two packages")
	}

	w, err := s.warehouses.FindByName(ctx, req.PickupLocation)
	if errors.Is(err, store.ErrNotFound) {
		return validationError(s.carrier.Name(),
			fmt.Sprintf("pickup location %q does not exist", req.PickupLocation))
	}
	if err != nil {
		return fmt.Errorf("looking up pickup location: %w", err)
	}
	if !w.Registered() {
		return validationError(s.carrier.Name(),
			fmt.Sprintf("pickup location %q is not registered with the carrier", req.PickupLocation))
	}
	return nil
}

// paymentMode derives the carrier payment mode from the shipment kind. MPS
// manifests are prepaid unless the packages carry a COD amount.
func paymentMode(kind Kind, packages []Package) carrier.PaymentMode {
	switch kind {
	case KindForwardCOD:
		return carrier.PaymentCOD
	case KindReverse:
		return carrier.PaymentPickup
	case KindReplacement:
		return carrier.PaymentReplacement
	case KindMPS:
		for _, p := range packages {
			if p.CODAmount > 0 {
				return carrier.PaymentCOD
			}
		}
		return carrier.PaymentPrepaid
	default:
		return carrier.PaymentPrepaid
	}
}

// codAmount zeroes the COD amount on modes where the carrier rejects it.
func codAmount(mode carrier.PaymentMode, amount float64) float64 {
	if mode == carrier.PaymentCOD {
		return amount
	}
	return 0
}

func validationError(carrierName, message string) error {
	return carrier.NewError(carrierName, carrier.CodeValidation, message).
		WithCause(carrier.ErrValidationFailed)
}

func carrierErrorCode(err error) string {
	var cerr *carrier.Error
	if errors.As(err, &cerr) {
		return cerr.Code
	}
	return "unknown"
}
