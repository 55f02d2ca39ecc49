package carrier

// PaymentMode distinguishes the shipment kinds the carrier accepts.
type PaymentMode string

const (
	// PaymentCOD is a forward cash-on-delivery shipment.
	PaymentCOD PaymentMode = "COD"
	// PaymentPrepaid is a forward prepaid shipment.
	PaymentPrepaid PaymentMode = "Prepaid"
	// PaymentPickup is a reverse pickup from the customer.
	PaymentPickup PaymentMode = "Pickup"
	// PaymentReplacement is a product-exchange (REPL) shipment.
	PaymentReplacement PaymentMode = "REPL"
)

// WarehouseRequest is a carrier-neutral warehouse registration payload.
type WarehouseRequest struct {
	Name           string
	RegisteredName string
	Phone          string
	Email          string

	Address string
	City    string
	Pin     string
	State   string
	Country string

	// Reverse-logistics address. Empty fields default to the forward
	// address on the carrier side.
	ReturnAddress string
	ReturnCity    string
	ReturnPin     string
	ReturnState   string
	ReturnCountry string
}

// RemoteWarehouse is a warehouse record as reported by the carrier.
// Fields the carrier did not return stay empty; callers must not treat an
// empty field as an instruction to clear local data.
type RemoteWarehouse struct {
	Name           string
	RegisteredName string
	Phone          string
	Email          string
	Address        string
	City           string
	Pin            string
	State          string
	Country        string
	ReturnAddress  string
	ReturnCity     string
	ReturnPin      string
	ReturnState    string
	ReturnCountry  string
	Active         bool
}

// ShipmentPackage is one physical package within a shipment manifest.
type ShipmentPackage struct {
	// OrderID is the caller-supplied unique order reference. It doubles as
	// the idempotency key on the carrier side and is never rewritten once
	// constructed from caller input.
	OrderID string

	ConsigneeName string
	Address       string
	City          string
	Pin           string
	State         string
	Country       string
	Phone         string

	PaymentMode  PaymentMode
	CODAmount    float64
	ProductsDesc string
	DeclaredValue float64

	Weight   float64 // grams
	Quantity int
	Length   float64 // cm
	Breadth  float64
	Height   float64

	FragileShipment bool
	DangerousGood   bool

	// MasterID links child packages of a multi-package shipment to the
	// parent waybill. MPSChildren is the total package count in the set.
	MasterID    string
	MPSChildren int
}

// ShipmentRequest is a carrier-neutral shipment creation payload.
// PickupLocation references a warehouse by name; it must already be
// registered with the carrier.
type ShipmentRequest struct {
	PickupLocation string
	Packages       []ShipmentPackage
}

// PickupRequest schedules a carrier van visit to a registered warehouse.
type PickupRequest struct {
	// PickupLocation names the warehouse, matching its carrier registration.
	PickupLocation string
	// Date is the requested pickup day in YYYY-MM-DD.
	Date string
	// Time is the requested slot start in HH:MM:SS.
	Time string
	// PackageCount is the expected number of packages to hand over.
	PackageCount int
}

// ShipmentOutcome is the per-package outcome of a manifest submission.
type ShipmentOutcome struct {
	OrderID string `json:"order_id"`
	Waybill string `json:"waybill"`
	Status  string `json:"status"`
	Remarks string `json:"remarks,omitempty"`
}
