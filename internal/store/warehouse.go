package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

const warehouseCollection = "warehouses"

// VendorAdmin is the sentinel owner for warehouses created by the platform
// itself (e.g., records pulled from the carrier).
const VendorAdmin = "admin"

// Sentinel errors surfaced by the repository.
var (
	// ErrNotFound indicates no warehouse matched the query.
	ErrNotFound = errors.New("warehouse not found")

	// ErrDuplicateName indicates a unique-index violation on (name, vendorId).
	// Storage-level duplicate-key errors are always translated to this,
	// never leaked raw.
	ErrDuplicateName = errors.New("warehouse name already in use")
)

// Status is the local lifecycle flag of a warehouse. It is not a carrier
// concept; inactive records are soft-deleted.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusPending  Status = "pending"
)

// CarrierSnapshot is the stored copy of the last normalized carrier result
// for a warehouse. A successful snapshot is the idempotence guard that keeps
// sync-to-carrier from re-registering the same warehouse.
type CarrierSnapshot struct {
	Success  bool      `bson:"success" json:"success"`
	Message  string    `bson:"message,omitempty" json:"message,omitempty"`
	Data     any       `bson:"data,omitempty" json:"data,omitempty"`
	SyncedAt time.Time `bson:"syncedAt" json:"syncedAt"`
}

// Warehouse is the local persisted warehouse record.
type Warehouse struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name     string             `bson:"name" json:"name"`
	VendorID string             `bson:"vendorId" json:"vendorId"`

	RegisteredName string `bson:"registeredName,omitempty" json:"registeredName,omitempty"`
	Phone          string `bson:"phone" json:"phone"`
	Email          string `bson:"email,omitempty" json:"email,omitempty"`

	Address string `bson:"address,omitempty" json:"address,omitempty"`
	City    string `bson:"city,omitempty" json:"city,omitempty"`
	Pin     string `bson:"pin" json:"pin"`
	State   string `bson:"state,omitempty" json:"state,omitempty"`
	Country string `bson:"country,omitempty" json:"country,omitempty"`

	ReturnAddress string `bson:"return_address,omitempty" json:"return_address,omitempty"`
	ReturnCity    string `bson:"return_city,omitempty" json:"return_city,omitempty"`
	ReturnPin     string `bson:"return_pin,omitempty" json:"return_pin,omitempty"`
	ReturnState   string `bson:"return_state,omitempty" json:"return_state,omitempty"`
	ReturnCountry string `bson:"return_country,omitempty" json:"return_country,omitempty"`

	Status    Status `bson:"status" json:"status"`
	IsDefault bool   `bson:"isDefault" json:"isDefault"`

	DelhiveryResponse *CarrierSnapshot `bson:"delhiveryResponse,omitempty" json:"delhiveryResponse,omitempty"`

	CreatedBy string    `bson:"createdBy" json:"createdBy"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Registered reports whether the warehouse already carries a successful
// carrier snapshot.
func (w *Warehouse) Registered() bool {
	return w.DelhiveryResponse != nil && w.DelhiveryResponse.Success
}

// ListQuery selects a page of warehouses. Empty fields are not filtered on.
type ListQuery struct {
	VendorID string
	Status   Status
	Search   string // matches name|city|pin, case-insensitive
	Page     int64
	Limit    int64
}

// SyncStats is the aggregate view powering GET /warehouse/sync.
type SyncStats struct {
	Total     int64       `json:"total"`
	Active    int64       `json:"active"`
	Pending   int64       `json:"pending"`
	Synced    int64       `json:"synced"`
	NeedsSync int64       `json:"needsSync"`
	Recent    []Warehouse `json:"recent"`
}

// WarehouseStore is the MongoDB-backed warehouse repository.
type WarehouseStore struct {
	coll *mongo.Collection
}

// NewWarehouseStore creates a warehouse repository on the given client.
func NewWarehouseStore(client *Client) *WarehouseStore {
	return &WarehouseStore{coll: client.Collection(warehouseCollection)}
}

// EnsureIndexes creates the uniqueness index. (name, vendorId) is unique
// while status is active or pending; soft-deleted records release the name.
func (s *WarehouseStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "name", Value: 1}, {Key: "vendorId", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"status": bson.M{"$in": bson.A{string(StatusActive), string(StatusPending)}},
				}),
		},
		{
			Keys: bson.D{{Key: "updatedAt", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("creating warehouse indexes: %w", err)
	}
	return nil
}

// Create inserts a new warehouse. Duplicate-key violations come back as
// ErrDuplicateName.
func (s *WarehouseStore) Create(ctx context.Context, w *Warehouse) error {
	now := time.Now().UTC()
	if w.ID.IsZero() {
		w.ID = primitive.NewObjectID()
	}
	if w.Status == "" {
		w.Status = StatusPending
	}
	w.CreatedAt = now
	w.UpdatedAt = now

	if _, err := s.coll.InsertOne(ctx, w); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("inserting warehouse: %w", err)
	}
	return nil
}

// FindByID fetches a warehouse by its hex id.
func (s *WarehouseStore) FindByID(ctx context.Context, id string) (*Warehouse, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

// FindByName fetches a non-deleted warehouse by name alone. The carrier
// keeps a flat name namespace, so pull-side lookups ignore vendor scoping.
func (s *WarehouseStore) FindByName(ctx context.Context, name string) (*Warehouse, error) {
	return s.findOne(ctx, bson.M{
		"name":   name,
		"status": bson.M{"$ne": string(StatusInactive)},
	})
}

// FindOne fetches a non-deleted warehouse by name and owning vendor.
func (s *WarehouseStore) FindOne(ctx context.Context, name, vendorID string) (*Warehouse, error) {
	return s.findOne(ctx, bson.M{
		"name":     name,
		"vendorId": vendorID,
		"status":   bson.M{"$ne": string(StatusInactive)},
	})
}

func (s *WarehouseStore) findOne(ctx context.Context, filter bson.M) (*Warehouse, error) {
	var w Warehouse
	err := s.coll.FindOne(ctx, filter).Decode(&w)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding warehouse: %w", err)
	}
	return &w, nil
}

// ActiveNameExists reports whether any non-deleted warehouse, regardless of
// vendor, holds the name. Creation checks this before calling the carrier
// because the carrier treats name as its primary key.
func (s *WarehouseStore) ActiveNameExists(ctx context.Context, name string) (bool, error) {
	count, err := s.coll.CountDocuments(ctx, bson.M{
		"name":   name,
		"status": bson.M{"$ne": string(StatusInactive)},
	})
	if err != nil {
		return false, fmt.Errorf("counting warehouses: %w", err)
	}
	return count > 0, nil
}

// List returns a page of warehouses and the total match count.
func (s *WarehouseStore) List(ctx context.Context, q ListQuery) ([]Warehouse, int64, error) {
	filter := bson.M{}
	if q.VendorID != "" {
		filter["vendorId"] = q.VendorID
	}
	if q.Status != "" {
		filter["status"] = string(q.Status)
	}
	if q.Search != "" {
		regex := primitive.Regex{Pattern: q.Search, Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"name": regex},
			bson.M{"city": regex},
			bson.M{"pin": regex},
		}
	}

	total, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("counting warehouses: %w", err)
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit < 1 {
		limit = 20
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("listing warehouses: %w", err)
	}
	defer cursor.Close(ctx)

	var items []Warehouse
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, fmt.Errorf("decoding warehouses: %w", err)
	}
	return items, total, nil
}

// FindActive returns all active warehouses.
func (s *WarehouseStore) FindActive(ctx context.Context) ([]Warehouse, error) {
	cursor, err := s.coll.Find(ctx, bson.M{"status": string(StatusActive)})
	if err != nil {
		return nil, fmt.Errorf("finding active warehouses: %w", err)
	}
	defer cursor.Close(ctx)

	var items []Warehouse
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("decoding warehouses: %w", err)
	}
	return items, nil
}

// UpdateFields applies a partial update and bumps updatedAt.
func (s *WarehouseStore) UpdateFields(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	fields["updatedAt"] = time.Now().UTC()
	res, err := s.coll.UpdateByID(ctx, id, bson.M{"$set": fields})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("updating warehouse: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveCarrierSnapshot stores the last normalized carrier result and moves
// the warehouse to the given status.
func (s *WarehouseStore) SaveCarrierSnapshot(ctx context.Context, id primitive.ObjectID, snap *CarrierSnapshot, status Status) error {
	return s.UpdateFields(ctx, id, bson.M{
		"delhiveryResponse": snap,
		"status":            string(status),
	})
}

// Deactivate soft-deletes by id or, when id is empty, by name.
func (s *WarehouseStore) Deactivate(ctx context.Context, id, name string) error {
	filter := bson.M{}
	switch {
	case id != "":
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			return ErrNotFound
		}
		filter["_id"] = oid
	case name != "":
		filter["name"] = name
	default:
		return ErrNotFound
	}

	res, err := s.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"status":    string(StatusInactive),
		"updatedAt": time.Now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("deactivating warehouse: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Stats aggregates the counts shown on the sync dashboard plus the five most
// recently updated warehouses. The counts are independent reads and run
// concurrently.
func (s *WarehouseStore) Stats(ctx context.Context) (*SyncStats, error) {
	stats := &SyncStats{}

	counts := []struct {
		dest   *int64
		filter bson.M
		what   string
	}{
		{&stats.Total, bson.M{}, "warehouses"},
		{&stats.Active, bson.M{"status": string(StatusActive)}, "active warehouses"},
		{&stats.Pending, bson.M{"status": string(StatusPending)}, "pending warehouses"},
		{&stats.Synced, bson.M{"delhiveryResponse.success": true}, "synced warehouses"},
		{&stats.NeedsSync, bson.M{
			"status":                    string(StatusActive),
			"delhiveryResponse.success": bson.M{"$ne": true},
		}, "unsynced warehouses"},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range counts {
		c := c
		g.Go(func() error {
			n, err := s.coll.CountDocuments(gctx, c.filter)
			if err != nil {
				return fmt.Errorf("counting %s: %w", c.what, err)
			}
			*c.dest = n
			return nil
		})
	}
	g.Go(func() error {
		opts := options.Find().
			SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
			SetLimit(5)
		cursor, err := s.coll.Find(gctx, bson.M{}, opts)
		if err != nil {
			return fmt.Errorf("finding recent warehouses: %w", err)
		}
		defer cursor.Close(gctx)
		if err := cursor.All(gctx, &stats.Recent); err != nil {
			return fmt.Errorf("decoding recent warehouses: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return stats, nil
}
