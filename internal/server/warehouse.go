package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/shopkart/fulfillment/internal/store"
	"github.com/shopkart/fulfillment/pkg/carrier"
)

// createWarehouseRequest is the POST /warehouse body. The carrier treats
// name as its primary key, so it is required alongside the minimum contact
// and reverse-logistics fields.
type createWarehouseRequest struct {
	Name           string `json:"name" binding:"required"`
	RegisteredName string `json:"registeredName"`
	Phone          string `json:"phone" binding:"required"`
	Email          string `json:"email"`

	Address string `json:"address"`
	City    string `json:"city"`
	Pin     string `json:"pin" binding:"required,len=6,numeric"`
	State   string `json:"state"`
	Country string `json:"country"`

	ReturnAddress string `json:"return_address" binding:"required"`
	ReturnCity    string `json:"return_city"`
	ReturnPin     string `json:"return_pin"`
	ReturnState   string `json:"return_state"`
	ReturnCountry string `json:"return_country"`

	IsDefault bool `json:"isDefault"`
}

func (s *Server) handleCreateWarehouse(c *gin.Context) {
	var req createWarehouseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusUnprocessableEntity, carrier.CodeValidation, err.Error())
		return
	}

	identity := identityFrom(c)
	vendorID := identity.VendorID
	if identity.IsAdmin() {
		vendorID = store.VendorAdmin
	}

	ctx := c.Request.Context()

	// The carrier's namespace is flat. Reject on any live local holder of
	// the name before spending a carrier call.
	exists, err := s.warehouses.ActiveNameExists(ctx, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	if exists {
		abortError(c, http.StatusConflict, carrier.CodeDuplicate,
			"warehouse name already in use")
		return
	}

	w := warehouseFromCreate(&req, vendorID)
	if err := s.warehouses.Create(ctx, w); err != nil {
		respondError(c, err)
		return
	}

	result, err := s.carrier.CreateWarehouse(ctx, warehouseRequest(w))
	if err != nil {
		s.logger.Warn("Carrier registration failed on create",
			zap.String("warehouse", w.Name),
			zap.Error(err),
		)
		// The local record stays pending; a later sync-to-carrier retries it.
		respondError(c, err)
		return
	}

	snap := &store.CarrierSnapshot{
		Success:  result.Success,
		Message:  result.Message,
		Data:     result.Data,
		SyncedAt: time.Now().UTC(),
	}
	status := store.StatusPending
	if result.Success {
		status = store.StatusActive
	}
	if err := s.warehouses.SaveCarrierSnapshot(ctx, w.ID, snap, status); err != nil {
		respondError(c, err)
		return
	}
	w.DelhiveryResponse = snap
	w.Status = status

	c.JSON(http.StatusCreated, gin.H{
		"success":   true,
		"message":   "warehouse created",
		"warehouse": w,
	})
}

func (s *Server) handleListWarehouses(c *gin.Context) {
	identity := identityFrom(c)

	q := store.ListQuery{
		Status: store.Status(c.Query("status")),
		Search: c.Query("search"),
	}
	q.Page, _ = strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	q.Limit, _ = strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)

	// Vendors only see their own warehouses; admins see everything and may
	// narrow by vendorId.
	if identity.IsAdmin() {
		q.VendorID = c.Query("vendorId")
	} else {
		q.VendorID = identity.VendorID
	}

	items, total, err := s.warehouses.List(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"warehouses": items,
		"total":      total,
		"page":       q.Page,
		"limit":      q.Limit,
	})
}

func (s *Server) handleGetWarehouse(c *gin.Context) {
	w, err := s.lookupWarehouse(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if !s.authorizeWarehouse(c, w) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "warehouse": w})
}

// updateWarehouseRequest is the PUT /warehouse/update body. Only address,
// pin, and phone are mutable; name is the carrier-side key and stays fixed
// after creation.
type updateWarehouseRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Pin     string `json:"pin" binding:"omitempty,len=6,numeric"`
	Phone   string `json:"phone"`
}

func (s *Server) handleUpdateWarehouse(c *gin.Context) {
	var req updateWarehouseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusUnprocessableEntity, carrier.CodeValidation, err.Error())
		return
	}

	ctx := c.Request.Context()

	var w *store.Warehouse
	var err error
	switch {
	case req.ID != "":
		w, err = s.warehouses.FindByID(ctx, req.ID)
	case req.Name != "":
		w, err = s.warehouses.FindByName(ctx, req.Name)
	default:
		abortError(c, http.StatusUnprocessableEntity, carrier.CodeValidation, "id or name is required")
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	if !s.authorizeWarehouse(c, w) {
		return
	}

	fields := bson.M{}
	if req.Address != "" && req.Address != w.Address {
		fields["address"] = req.Address
		w.Address = req.Address
	}
	if req.Pin != "" && req.Pin != w.Pin {
		fields["pin"] = req.Pin
		w.Pin = req.Pin
	}
	if req.Phone != "" && req.Phone != w.Phone {
		fields["phone"] = req.Phone
		w.Phone = req.Phone
	}
	if len(fields) == 0 {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "no changes detected"})
		return
	}

	if err := s.warehouses.UpdateFields(ctx, w.ID, fields); err != nil {
		respondError(c, err)
		return
	}

	// Propagate the edit to the carrier when the warehouse is registered
	// there. Local state is already committed; a carrier failure surfaces so
	// the caller knows the two sides diverged.
	if w.Registered() {
		if _, err := s.carrier.UpdateWarehouse(ctx, warehouseRequest(w)); err != nil {
			s.logger.Warn("Carrier edit failed after local update",
				zap.String("warehouse", w.Name),
				zap.Error(err),
			)
			respondError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "warehouse updated", "warehouse": w})
}

func (s *Server) handleDeleteWarehouse(c *gin.Context) {
	w, err := s.lookupWarehouse(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if !s.authorizeWarehouse(c, w) {
		return
	}

	if err := s.warehouses.Deactivate(c.Request.Context(), w.ID.Hex(), ""); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "warehouse deactivated"})
}

// syncRequest is the POST /warehouse/sync body.
type syncRequest struct {
	Action      string `json:"action" binding:"required"`
	WarehouseID string `json:"warehouseId"`
}

func (s *Server) handleSync(c *gin.Context) {
	var req syncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusUnprocessableEntity, carrier.CodeValidation, err.Error())
		return
	}

	ctx := c.Request.Context()
	var report any
	var success bool

	switch req.Action {
	case "sync-from-delhivery":
		r := s.sync.PullFromCarrier(ctx)
		report, success = r, r.Success
	case "sync-to-delhivery":
		r := s.sync.PushToCarrier(ctx, req.WarehouseID)
		report, success = r, r.Success
	case "full-sync":
		r := s.sync.FullSync(ctx)
		report, success = r, r.Success
	default:
		abortError(c, http.StatusUnprocessableEntity, carrier.CodeValidation,
			"action must be sync-from-delhivery, sync-to-delhivery, or full-sync")
		return
	}

	status := http.StatusOK
	if !success {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func (s *Server) handleSyncStats(c *gin.Context) {
	stats, err := s.sync.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

// lookupWarehouse resolves ?id= or ?name= into a warehouse record.
func (s *Server) lookupWarehouse(c *gin.Context) (*store.Warehouse, error) {
	ctx := c.Request.Context()
	if id := c.Query("id"); id != "" {
		return s.warehouses.FindByID(ctx, id)
	}
	if name := c.Query("name"); name != "" {
		return s.warehouses.FindByName(ctx, name)
	}
	return nil, store.ErrNotFound
}

// authorizeWarehouse enforces ownership: vendors may only touch their own
// records. Writes false after responding when access is denied.
func (s *Server) authorizeWarehouse(c *gin.Context, w *store.Warehouse) bool {
	identity := identityFrom(c)
	if identity.IsAdmin() || w.VendorID == identity.VendorID {
		return true
	}
	abortError(c, http.StatusForbidden, "FORBIDDEN", "warehouse belongs to another vendor")
	return false
}

func warehouseFromCreate(req *createWarehouseRequest, vendorID string) *store.Warehouse {
	w := &store.Warehouse{
		Name:           req.Name,
		VendorID:       vendorID,
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
		Status:         store.StatusPending,
		IsDefault:      req.IsDefault,
		CreatedBy:      vendorID,
	}
	if w.ReturnCity == "" {
		w.ReturnCity = w.City
	}
	if w.ReturnPin == "" {
		w.ReturnPin = w.Pin
	}
	if w.ReturnState == "" {
		w.ReturnState = w.State
	}
	if w.ReturnCountry == "" {
		w.ReturnCountry = w.Country
	}
	return w
}

func warehouseRequest(w *store.Warehouse) *carrier.WarehouseRequest {
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
