package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shopkart/fulfillment/internal/shipment"
	"github.com/shopkart/fulfillment/pkg/carrier"
)

func (s *Server) handleCreateShipment(c *gin.Context) {
	var req shipment.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusUnprocessableEntity, carrier.CodeValidation, err.Error())
		return
	}

	result, err := s.shipments.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusCreated
	if !result.Success {
		// The carrier accepted the call but rejected some or all packages;
		// the per-package remarks are in the result data.
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}

func (s *Server) handleTrackShipment(c *gin.Context) {
	result, err := s.shipments.Track(c.Request.Context(), c.Param("waybill"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleSchedulePickup(c *gin.Context) {
	var req shipment.PickupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusUnprocessableEntity, carrier.CodeValidation, err.Error())
		return
	}

	result, err := s.shipments.SchedulePickup(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) handleReserveWaybills(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "1"))
	if err != nil {
		abortError(c, http.StatusUnprocessableEntity, carrier.CodeValidation, "count must be an integer")
		return
	}

	waybills, err := s.shipments.ReserveWaybills(c.Request.Context(), count)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"count":    len(waybills),
		"waybills": waybills,
	})
}
