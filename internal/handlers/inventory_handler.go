package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/booking-core/internal/models"
)

// SeatInventory is the part of the inventory service exposed over HTTP
type SeatInventory interface {
	LockSeats(ctx context.Context, caller models.Caller, tripID string, seatIDs []string) (*models.LockSeatsResponse, error)
	ReleaseSeats(ctx context.Context, caller models.Caller, tripID string, seatIDs []string) (int, error)
}

// InventoryHandler handles seat hold endpoints
type InventoryHandler struct {
	inventory SeatInventory
	logger    *logrus.Logger
}

// NewInventoryHandler creates a new InventoryHandler
func NewInventoryHandler(inventory SeatInventory, logger *logrus.Logger) *InventoryHandler {
	return &InventoryHandler{inventory: inventory, logger: logger}
}

// LockSeats places a timed hold on seats
// POST /api/v1/trips/:trip_id/locks
func (h *InventoryHandler) LockSeats(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	tripID, ok := requiredParam(c, "trip_id")
	if !ok {
		return
	}

	var req models.LockSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	lock, err := h.inventory.LockSeats(c.Request.Context(), caller, tripID, req.SeatIDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, lock)
}

// ReleaseSeats drops held seats back to the pool. Sold seats are untouched.
// DELETE /api/v1/trips/:trip_id/locks
func (h *InventoryHandler) ReleaseSeats(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		return
	}
	tripID, ok := requiredParam(c, "trip_id")
	if !ok {
		return
	}

	var req models.ReleaseSeatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	released, err := h.inventory.ReleaseSeats(c.Request.Context(), caller, tripID, req.SeatIDs)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"released": released})
}
