package handlers

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/crewops/backend/internal/middleware"
	"github.com/crewops/backend/internal/services"
)

// maxSyncBatch caps how many updates one sync request may carry
const maxSyncBatch = 500

// SyncHandler handles offline sync requests from mobile clients
type SyncHandler struct {
	sync *services.SyncService
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(s *services.SyncService) *SyncHandler {
	return &SyncHandler{sync: s}
}

// SyncRequest is a batch of offline status updates
type SyncRequest struct {
	Updates []services.SyncUpdate `json:"updates"`
}

// ReadReceiptRequest is a batch of offline read receipts
type ReadReceiptRequest struct {
	Receipts []services.ReadReceipt `json:"receipts"`
}

// Reconcile applies a batch of offline status updates for the authenticated
// worker and returns per-item outcomes plus conflict resolutions
func (h *SyncHandler) Reconcile(c *fiber.Ctx) error {
	var req SyncRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if len(req.Updates) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "No updates provided",
		})
	}
	if len(req.Updates) > maxSyncBatch {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Too many updates in one batch",
		})
	}

	workerID := middleware.GetCurrentUserID(c)
	batchID := uuid.New().String()

	result := h.sync.Reconcile(workerID, req.Updates)

	log.Printf("Sync: Batch %s for worker %d: %d processed, %d conflicts, %d failed",
		batchID, workerID, result.Processed, result.Conflicts, result.Failed)

	return c.JSON(fiber.Map{
		"success":  true,
		"batch_id": batchID,
		"data":     result,
	})
}

// MarkRead applies a batch of offline read receipts
func (h *SyncHandler) MarkRead(c *fiber.Ctx) error {
	var req ReadReceiptRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if len(req.Receipts) == 0 || len(req.Receipts) > maxSyncBatch {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Receipts must contain between 1 and 500 items",
		})
	}

	workerID := middleware.GetCurrentUserID(c)
	result := h.sync.MarkRead(workerID, req.Receipts)

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}

// Changes returns the worker's notifications modified after the since
// watermark, so clients can pull server-side changes after reconnecting
func (h *SyncHandler) Changes(c *fiber.Ctx) error {
	sinceParam := c.Query("since", "")
	if sinceParam == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "since query parameter is required",
		})
	}

	since, err := time.Parse(time.RFC3339, sinceParam)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "since must be an RFC3339 timestamp",
		})
	}

	workerID := middleware.GetCurrentUserID(c)

	notifications, err := h.sync.GetChangesSince(workerID, since)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch changes",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    notifications,
		"meta": fiber.Map{
			"count": len(notifications),
			"since": since,
		},
	})
}
