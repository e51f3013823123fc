package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/crewops/backend/internal/middleware"
	"github.com/crewops/backend/internal/models"
	"github.com/crewops/backend/internal/services"
	"github.com/crewops/backend/internal/store"
)

// NotificationHandler handles notification lifecycle requests
type NotificationHandler struct {
	notifications *services.NotificationService
	sync          *services.SyncService
	escalation    *services.EscalationService
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(n *services.NotificationService, s *services.SyncService, e *services.EscalationService) *NotificationHandler {
	return &NotificationHandler{
		notifications: n,
		sync:          s,
		escalation:    e,
	}
}

// Create creates notifications for one or more recipients
func (h *NotificationHandler) Create(c *fiber.Ctx) error {
	var req services.CreateNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	// The authenticated user is always the sender
	req.SenderID = middleware.GetCurrentUserID(c)

	result, err := h.notifications.Create(&req)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Validation failed",
				"errors":  result.Errors,
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to create notifications",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}

// List returns the authenticated worker's notifications, newest first
func (h *NotificationHandler) List(c *fiber.Ctx) error {
	workerID := middleware.GetCurrentUserID(c)
	status := models.NotificationStatus(c.Query("status", ""))
	limit := c.QueryInt("limit", 50)

	notifications, err := h.notifications.GetForRecipient(workerID, status, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch notifications",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    notifications,
		"meta": fiber.Map{
			"count": len(notifications),
		},
	})
}

// MarkRead marks a notification READ for the authenticated worker. The online
// path and offline sync share the same transition rules.
func (h *NotificationHandler) MarkRead(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid notification id",
		})
	}

	workerID := middleware.GetCurrentUserID(c)
	result := h.sync.MarkRead(workerID, []services.ReadReceipt{
		{NotificationID: uint(id), Timestamp: time.Now()},
	})

	return h.singleItemResponse(c, result)
}

// Acknowledge marks a notification ACKNOWLEDGED for the authenticated worker
func (h *NotificationHandler) Acknowledge(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid notification id",
		})
	}

	workerID := middleware.GetCurrentUserID(c)
	result := h.sync.Reconcile(workerID, []services.SyncUpdate{
		{NotificationID: uint(id), Status: models.StatusAcknowledged, Timestamp: time.Now()},
	})

	return h.singleItemResponse(c, result)
}

// singleItemResponse maps a one-item sync result onto an HTTP status
func (h *NotificationHandler) singleItemResponse(c *fiber.Ctx, result *services.SyncResult) error {
	if len(result.Errors) > 0 {
		e := result.Errors[0]
		status := fiber.StatusConflict
		if e.Code == services.SyncErrNotFound {
			status = fiber.StatusNotFound
		}
		return c.Status(status).JSON(fiber.Map{
			"success": false,
			"message": e.Message,
			"code":    e.Code,
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}

// ForceEscalate escalates a notification immediately, bypassing the timeout.
// Admin only.
func (h *NotificationHandler) ForceEscalate(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid notification id",
		})
	}

	if err := h.escalation.ForceEscalate(uint(id)); err != nil {
		if errors.Is(err, services.ErrAlreadyEscalated) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"success": false,
				"message": "Notification already escalated",
			})
		}
		if errors.Is(err, store.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "Notification not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Escalation failed",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Notification escalated",
	})
}

// SweepEscalations runs one escalation sweep immediately. Admin only.
func (h *NotificationHandler) SweepEscalations(c *fiber.Ctx) error {
	escalated := h.escalation.TriggerSweep()

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"escalated": escalated,
		},
	})
}
