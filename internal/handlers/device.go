package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/crewops/backend/internal/middleware"
	"github.com/crewops/backend/internal/models"
	"github.com/crewops/backend/internal/store"
)

// DeviceHandler handles device endpoint registration and preferences
type DeviceHandler struct {
	devices *store.DeviceStore
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(devices *store.DeviceStore) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

// RegisterRequest represents a device registration request
type RegisterRequest struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

// Register registers a push token for the authenticated worker. Registering a
// token that already exists reclaims it for this worker and reactivates it.
func (h *DeviceHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Token is required",
		})
	}

	platform := models.DevicePlatform(req.Platform)
	if platform != models.PlatformAndroid && platform != models.PlatformIOS {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Platform must be android or ios",
		})
	}

	device := models.DeviceEndpoint{
		WorkerID:    middleware.GetCurrentUserID(c),
		Token:       req.Token,
		Platform:    platform,
		Active:      true,
		AllowHigh:   true,
		AllowNormal: true,
		AllowLow:    true,
	}

	if err := h.devices.Register(&device); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to register device",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    device,
	})
}

// PreferencesRequest represents a delivery preferences update. Pointer fields
// distinguish "not provided" from "set to false/empty".
type PreferencesRequest struct {
	QuietHoursStart *string `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd   *string `json:"quiet_hours_end,omitempty"`
	AllowHigh       *bool   `json:"allow_high,omitempty"`
	AllowNormal     *bool   `json:"allow_normal,omitempty"`
	AllowLow        *bool   `json:"allow_low,omitempty"`
}

// UpdatePreferences changes delivery preferences on one of the worker's devices
func (h *DeviceHandler) UpdatePreferences(c *fiber.Ctx) error {
	deviceID, err := c.ParamsInt("id")
	if err != nil || deviceID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid device id",
		})
	}

	var req PreferencesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	updates := map[string]interface{}{}
	if req.QuietHoursStart != nil {
		updates["quiet_hours_start"] = *req.QuietHoursStart
	}
	if req.QuietHoursEnd != nil {
		updates["quiet_hours_end"] = *req.QuietHoursEnd
	}
	if req.AllowHigh != nil {
		updates["allow_high"] = *req.AllowHigh
	}
	if req.AllowNormal != nil {
		updates["allow_normal"] = *req.AllowNormal
	}
	if req.AllowLow != nil {
		updates["allow_low"] = *req.AllowLow
	}

	if len(updates) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "No preference changes provided",
		})
	}

	workerID := middleware.GetCurrentUserID(c)

	applied, err := h.devices.UpdatePreferences(workerID, uint(deviceID), updates)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to update preferences",
		})
	}
	if !applied {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Device not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Preferences updated",
	})
}

// Unregister deactivates one of the worker's devices so it stops receiving
// pushes. The row is kept for its delivery history.
func (h *DeviceHandler) Unregister(c *fiber.Ctx) error {
	deviceID, err := c.ParamsInt("id")
	if err != nil || deviceID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid device id",
		})
	}

	workerID := middleware.GetCurrentUserID(c)

	applied, err := h.devices.UpdatePreferences(workerID, uint(deviceID), map[string]interface{}{
		"active": false,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to unregister device",
		})
	}
	if !applied {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Device not found",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Device unregistered",
	})
}
