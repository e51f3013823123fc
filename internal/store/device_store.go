package store

import (
	"time"

	"gorm.io/gorm"

	"github.com/crewops/backend/internal/database"
	"github.com/crewops/backend/internal/models"
)

// DeviceStore persists device endpoints and caches per-worker device sets in Redis
type DeviceStore struct {
	db *gorm.DB
}

// NewDeviceStore creates a device store
func NewDeviceStore(db *gorm.DB) *DeviceStore {
	return &DeviceStore{db: db}
}

// FindActiveByWorker returns all active device endpoints for a worker
func (s *DeviceStore) FindActiveByWorker(workerID uint) ([]models.DeviceEndpoint, error) {
	if cached := database.GetCachedDevices(workerID); cached != nil {
		return cached, nil
	}

	var devices []models.DeviceEndpoint
	err := s.db.Where("worker_id = ? AND active = ?", workerID, true).Find(&devices).Error
	if err != nil {
		return nil, err
	}

	database.SetCachedDevices(workerID, devices)
	return devices, nil
}

// Register creates a device endpoint or reactivates an existing one for the token
func (s *DeviceStore) Register(device *models.DeviceEndpoint) error {
	var existing models.DeviceEndpoint
	err := s.db.Where("token = ?", device.Token).First(&existing).Error
	if err == nil {
		device.ID = existing.ID
		device.Active = true
		if err := s.db.Save(device).Error; err != nil {
			return err
		}
		database.InvalidateDeviceCache(existing.WorkerID)
		database.InvalidateDeviceCache(device.WorkerID)
		return nil
	}

	if err := s.db.Create(device).Error; err != nil {
		return err
	}
	database.InvalidateDeviceCache(device.WorkerID)
	return nil
}

// UpdatePreferences saves delivery preference changes for a worker's device
func (s *DeviceStore) UpdatePreferences(workerID, deviceID uint, updates map[string]interface{}) (bool, error) {
	result := s.db.Model(&models.DeviceEndpoint{}).
		Where("id = ? AND worker_id = ?", deviceID, workerID).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	database.InvalidateDeviceCache(workerID)
	return result.RowsAffected > 0, nil
}

// Deactivate retires an endpoint after a provider-confirmed permanent failure
func (s *DeviceStore) Deactivate(token string) error {
	var device models.DeviceEndpoint
	if err := s.db.Where("token = ?", token).First(&device).Error; err != nil {
		return err
	}

	err := s.db.Model(&models.DeviceEndpoint{}).
		Where("token = ?", token).
		Update("active", false).Error
	if err != nil {
		return err
	}

	database.InvalidateDeviceCache(device.WorkerID)
	return nil
}

// RecordSuccess bumps the rolling success counter for an endpoint
func (s *DeviceStore) RecordSuccess(token string) error {
	return s.db.Model(&models.DeviceEndpoint{}).
		Where("token = ?", token).
		Update("success_count", gorm.Expr("success_count + 1")).Error
}

// RecordFailure bumps the rolling failure counter and stamps the failure time
func (s *DeviceStore) RecordFailure(token string, at time.Time) error {
	return s.db.Model(&models.DeviceEndpoint{}).
		Where("token = ?", token).
		Updates(map[string]interface{}{
			"failure_count":   gorm.Expr("failure_count + 1"),
			"last_failure_at": at,
		}).Error
}
