package database

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/crewops/backend/internal/models"
)

const (
	deviceCachePrefix = "crewops:devices:"
	deviceCacheTTL    = 2 * time.Minute // Device sets change rarely; keep the window short anyway
)

// GetCachedDevices retrieves a worker's active device endpoints from cache or returns nil
func GetCachedDevices(workerID uint) []models.DeviceEndpoint {
	if Redis == nil {
		return nil
	}

	ctx := context.Background()
	key := deviceCacheKey(workerID)

	data, err := Redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil // Cache miss
	}

	var devices []models.DeviceEndpoint
	if err := json.Unmarshal(data, &devices); err != nil {
		return nil
	}

	return devices
}

// SetCachedDevices stores a worker's active device endpoints in cache
func SetCachedDevices(workerID uint, devices []models.DeviceEndpoint) {
	if Redis == nil {
		return
	}

	ctx := context.Background()

	data, err := json.Marshal(devices)
	if err != nil {
		log.Printf("Failed to marshal devices for cache: %v", err)
		return
	}

	Redis.Set(ctx, deviceCacheKey(workerID), data, deviceCacheTTL)
}

// InvalidateDeviceCache removes a worker's device set from cache.
// Call on registration, preference change or deactivation.
func InvalidateDeviceCache(workerID uint) {
	if Redis == nil {
		return
	}

	ctx := context.Background()
	Redis.Del(ctx, deviceCacheKey(workerID))
}

func deviceCacheKey(workerID uint) string {
	return deviceCachePrefix + strconv.FormatUint(uint64(workerID), 10)
}
