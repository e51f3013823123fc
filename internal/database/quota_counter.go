package database

import (
	"context"
	"fmt"
	"time"
)

const quotaKeyPrefix = "crewops:quota:"

// quotaKey builds the per-recipient daily counter key, e.g. crewops:quota:42:2026-08-31
func quotaKey(workerID uint, day time.Time) string {
	return fmt.Sprintf("%s%d:%s", quotaKeyPrefix, workerID, day.Format("2006-01-02"))
}

// IncrDailyQuota atomically increments and returns the recipient's creation
// count for the given day. The key expires at the next local midnight so
// counters reset with the calendar day.
func IncrDailyQuota(workerID uint, day time.Time) (int64, error) {
	if Redis == nil {
		return 0, fmt.Errorf("redis unavailable")
	}

	ctx := context.Background()
	key := quotaKey(workerID, day)

	count, err := Redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}

	if count == 1 {
		midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()).AddDate(0, 0, 1)
		Redis.ExpireAt(ctx, key, midnight)
	}

	return count, nil
}

// DecrDailyQuota hands back a reservation taken by IncrDailyQuota when the
// notification was rejected or its insert failed
func DecrDailyQuota(workerID uint, day time.Time) {
	if Redis == nil {
		return
	}

	ctx := context.Background()
	Redis.Decr(ctx, quotaKey(workerID, day))
}

// QuotaCounter adapts the daily quota functions to the counter interface the
// quota gate consumes
type QuotaCounter struct{}

func (QuotaCounter) Incr(workerID uint, day time.Time) (int64, error) {
	return IncrDailyQuota(workerID, day)
}

func (QuotaCounter) Decr(workerID uint, day time.Time) {
	DecrDailyQuota(workerID, day)
}

// GetDailyQuota returns the recipient's current daily creation count
func GetDailyQuota(workerID uint, day time.Time) (int64, error) {
	if Redis == nil {
		return 0, fmt.Errorf("redis unavailable")
	}

	ctx := context.Background()
	count, err := Redis.Get(ctx, quotaKey(workerID, day)).Int64()
	if err != nil {
		return 0, nil // Missing key means nothing created today
	}
	return count, nil
}
