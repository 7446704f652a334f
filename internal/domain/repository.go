package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotConfigured is returned by placeholder clients constructed in
// degraded environments where database credentials are absent.
var ErrNotConfigured = errors.New("database client not configured")

// Repository captures the read operations behind the dashboard and sync
// status views. Implementations must return errors on storage failure, never
// silently empty results.
type Repository interface {
	LatestRecovery(ctx context.Context, userID string) (*RecoveryMetrics, error)
	LatestSleep(ctx context.Context, userID string) (*SleepMetrics, error)
	RecentWorkouts(ctx context.Context, userID string, limit int) ([]WorkoutMetrics, error)
	RecoveryTrend(ctx context.Context, userID string, days int) ([]TrendPoint, error)
	SyncStatusFor(ctx context.Context, userID string, platform SourcePlatform) (*SyncStatus, error)
	AthleteSyncStatuses(ctx context.Context) ([]AthleteSyncStatus, error)
	SyncStatsByPeriod(ctx context.Context, days int) (*SyncStats, error)
}

// SyncRepository captures the write operations the sync orchestrator needs.
type SyncRepository interface {
	ListLinkedUsers(ctx context.Context, platform SourcePlatform) ([]LinkedUser, error)
	LastSyncedAt(ctx context.Context, userID string, platform SourcePlatform) (time.Time, error)
	// SaveUserBatch upserts the batch and advances sync_status in one
	// transaction, so a partially synced user never looks complete.
	SaveUserBatch(ctx context.Context, userID string, platform SourcePlatform, batch MetricBatch, syncedAt time.Time) (int, error)
	RecordSyncFailure(ctx context.Context, userID string, platform SourcePlatform, reason string) error
}

// TrendPoint is one day of the recovery trend series.
type TrendPoint struct {
	Date          time.Time `json:"date"`
	RecoveryScore float64   `json:"recovery_score"`
	HRVMilli      float64   `json:"hrv_milli"`
	RestingHR     float64   `json:"resting_heart_rate"`
}

// DashboardData is the aggregate served to an athlete's dashboard.
type DashboardData struct {
	Recovery      *RecoveryMetrics `json:"recovery"`
	Sleep         *SleepMetrics    `json:"sleep"`
	Workouts      []WorkoutMetrics `json:"workouts"`
	RecoveryTrend []TrendPoint     `json:"recovery_trend"`
	LastSyncedAt  *time.Time       `json:"last_synced_at"`
	Platform      SourcePlatform   `json:"platform"`
}

// AthleteSyncStatus is one row of the doctor-facing sync overview.
type AthleteSyncStatus struct {
	UserID       string         `json:"user_id"`
	FullName     string         `json:"full_name"`
	Platform     SourcePlatform `json:"platform"`
	LastSyncedAt *time.Time     `json:"last_synced_at"`
	LastStatus   string         `json:"last_status"`
	LastError    string         `json:"last_error,omitempty"`
}

// SyncStats aggregates record counts per day over a period.
type SyncStats struct {
	PeriodDays int        `json:"period_days"`
	Days       []DayStats `json:"days"`
	Totals     DayCounts  `json:"totals"`
}

// DayStats is the per-day breakdown inside SyncStats.
type DayStats struct {
	Date time.Time `json:"date"`
	DayCounts
}

// DayCounts carries record counts per metric category.
type DayCounts struct {
	RecoveryCount int `json:"recovery_count"`
	SleepCount    int `json:"sleep_count"`
	WorkoutCount  int `json:"workout_count"`
}
