// Package domain defines the normalized metric records and read services of
// the performance hub.
package domain

import (
	"encoding/json"
	"time"
)

// SourcePlatform identifies the wearable provider a record came from.
type SourcePlatform string

const PlatformWhoop SourcePlatform = "whoop"

// MetricKey is the logical identity of every normalized record. One record
// exists per user, platform and day; re-syncing overwrites in place.
type MetricKey struct {
	UserID         string
	SourcePlatform SourcePlatform
	MetricDate     time.Time
}

// RecoveryMetrics holds the per-day scalar recovery readings. Scalars are
// computed once at ingest; Raw keeps the provider payload verbatim for audit
// and replay but is never re-read to answer queries.
type RecoveryMetrics struct {
	ID               string
	UserID           string
	SourcePlatform   SourcePlatform
	MetricDate       time.Time
	RecoveryScore    float64
	HRVMilli         float64
	RestingHeartRate float64
	SpO2Percentage   float64
	SkinTempCelsius  float64
	Raw              json.RawMessage
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// SleepMetrics holds one sleep session per day. Start/End may cross the day
// boundary; MetricDate stays the aggregation key.
type SleepMetrics struct {
	ID                    string
	UserID                string
	SourcePlatform        SourcePlatform
	MetricDate            time.Time
	Start                 time.Time
	End                   time.Time
	LightSleepMinutes     int
	DeepSleepMinutes      int
	RemSleepMinutes       int
	AwakeMinutes          int
	EfficiencyPercentage  float64
	PerformancePercentage float64
	ConsistencyPercentage float64
	RespiratoryRate       float64
	DisturbanceCount      int
	Nap                   bool
	Raw                   json.RawMessage
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// WorkoutMetrics holds one workout session per day.
type WorkoutMetrics struct {
	ID                string
	UserID            string
	SourcePlatform    SourcePlatform
	MetricDate        time.Time
	Start             time.Time
	End               time.Time
	DurationMinutes   int
	Strain            float64
	AverageHeartRate  int
	MaxHeartRate      int
	Calories          float64
	DistanceMeter     float64
	AltitudeGainMeter float64
	Sport             string
	ZoneDurations     ZoneDurations
	Raw               json.RawMessage
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ZoneDurations breaks a workout into heart-rate zone minutes.
type ZoneDurations struct {
	Zone0Minutes int `json:"zone_0_minutes"`
	Zone1Minutes int `json:"zone_1_minutes"`
	Zone2Minutes int `json:"zone_2_minutes"`
	Zone3Minutes int `json:"zone_3_minutes"`
	Zone4Minutes int `json:"zone_4_minutes"`
	Zone5Minutes int `json:"zone_5_minutes"`
}

// MetricBatch groups the normalized records of one user for a single
// atomic write.
type MetricBatch struct {
	Recoveries []RecoveryMetrics
	Sleeps     []SleepMetrics
	Workouts   []WorkoutMetrics
}

// Len returns the total number of records in the batch.
func (b MetricBatch) Len() int {
	return len(b.Recoveries) + len(b.Sleeps) + len(b.Workouts)
}

// LinkedUser is an account with a wearable device connection.
type LinkedUser struct {
	UserID      string
	Platform    SourcePlatform
	AccessToken string
}

// SyncStatus records the outcome of the most recent sync for one user and
// platform.
type SyncStatus struct {
	UserID       string
	Platform     SourcePlatform
	LastSyncedAt *time.Time
	LastStatus   string
	LastError    string
}

const (
	SyncStatusOK     = "ok"
	SyncStatusFailed = "failed"
)
