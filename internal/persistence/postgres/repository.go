// Package postgres implements the domain repositories on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/domain"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/observability"
)

// Repository provides Postgres-backed persistence for metric records and
// sync bookkeeping. A Repository bound to a user (via ForUser) sets the RLS
// identity on every transaction, so row-level security policies apply; the
// unbound form is the privileged service-role surface.
type Repository struct {
	pool    *pgxpool.Pool
	rlsUser string
}

// NewRepository constructs a Repository. A nil pool yields a non-functional
// placeholder whose operations fail with domain.ErrNotConfigured.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ForUser returns a copy of the repository scoped to the given identity.
// Queries through it run under that user's row-level security policies.
func (r *Repository) ForUser(userID string) *Repository {
	return &Repository{pool: r.pool, rlsUser: userID}
}

// withTx runs fn inside a transaction, applying the RLS identity first when
// the repository is user-scoped.
func (r *Repository) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	if r.pool == nil {
		return domain.ErrNotConfigured
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if r.rlsUser != "" {
		if _, err := tx.Exec(ctx, "SELECT set_config('app.user_id', $1, true)", r.rlsUser); err != nil {
			return err
		}
	}

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const recoveryColumns = `id, user_id, source_platform, metric_date, recovery_score, hrv_milli,
        resting_heart_rate, spo2_percentage, skin_temp_celsius, raw, created_at, updated_at`

// LatestRecovery returns the newest recovery record for the user, or nil.
func (r *Repository) LatestRecovery(ctx context.Context, userID string) (*domain.RecoveryMetrics, error) {
	const query = `SELECT ` + recoveryColumns + `
        FROM recovery_metrics WHERE user_id=$1 ORDER BY metric_date DESC LIMIT 1`

	var rec *domain.RecoveryMetrics
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, query, userID)
		scanned, err := scanRecovery(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		rec = scanned
		return err
	})
	return rec, err
}

func scanRecovery(row pgx.Row) (*domain.RecoveryMetrics, error) {
	var rec domain.RecoveryMetrics
	err := row.Scan(&rec.ID, &rec.UserID, &rec.SourcePlatform, &rec.MetricDate,
		&rec.RecoveryScore, &rec.HRVMilli, &rec.RestingHeartRate, &rec.SpO2Percentage,
		&rec.SkinTempCelsius, &rec.Raw, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

const sleepColumns = `id, user_id, source_platform, metric_date, start_at, end_at,
        light_sleep_minutes, deep_sleep_minutes, rem_sleep_minutes, awake_minutes,
        efficiency_pct, performance_pct, consistency_pct, respiratory_rate,
        disturbance_count, nap, raw, created_at, updated_at`

// LatestSleep returns the newest non-nap sleep session for the user, or nil.
func (r *Repository) LatestSleep(ctx context.Context, userID string) (*domain.SleepMetrics, error) {
	const query = `SELECT ` + sleepColumns + `
        FROM sleep_metrics WHERE user_id=$1 AND nap=FALSE ORDER BY metric_date DESC LIMIT 1`

	var rec *domain.SleepMetrics
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, query, userID)
		scanned, err := scanSleep(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		rec = scanned
		return err
	})
	return rec, err
}

func scanSleep(row pgx.Row) (*domain.SleepMetrics, error) {
	var rec domain.SleepMetrics
	err := row.Scan(&rec.ID, &rec.UserID, &rec.SourcePlatform, &rec.MetricDate,
		&rec.Start, &rec.End, &rec.LightSleepMinutes, &rec.DeepSleepMinutes,
		&rec.RemSleepMinutes, &rec.AwakeMinutes, &rec.EfficiencyPercentage,
		&rec.PerformancePercentage, &rec.ConsistencyPercentage, &rec.RespiratoryRate,
		&rec.DisturbanceCount, &rec.Nap, &rec.Raw, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

const workoutColumns = `id, user_id, source_platform, metric_date, start_at, end_at,
        duration_minutes, strain, average_heart_rate, max_heart_rate, calories,
        distance_meter, altitude_gain_meter, sport, zone_durations, raw, created_at, updated_at`

// RecentWorkouts returns up to limit workouts, newest first.
func (r *Repository) RecentWorkouts(ctx context.Context, userID string, limit int) ([]domain.WorkoutMetrics, error) {
	const query = `SELECT ` + workoutColumns + `
        FROM workout_metrics WHERE user_id=$1 ORDER BY start_at DESC LIMIT $2`

	var workouts []domain.WorkoutMetrics
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, userID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanWorkout(rows)
			if err != nil {
				return err
			}
			workouts = append(workouts, *rec)
		}
		return rows.Err()
	})
	return workouts, err
}

func scanWorkout(row pgx.Row) (*domain.WorkoutMetrics, error) {
	var (
		rec   domain.WorkoutMetrics
		zones []byte
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.SourcePlatform, &rec.MetricDate,
		&rec.Start, &rec.End, &rec.DurationMinutes, &rec.Strain, &rec.AverageHeartRate,
		&rec.MaxHeartRate, &rec.Calories, &rec.DistanceMeter, &rec.AltitudeGainMeter,
		&rec.Sport, &zones, &rec.Raw, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(zones) > 0 {
		if err := json.Unmarshal(zones, &rec.ZoneDurations); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

// RecoveryTrend returns one point per day over the trailing window, oldest
// first. Days without a record are simply absent.
func (r *Repository) RecoveryTrend(ctx context.Context, userID string, days int) ([]domain.TrendPoint, error) {
	const query = `SELECT metric_date, recovery_score, hrv_milli, resting_heart_rate
        FROM recovery_metrics
        WHERE user_id=$1 AND metric_date > CURRENT_DATE - $2::int
        ORDER BY metric_date ASC`

	var points []domain.TrendPoint
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, userID, days)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var p domain.TrendPoint
			if err := rows.Scan(&p.Date, &p.RecoveryScore, &p.HRVMilli, &p.RestingHR); err != nil {
				return err
			}
			points = append(points, p)
		}
		return rows.Err()
	})
	return points, err
}

// SyncStatusFor returns the sync bookkeeping row for one user/platform, or nil.
func (r *Repository) SyncStatusFor(ctx context.Context, userID string, platform domain.SourcePlatform) (*domain.SyncStatus, error) {
	const query = `SELECT user_id, platform, last_synced_at, last_status, last_error
        FROM sync_status WHERE user_id=$1 AND platform=$2`

	var status *domain.SyncStatus
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		var s domain.SyncStatus
		err := tx.QueryRow(ctx, query, userID, platform).
			Scan(&s.UserID, &s.Platform, &s.LastSyncedAt, &s.LastStatus, &s.LastError)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		status = &s
		return nil
	})
	return status, err
}

// AthleteSyncStatuses lists every linked athlete with their last sync state,
// for the doctor-facing overview.
func (r *Repository) AthleteSyncStatuses(ctx context.Context) ([]domain.AthleteSyncStatus, error) {
	const query = `SELECT u.user_id, u.full_name, dl.platform,
            ss.last_synced_at, COALESCE(ss.last_status, ''), COALESCE(ss.last_error, '')
        FROM device_links dl
        JOIN users u ON u.user_id = dl.user_id
        LEFT JOIN sync_status ss ON ss.user_id = dl.user_id AND ss.platform = dl.platform
        WHERE u.role = 'athlete'
        ORDER BY u.full_name, dl.platform`

	var statuses []domain.AthleteSyncStatus
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var s domain.AthleteSyncStatus
			if err := rows.Scan(&s.UserID, &s.FullName, &s.Platform, &s.LastSyncedAt, &s.LastStatus, &s.LastError); err != nil {
				return err
			}
			statuses = append(statuses, s)
		}
		return rows.Err()
	})
	return statuses, err
}

// SyncStatsByPeriod aggregates per-day record counts over the trailing window.
func (r *Repository) SyncStatsByPeriod(ctx context.Context, days int) (*domain.SyncStats, error) {
	type categoryQuery struct {
		query string
		apply func(*domain.DayCounts, int)
	}
	// Strict inequality keeps the window at exactly `days` calendar days
	// ending today: days=1 is today only, days=7 is D-6 through D.
	queries := []categoryQuery{
		{
			query: `SELECT metric_date, COUNT(*) FROM recovery_metrics
                WHERE metric_date > CURRENT_DATE - $1::int GROUP BY metric_date`,
			apply: func(c *domain.DayCounts, n int) { c.RecoveryCount += n },
		},
		{
			query: `SELECT metric_date, COUNT(*) FROM sleep_metrics
                WHERE metric_date > CURRENT_DATE - $1::int GROUP BY metric_date`,
			apply: func(c *domain.DayCounts, n int) { c.SleepCount += n },
		},
		{
			query: `SELECT metric_date, COUNT(*) FROM workout_metrics
                WHERE metric_date > CURRENT_DATE - $1::int GROUP BY metric_date`,
			apply: func(c *domain.DayCounts, n int) { c.WorkoutCount += n },
		},
	}

	byDay := make(map[time.Time]*domain.DayCounts)
	totals := domain.DayCounts{}

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		for _, cq := range queries {
			rows, err := tx.Query(ctx, cq.query, days)
			if err != nil {
				return err
			}
			for rows.Next() {
				var (
					day   time.Time
					count int
				)
				if err := rows.Scan(&day, &count); err != nil {
					rows.Close()
					return err
				}
				day = day.UTC().Truncate(24 * time.Hour)
				if byDay[day] == nil {
					byDay[day] = &domain.DayCounts{}
				}
				cq.apply(byDay[day], count)
				cq.apply(&totals, count)
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats := &domain.SyncStats{PeriodDays: days, Totals: totals}
	for day, counts := range byDay {
		stats.Days = append(stats.Days, domain.DayStats{Date: day, DayCounts: *counts})
	}
	sort.Slice(stats.Days, func(i, j int) bool {
		return stats.Days[i].Date.Before(stats.Days[j].Date)
	})
	return stats, nil
}

// ListLinkedUsers returns every user with a device link for the platform.
func (r *Repository) ListLinkedUsers(ctx context.Context, platform domain.SourcePlatform) ([]domain.LinkedUser, error) {
	const query = `SELECT user_id, platform, access_token
        FROM device_links WHERE platform=$1 ORDER BY user_id`

	var users []domain.LinkedUser
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, platform)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var u domain.LinkedUser
			if err := rows.Scan(&u.UserID, &u.Platform, &u.AccessToken); err != nil {
				return err
			}
			users = append(users, u)
		}
		return rows.Err()
	})
	return users, err
}

// LastSyncedAt returns the end of the last successful sync window for the
// user, or the zero time when the user has never synced.
func (r *Repository) LastSyncedAt(ctx context.Context, userID string, platform domain.SourcePlatform) (time.Time, error) {
	const query = `SELECT last_synced_at FROM sync_status
        WHERE user_id=$1 AND platform=$2 AND last_synced_at IS NOT NULL`

	var last time.Time
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, query, userID, platform).Scan(&last)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	})
	return last, err
}

// SaveUserBatch upserts a user's normalized records and advances the sync
// watermark in a single transaction. Re-running with the same upstream data
// overwrites rows in place; the (user_id, source_platform, metric_date) key
// never duplicates.
func (r *Repository) SaveUserBatch(ctx context.Context, userID string, platform domain.SourcePlatform, batch domain.MetricBatch, syncedAt time.Time) (int, error) {
	written := 0
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		for _, rec := range batch.Recoveries {
			if err := upsertRecovery(ctx, tx, rec); err != nil {
				return err
			}
			written++
		}
		for _, rec := range batch.Sleeps {
			if err := upsertSleep(ctx, tx, rec); err != nil {
				return err
			}
			written++
		}
		for _, rec := range batch.Workouts {
			if err := upsertWorkout(ctx, tx, rec); err != nil {
				return err
			}
			written++
		}

		const stmt = `INSERT INTO sync_status (user_id, platform, last_synced_at, last_status, last_error, updated_at)
            VALUES ($1, $2, $3, $4, '', NOW())
            ON CONFLICT (user_id, platform) DO UPDATE SET
                last_synced_at = EXCLUDED.last_synced_at,
                last_status = EXCLUDED.last_status,
                last_error = '',
                updated_at = NOW()`
		_, err := tx.Exec(ctx, stmt, userID, platform, syncedAt, domain.SyncStatusOK)
		return err
	})
	if err != nil {
		return 0, err
	}
	observability.RecordMetricsPersisted(syncedAt)
	return written, nil
}

// RecordSyncFailure marks the last sync attempt failed without touching the
// watermark, so the next run retries the same window.
func (r *Repository) RecordSyncFailure(ctx context.Context, userID string, platform domain.SourcePlatform, reason string) error {
	const stmt = `INSERT INTO sync_status (user_id, platform, last_synced_at, last_status, last_error, updated_at)
        VALUES ($1, $2, NULL, $3, $4, NOW())
        ON CONFLICT (user_id, platform) DO UPDATE SET
            last_status = EXCLUDED.last_status,
            last_error = EXCLUDED.last_error,
            updated_at = NOW()`

	return r.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, stmt, userID, platform, domain.SyncStatusFailed, reason)
		return err
	})
}

func upsertRecovery(ctx context.Context, tx pgx.Tx, rec domain.RecoveryMetrics) error {
	const stmt = `INSERT INTO recovery_metrics (id, user_id, source_platform, metric_date,
            recovery_score, hrv_milli, resting_heart_rate, spo2_percentage, skin_temp_celsius,
            raw, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (user_id, source_platform, metric_date) DO UPDATE SET
            recovery_score = EXCLUDED.recovery_score,
            hrv_milli = EXCLUDED.hrv_milli,
            resting_heart_rate = EXCLUDED.resting_heart_rate,
            spo2_percentage = EXCLUDED.spo2_percentage,
            skin_temp_celsius = EXCLUDED.skin_temp_celsius,
            raw = EXCLUDED.raw,
            updated_at = EXCLUDED.updated_at`

	_, err := tx.Exec(ctx, stmt, rec.ID, rec.UserID, rec.SourcePlatform, rec.MetricDate,
		rec.RecoveryScore, rec.HRVMilli, rec.RestingHeartRate, rec.SpO2Percentage,
		rec.SkinTempCelsius, rec.Raw, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func upsertSleep(ctx context.Context, tx pgx.Tx, rec domain.SleepMetrics) error {
	const stmt = `INSERT INTO sleep_metrics (id, user_id, source_platform, metric_date,
            start_at, end_at, light_sleep_minutes, deep_sleep_minutes, rem_sleep_minutes,
            awake_minutes, efficiency_pct, performance_pct, consistency_pct,
            respiratory_rate, disturbance_count, nap, raw, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
        ON CONFLICT (user_id, source_platform, metric_date) DO UPDATE SET
            start_at = EXCLUDED.start_at,
            end_at = EXCLUDED.end_at,
            light_sleep_minutes = EXCLUDED.light_sleep_minutes,
            deep_sleep_minutes = EXCLUDED.deep_sleep_minutes,
            rem_sleep_minutes = EXCLUDED.rem_sleep_minutes,
            awake_minutes = EXCLUDED.awake_minutes,
            efficiency_pct = EXCLUDED.efficiency_pct,
            performance_pct = EXCLUDED.performance_pct,
            consistency_pct = EXCLUDED.consistency_pct,
            respiratory_rate = EXCLUDED.respiratory_rate,
            disturbance_count = EXCLUDED.disturbance_count,
            nap = EXCLUDED.nap,
            raw = EXCLUDED.raw,
            updated_at = EXCLUDED.updated_at`

	_, err := tx.Exec(ctx, stmt, rec.ID, rec.UserID, rec.SourcePlatform, rec.MetricDate,
		rec.Start, rec.End, rec.LightSleepMinutes, rec.DeepSleepMinutes, rec.RemSleepMinutes,
		rec.AwakeMinutes, rec.EfficiencyPercentage, rec.PerformancePercentage,
		rec.ConsistencyPercentage, rec.RespiratoryRate, rec.DisturbanceCount, rec.Nap,
		rec.Raw, rec.CreatedAt, rec.UpdatedAt)
	return err
}

func upsertWorkout(ctx context.Context, tx pgx.Tx, rec domain.WorkoutMetrics) error {
	zones, err := json.Marshal(rec.ZoneDurations)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO workout_metrics (id, user_id, source_platform, metric_date,
            start_at, end_at, duration_minutes, strain, average_heart_rate, max_heart_rate,
            calories, distance_meter, altitude_gain_meter, sport, zone_durations, raw,
            created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
        ON CONFLICT (user_id, source_platform, metric_date) DO UPDATE SET
            start_at = EXCLUDED.start_at,
            end_at = EXCLUDED.end_at,
            duration_minutes = EXCLUDED.duration_minutes,
            strain = EXCLUDED.strain,
            average_heart_rate = EXCLUDED.average_heart_rate,
            max_heart_rate = EXCLUDED.max_heart_rate,
            calories = EXCLUDED.calories,
            distance_meter = EXCLUDED.distance_meter,
            altitude_gain_meter = EXCLUDED.altitude_gain_meter,
            sport = EXCLUDED.sport,
            zone_durations = EXCLUDED.zone_durations,
            raw = EXCLUDED.raw,
            updated_at = EXCLUDED.updated_at`

	_, err = tx.Exec(ctx, stmt, rec.ID, rec.UserID, rec.SourcePlatform, rec.MetricDate,
		rec.Start, rec.End, rec.DurationMinutes, rec.Strain, rec.AverageHeartRate,
		rec.MaxHeartRate, rec.Calories, rec.DistanceMeter, rec.AltitudeGainMeter,
		rec.Sport, zones, rec.Raw, rec.CreatedAt, rec.UpdatedAt)
	return err
}
