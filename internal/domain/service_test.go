package domain

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGetAthleteDashboardDataAssemblesAggregate(t *testing.T) {
	now := time.Date(2026, time.March, 14, 7, 30, 0, 0, time.UTC)
	repo := &fakeRepo{
		recovery: &RecoveryMetrics{ID: "rec-1", UserID: "user-1", RecoveryScore: 85},
		sleep:    &SleepMetrics{ID: "slp-1", UserID: "user-1", Nap: false},
		workouts: []WorkoutMetrics{{ID: "wo-1"}, {ID: "wo-2"}},
		trend:    []TrendPoint{{Date: now.Truncate(24 * time.Hour), RecoveryScore: 85}},
		status:   &SyncStatus{UserID: "user-1", Platform: PlatformWhoop, LastSyncedAt: &now},
	}

	data, err := NewService(repo).GetAthleteDashboardData(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if data.Recovery == nil || data.Recovery.ID != "rec-1" {
		t.Fatalf("unexpected recovery %+v", data.Recovery)
	}
	if data.Sleep == nil || data.Sleep.ID != "slp-1" {
		t.Fatalf("unexpected sleep %+v", data.Sleep)
	}
	if len(data.Workouts) != 2 {
		t.Fatalf("expected 2 workouts got %d", len(data.Workouts))
	}
	if len(data.RecoveryTrend) != 1 {
		t.Fatalf("expected 1 trend point got %d", len(data.RecoveryTrend))
	}
	if data.LastSyncedAt == nil || !data.LastSyncedAt.Equal(now) {
		t.Fatalf("unexpected last synced at %v", data.LastSyncedAt)
	}
	if data.Platform != PlatformWhoop {
		t.Fatalf("unexpected platform %q", data.Platform)
	}

	if repo.workoutLimit != 10 {
		t.Fatalf("expected workout limit 10 got %d", repo.workoutLimit)
	}
	if repo.trendDays != 7 {
		t.Fatalf("expected 7-day trend got %d", repo.trendDays)
	}
}

func TestGetAthleteDashboardDataEmptyIsNotAnError(t *testing.T) {
	data, err := NewService(&fakeRepo{}).GetAthleteDashboardData(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data.Recovery != nil || data.Sleep != nil {
		t.Fatal("expected empty dashboard for a user with no records")
	}
	if data.LastSyncedAt != nil {
		t.Fatal("expected nil last_synced_at for a never-synced user")
	}
}

func TestGetAthleteDashboardDataWrapsErrors(t *testing.T) {
	cause := errors.New("pool closed")
	_, err := NewService(&fakeRepo{err: cause}).GetAthleteDashboardData(context.Background(), "user-1")
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause got %v", err)
	}
}

func TestGetSyncStatsByPeriodPassesDays(t *testing.T) {
	repo := &fakeRepo{stats: &SyncStats{PeriodDays: 30}}
	stats, err := NewService(repo).GetSyncStatsByPeriod(context.Background(), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.PeriodDays != 30 {
		t.Fatalf("unexpected period %d", stats.PeriodDays)
	}
	if repo.statsDays != 30 {
		t.Fatalf("repo queried for %d days", repo.statsDays)
	}
}

type fakeRepo struct {
	recovery *RecoveryMetrics
	sleep    *SleepMetrics
	workouts []WorkoutMetrics
	trend    []TrendPoint
	status   *SyncStatus
	athletes []AthleteSyncStatus
	stats    *SyncStats
	err      error

	workoutLimit int
	trendDays    int
	statsDays    int
}

func (f *fakeRepo) LatestRecovery(ctx context.Context, userID string) (*RecoveryMetrics, error) {
	return f.recovery, f.err
}

func (f *fakeRepo) LatestSleep(ctx context.Context, userID string) (*SleepMetrics, error) {
	return f.sleep, f.err
}

func (f *fakeRepo) RecentWorkouts(ctx context.Context, userID string, limit int) ([]WorkoutMetrics, error) {
	f.workoutLimit = limit
	return f.workouts, f.err
}

func (f *fakeRepo) RecoveryTrend(ctx context.Context, userID string, days int) ([]TrendPoint, error) {
	f.trendDays = days
	return f.trend, f.err
}

func (f *fakeRepo) SyncStatusFor(ctx context.Context, userID string, platform SourcePlatform) (*SyncStatus, error) {
	return f.status, f.err
}

func (f *fakeRepo) AthleteSyncStatuses(ctx context.Context) ([]AthleteSyncStatus, error) {
	return f.athletes, f.err
}

func (f *fakeRepo) SyncStatsByPeriod(ctx context.Context, days int) (*SyncStats, error) {
	f.statsDays = days
	return f.stats, f.err
}
