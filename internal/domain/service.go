package domain

import (
	"context"
	"fmt"
)

const (
	dashboardWorkoutLimit = 10
	dashboardTrendDays    = 7
)

// Service exposes the read-only aggregates behind the HTTP routes. All
// authorization is the caller's responsibility; the service assumes the
// repository it is handed is already scoped to the right identity.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GetAthleteDashboardData assembles the dashboard summary for one athlete:
// latest recovery, most recent sleep session, recent workouts and the 7-day
// recovery trend.
func (s *Service) GetAthleteDashboardData(ctx context.Context, userID string) (*DashboardData, error) {
	recovery, err := s.repo.LatestRecovery(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("latest recovery: %w", err)
	}

	sleep, err := s.repo.LatestSleep(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("latest sleep: %w", err)
	}

	workouts, err := s.repo.RecentWorkouts(ctx, userID, dashboardWorkoutLimit)
	if err != nil {
		return nil, fmt.Errorf("recent workouts: %w", err)
	}

	trend, err := s.repo.RecoveryTrend(ctx, userID, dashboardTrendDays)
	if err != nil {
		return nil, fmt.Errorf("recovery trend: %w", err)
	}

	status, err := s.repo.SyncStatusFor(ctx, userID, PlatformWhoop)
	if err != nil {
		return nil, fmt.Errorf("sync status: %w", err)
	}

	data := &DashboardData{
		Recovery:      recovery,
		Sleep:         sleep,
		Workouts:      workouts,
		RecoveryTrend: trend,
		Platform:      PlatformWhoop,
	}
	if status != nil {
		data.LastSyncedAt = status.LastSyncedAt
	}
	return data, nil
}

// GetAthleteSyncStatus lists the sync state of every linked athlete for the
// doctor overview.
func (s *Service) GetAthleteSyncStatus(ctx context.Context) ([]AthleteSyncStatus, error) {
	statuses, err := s.repo.AthleteSyncStatuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("athlete sync statuses: %w", err)
	}
	return statuses, nil
}

// GetSyncStatsByPeriod aggregates per-day record counts over the last `days`
// days. Validation of the period bounds belongs to the route layer.
func (s *Service) GetSyncStatsByPeriod(ctx context.Context, days int) (*SyncStats, error) {
	stats, err := s.repo.SyncStatsByPeriod(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("sync stats: %w", err)
	}
	return stats, nil
}
