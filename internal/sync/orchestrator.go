// Package sync pulls wearable data from the provider API, normalizes it and
// writes it to storage, one user at a time.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/domain"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/events"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/localcache"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/observability"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/whoop"
)

// WearableClient is the provider API surface the orchestrator needs.
type WearableClient interface {
	Recoveries(ctx context.Context, accessToken string, since, until time.Time) ([]whoop.RecoveryRecord, error)
	Sleeps(ctx context.Context, accessToken string, since, until time.Time) ([]whoop.SleepRecord, error)
	Workouts(ctx context.Context, accessToken string, since, until time.Time) ([]whoop.WorkoutRecord, error)
}

// Publisher delivers sync lifecycle events downstream.
type Publisher interface {
	PublishSyncCompleted(ctx context.Context, event events.SyncCompleted) error
}

// UserFailure records one user's failed sync inside an otherwise successful run.
type UserFailure struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// Result aggregates the outcome of one sync run. A run with failures is
// still a successful run; SyncAllUsers only returns an error when no user
// could be processed at all.
type Result struct {
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	UsersProcessed int           `json:"users_processed"`
	UsersFailed    int           `json:"users_failed"`
	RecordsWritten int           `json:"records_written"`
	Truncated      bool          `json:"truncated,omitempty"`
	Failures       []UserFailure `json:"failures,omitempty"`
}

// Option configures optional orchestrator behaviour.
type Option func(*Orchestrator)

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithPublisher attaches a downstream event publisher.
func WithPublisher(publisher Publisher) Option {
	return func(o *Orchestrator) {
		o.publisher = publisher
	}
}

// WithCursorCache attaches a local cache for per-user sync cursors.
func WithCursorCache(cache *localcache.Cache) Option {
	return func(o *Orchestrator) {
		o.cursors = cache
	}
}

// WithLookback bounds the initial window for users that never synced.
func WithLookback(lookback time.Duration) Option {
	return func(o *Orchestrator) {
		if lookback > 0 {
			o.lookback = lookback
		}
	}
}

// WithDeadlineSlack sets how much of the context budget is reserved for
// finishing the user in flight. No new user starts once the remaining budget
// drops below it.
func WithDeadlineSlack(slack time.Duration) Option {
	return func(o *Orchestrator) {
		if slack > 0 {
			o.deadlineSlack = slack
		}
	}
}

// Orchestrator runs the periodic pull-and-store reconciliation against the
// wearable provider. Users are processed sequentially: the provider rate
// limit is shared across all users, so fanning out buys nothing and risks
// throttling.
type Orchestrator struct {
	store         domain.SyncRepository
	client        WearableClient
	cursors       *localcache.Cache
	publisher     Publisher
	logger        *log.Logger
	lookback      time.Duration
	deadlineSlack time.Duration
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(store domain.SyncRepository, client WearableClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:         store,
		client:        client,
		logger:        log.New(log.Writer(), "[sync] ", log.LstdFlags),
		lookback:      7 * 24 * time.Hour,
		deadlineSlack: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SyncAllUsers reconciles every linked user with the provider. One user's
// failure never aborts the rest; failures are collected on the Result. The
// run stops early, marking the result truncated, when the context deadline
// no longer leaves room to finish another user cleanly.
func (o *Orchestrator) SyncAllUsers(ctx context.Context) (*Result, error) {
	result := &Result{StartedAt: time.Now().UTC()}

	users, err := o.store.ListLinkedUsers(ctx, domain.PlatformWhoop)
	if err != nil {
		return nil, fmt.Errorf("list linked users: %w", err)
	}

	for _, user := range users {
		if o.outOfBudget(ctx) {
			result.Truncated = true
			o.logger.Printf("stopping early: %d of %d users processed before deadline", result.UsersProcessed+result.UsersFailed, len(users))
			break
		}

		written, err := o.syncUserWithRetry(ctx, user)
		if err != nil {
			result.UsersFailed++
			result.Failures = append(result.Failures, UserFailure{UserID: user.UserID, Error: err.Error()})
			recordUserFailed()
			o.logger.Printf("user %s: sync failed: %v", user.UserID, err)

			if recordErr := o.store.RecordSyncFailure(ctx, user.UserID, user.Platform, err.Error()); recordErr != nil {
				o.logger.Printf("user %s: recording failure: %v", user.UserID, recordErr)
			}
			continue
		}

		result.UsersProcessed++
		result.RecordsWritten += written
		recordUserSynced(written)
	}

	result.FinishedAt = time.Now().UTC()
	observability.RecordSyncCompleted(result.FinishedAt)

	if o.publisher != nil {
		event := events.SyncCompleted{
			Platform:       string(domain.PlatformWhoop),
			StartedAt:      result.StartedAt,
			FinishedAt:     result.FinishedAt,
			UsersProcessed: result.UsersProcessed,
			UsersFailed:    result.UsersFailed,
			RecordsWritten: result.RecordsWritten,
		}
		if err := o.publisher.PublishSyncCompleted(ctx, event); err != nil {
			o.logger.Printf("publish sync event: %v", err)
		}
	}

	if len(users) > 0 && result.UsersProcessed == 0 && !result.Truncated {
		return result, errors.New("sync failed for every user")
	}
	return result, nil
}

func (o *Orchestrator) outOfBudget(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return false
	}
	return time.Until(deadline) < o.deadlineSlack
}

// syncUserWithRetry retries a user once on transient provider errors before
// recording the failure.
func (o *Orchestrator) syncUserWithRetry(ctx context.Context, user domain.LinkedUser) (int, error) {
	written, err := o.syncUser(ctx, user)
	if err == nil || !isTransient(err) || ctx.Err() != nil {
		return written, err
	}

	o.logger.Printf("user %s: transient failure, retrying once: %v", user.UserID, err)
	return o.syncUser(ctx, user)
}

func isTransient(err error) bool {
	var apiErr *whoop.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}

func (o *Orchestrator) syncUser(ctx context.Context, user domain.LinkedUser) (int, error) {
	until := time.Now().UTC()
	since, err := o.sinceFor(ctx, user, until)
	if err != nil {
		return 0, err
	}
	if !since.Before(until) {
		return 0, nil
	}

	recoveries, err := o.client.Recoveries(ctx, user.AccessToken, since, until)
	if err != nil {
		return 0, fmt.Errorf("fetch recoveries: %w", err)
	}
	sleeps, err := o.client.Sleeps(ctx, user.AccessToken, since, until)
	if err != nil {
		return 0, fmt.Errorf("fetch sleeps: %w", err)
	}
	workouts, err := o.client.Workouts(ctx, user.AccessToken, since, until)
	if err != nil {
		return 0, fmt.Errorf("fetch workouts: %w", err)
	}

	now := time.Now().UTC()
	batch := domain.MetricBatch{}
	for _, rec := range recoveries {
		batch.Recoveries = append(batch.Recoveries, normalizeRecovery(user.UserID, rec, now))
	}
	batch.Sleeps = normalizeSleeps(user.UserID, sleeps, now)
	for _, rec := range workouts {
		batch.Workouts = append(batch.Workouts, normalizeWorkout(user.UserID, rec, now))
	}

	written, err := o.store.SaveUserBatch(ctx, user.UserID, user.Platform, batch, until)
	if err != nil {
		return 0, fmt.Errorf("save batch: %w", err)
	}

	o.setCursor(user, until)
	return written, nil
}

// sinceFor resolves the start of the incremental window: local cursor first,
// then the stored watermark, then a bounded default lookback.
func (o *Orchestrator) sinceFor(ctx context.Context, user domain.LinkedUser, until time.Time) (time.Time, error) {
	if cached := o.getCursor(user); !cached.IsZero() {
		return cached, nil
	}

	last, err := o.store.LastSyncedAt(ctx, user.UserID, user.Platform)
	if err != nil {
		return time.Time{}, fmt.Errorf("last synced at: %w", err)
	}
	if !last.IsZero() {
		return last, nil
	}
	return until.Add(-o.lookback), nil
}

func cursorKey(user domain.LinkedUser) string {
	return fmt.Sprintf("cursor/%s/%s", user.Platform, user.UserID)
}

func (o *Orchestrator) getCursor(user domain.LinkedUser) time.Time {
	if !o.cursors.Enabled() {
		return time.Time{}
	}
	raw := o.cursors.Get(cursorKey(user))
	if raw == nil {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}
	}
	return ts
}

func (o *Orchestrator) setCursor(user domain.LinkedUser, ts time.Time) {
	if !o.cursors.Enabled() {
		return
	}
	o.cursors.Set(cursorKey(user), []byte(ts.UTC().Format(time.RFC3339Nano)))
}
