package sync

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/domain"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/events"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/localcache"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/whoop"
)

func linkedUsers(ids ...string) []domain.LinkedUser {
	users := make([]domain.LinkedUser, 0, len(ids))
	for _, id := range ids {
		users = append(users, domain.LinkedUser{UserID: id, Platform: domain.PlatformWhoop, AccessToken: "token-" + id})
	}
	return users
}

func TestSyncAllUsersPartialFailure(t *testing.T) {
	store := &fakeStore{users: linkedUsers("user-a", "user-b")}
	client := &fakeClient{
		errByToken: map[string]error{
			"token-user-a": &whoop.APIError{Status: http.StatusUnauthorized, Body: "token expired"},
		},
		recoveries: oneRecovery(),
	}

	o := NewOrchestrator(store, client)
	result, err := o.SyncAllUsers(context.Background())
	if err != nil {
		t.Fatalf("a partial failure must not fail the run: %v", err)
	}

	if result.UsersProcessed != 1 || result.UsersFailed != 1 {
		t.Fatalf("unexpected counts: processed=%d failed=%d", result.UsersProcessed, result.UsersFailed)
	}
	if len(result.Failures) != 1 || result.Failures[0].UserID != "user-a" {
		t.Fatalf("unexpected failures %+v", result.Failures)
	}
	if result.RecordsWritten != 1 {
		t.Fatalf("expected 1 record written got %d", result.RecordsWritten)
	}

	if len(store.failures) != 1 || store.failures[0].userID != "user-a" {
		t.Fatalf("expected failure recorded for user-a, got %+v", store.failures)
	}
	if len(store.batches) != 1 || store.batches[0].userID != "user-b" {
		t.Fatalf("expected a batch saved only for user-b, got %+v", store.batches)
	}
}

func TestSyncAllUsersRetriesTransientOnce(t *testing.T) {
	store := &fakeStore{users: linkedUsers("user-a")}
	client := &fakeClient{
		failFirst:  map[string]error{"token-user-a": &whoop.APIError{Status: http.StatusTooManyRequests}},
		recoveries: oneRecovery(),
	}

	o := NewOrchestrator(store, client)
	result, err := o.SyncAllUsers(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.UsersProcessed != 1 || result.UsersFailed != 0 {
		t.Fatalf("unexpected counts: processed=%d failed=%d", result.UsersProcessed, result.UsersFailed)
	}
	if client.attempts["token-user-a"] != 2 {
		t.Fatalf("expected 2 attempts got %d", client.attempts["token-user-a"])
	}
}

func TestSyncAllUsersDoesNotRetryPermanentErrors(t *testing.T) {
	store := &fakeStore{users: linkedUsers("user-a")}
	client := &fakeClient{
		errByToken: map[string]error{"token-user-a": &whoop.APIError{Status: http.StatusUnauthorized}},
	}

	o := NewOrchestrator(store, client)
	if _, err := o.SyncAllUsers(context.Background()); err == nil {
		t.Fatal("every user failing should surface an error")
	}
	if client.attempts["token-user-a"] != 1 {
		t.Fatalf("expected a single attempt got %d", client.attempts["token-user-a"])
	}
}

func TestSyncAllUsersTotalFailure(t *testing.T) {
	store := &fakeStore{users: linkedUsers("user-a", "user-b")}
	client := &fakeClient{
		errByToken: map[string]error{
			"token-user-a": errors.New("boom"),
			"token-user-b": errors.New("boom"),
		},
	}

	o := NewOrchestrator(store, client)
	result, err := o.SyncAllUsers(context.Background())
	if err == nil {
		t.Fatal("expected an error when no user could be synced")
	}
	if result == nil || result.UsersFailed != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestSyncAllUsersStopsBeforeDeadline(t *testing.T) {
	store := &fakeStore{users: linkedUsers("user-a", "user-b")}
	client := &fakeClient{recoveries: oneRecovery()}

	// Remaining budget is already under the slack, so no user starts.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	o := NewOrchestrator(store, client, WithDeadlineSlack(10*time.Second))
	result, err := o.SyncAllUsers(ctx)
	if err != nil {
		t.Fatalf("a truncated run is not an error: %v", err)
	}
	if !result.Truncated {
		t.Fatal("expected truncated result")
	}
	if result.UsersProcessed != 0 || result.UsersFailed != 0 {
		t.Fatalf("no user should have been attempted, got %+v", result)
	}
	if len(store.batches) != 0 {
		t.Fatal("no batch should have been saved")
	}
}

func TestSinceFallsBackToWatermarkThenLookback(t *testing.T) {
	watermark := time.Now().UTC().Add(-3 * time.Hour).Truncate(time.Second)
	store := &fakeStore{
		users:      linkedUsers("user-a", "user-b"),
		lastSynced: map[string]time.Time{"user-a": watermark},
	}
	client := &fakeClient{recoveries: oneRecovery()}

	o := NewOrchestrator(store, client, WithLookback(48*time.Hour))
	if _, err := o.SyncAllUsers(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := client.windows["token-user-a"].since; !got.Equal(watermark) {
		t.Fatalf("user-a window should start at the watermark, got %v", got)
	}

	gotB := client.windows["token-user-b"].since
	wantB := time.Now().UTC().Add(-48 * time.Hour)
	if gotB.Before(wantB.Add(-time.Minute)) || gotB.After(wantB.Add(time.Minute)) {
		t.Fatalf("user-b window should start lookback ago, got %v", gotB)
	}
}

func TestCursorCacheShortensNextWindow(t *testing.T) {
	store := &fakeStore{users: linkedUsers("user-a")}
	client := &fakeClient{recoveries: oneRecovery()}
	cache := localcache.Open(t.TempDir())
	defer cache.Close()

	o := NewOrchestrator(store, client, WithCursorCache(cache), WithLookback(48*time.Hour))

	if _, err := o.SyncAllUsers(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstUntil := client.windows["token-user-a"].until

	if _, err := o.SyncAllUsers(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	secondSince := client.windows["token-user-a"].since

	if !secondSince.Equal(firstUntil) {
		t.Fatalf("second window should start where the first ended: got %v want %v", secondSince, firstUntil)
	}
	// The cursor means the second run never consulted the database watermark.
	if store.lastSyncedCalls["user-a"] != 1 {
		t.Fatalf("expected 1 watermark lookup got %d", store.lastSyncedCalls["user-a"])
	}
}

func TestSyncAllUsersPublishesEvent(t *testing.T) {
	store := &fakeStore{users: linkedUsers("user-a")}
	client := &fakeClient{recoveries: oneRecovery()}
	pub := &fakePublisher{}

	o := NewOrchestrator(store, client, WithPublisher(pub))
	if _, err := o.SyncAllUsers(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event got %d", len(pub.events))
	}
	event := pub.events[0]
	if event.Platform != string(domain.PlatformWhoop) || event.UsersProcessed != 1 {
		t.Fatalf("unexpected event %+v", event)
	}
}

func oneRecovery() []whoop.RecoveryRecord {
	return []whoop.RecoveryRecord{{
		Recovery: whoop.Recovery{
			CycleID:    1,
			CreatedAt:  time.Now().UTC(),
			ScoreState: whoop.ScoreStateScored,
			Score:      &whoop.RecoveryScore{RecoveryScore: 75},
		},
		Raw: []byte(`{"cycle_id":1}`),
	}}
}

type savedBatch struct {
	userID   string
	batch    domain.MetricBatch
	syncedAt time.Time
}

type recordedFailure struct {
	userID string
	reason string
}

type fakeStore struct {
	users      []domain.LinkedUser
	lastSynced map[string]time.Time
	saveErr    error

	batches         []savedBatch
	failures        []recordedFailure
	lastSyncedCalls map[string]int
}

func (f *fakeStore) ListLinkedUsers(ctx context.Context, platform domain.SourcePlatform) ([]domain.LinkedUser, error) {
	return f.users, nil
}

func (f *fakeStore) LastSyncedAt(ctx context.Context, userID string, platform domain.SourcePlatform) (time.Time, error) {
	if f.lastSyncedCalls == nil {
		f.lastSyncedCalls = map[string]int{}
	}
	f.lastSyncedCalls[userID]++
	return f.lastSynced[userID], nil
}

func (f *fakeStore) SaveUserBatch(ctx context.Context, userID string, platform domain.SourcePlatform, batch domain.MetricBatch, syncedAt time.Time) (int, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	f.batches = append(f.batches, savedBatch{userID: userID, batch: batch, syncedAt: syncedAt})
	return batch.Len(), nil
}

func (f *fakeStore) RecordSyncFailure(ctx context.Context, userID string, platform domain.SourcePlatform, reason string) error {
	f.failures = append(f.failures, recordedFailure{userID: userID, reason: reason})
	return nil
}

type window struct {
	since time.Time
	until time.Time
}

type fakeClient struct {
	recoveries []whoop.RecoveryRecord
	sleeps     []whoop.SleepRecord
	workouts   []whoop.WorkoutRecord

	errByToken map[string]error
	failFirst  map[string]error

	attempts map[string]int
	windows  map[string]window
}

func (f *fakeClient) noteCall(token string, since, until time.Time) error {
	if f.attempts == nil {
		f.attempts = map[string]int{}
	}
	if f.windows == nil {
		f.windows = map[string]window{}
	}
	f.attempts[token]++
	f.windows[token] = window{since: since, until: until}

	if err, ok := f.failFirst[token]; ok && f.attempts[token] == 1 {
		return err
	}
	if err, ok := f.errByToken[token]; ok {
		return err
	}
	return nil
}

func (f *fakeClient) Recoveries(ctx context.Context, token string, since, until time.Time) ([]whoop.RecoveryRecord, error) {
	if err := f.noteCall(token, since, until); err != nil {
		return nil, err
	}
	return f.recoveries, nil
}

func (f *fakeClient) Sleeps(ctx context.Context, token string, since, until time.Time) ([]whoop.SleepRecord, error) {
	return f.sleeps, nil
}

func (f *fakeClient) Workouts(ctx context.Context, token string, since, until time.Time) ([]whoop.WorkoutRecord, error) {
	return f.workouts, nil
}

type fakePublisher struct {
	events []events.SyncCompleted
}

func (f *fakePublisher) PublishSyncCompleted(ctx context.Context, event events.SyncCompleted) error {
	f.events = append(f.events, event)
	return nil
}
