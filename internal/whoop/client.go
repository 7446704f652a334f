// Package whoop implements a minimal client for the WHOOP developer API.
package whoop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	recoveryPath = "/v2/recovery"
	sleepPath    = "/v2/activity/sleep"
	workoutPath  = "/v2/activity/workout"
)

// Client talks to the WHOOP collection endpoints on behalf of linked users.
// Requests are rate limited client-side; the provider enforces its own limit
// on top and a single retry honours Retry-After when it trips anyway.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	pageLimit  int
}

// Option configures optional client behaviour.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithPageLimit overrides the per-request collection page size.
func WithPageLimit(limit int) Option {
	return func(c *Client) {
		if limit > 0 {
			c.pageLimit = limit
		}
	}
}

// WithRatePerMinute overrides the client-side request budget.
func WithRatePerMinute(perMinute int) Option {
	return func(c *Client) {
		if perMinute > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute/10+1)
		}
	}
}

// NewClient constructs a Client with sane defaults.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter:   rate.NewLimiter(rate.Limit(100.0/60.0), 10),
		pageLimit: 25,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecoveryRecord pairs a decoded recovery with its verbatim payload.
type RecoveryRecord struct {
	Recovery Recovery
	Raw      json.RawMessage
}

// SleepRecord pairs a decoded sleep session with its verbatim payload.
type SleepRecord struct {
	Sleep Sleep
	Raw   json.RawMessage
}

// WorkoutRecord pairs a decoded workout with its verbatim payload.
type WorkoutRecord struct {
	Workout Workout
	Raw     json.RawMessage
}

// Recoveries fetches the recovery collection for the window [since, until).
func (c *Client) Recoveries(ctx context.Context, accessToken string, since, until time.Time) ([]RecoveryRecord, error) {
	raws, err := c.collect(ctx, recoveryPath, accessToken, since, until)
	if err != nil {
		return nil, err
	}
	records := make([]RecoveryRecord, 0, len(raws))
	for _, raw := range raws {
		var rec Recovery
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode recovery record: %w", err)
		}
		records = append(records, RecoveryRecord{Recovery: rec, Raw: raw})
	}
	return records, nil
}

// Sleeps fetches the sleep collection for the window [since, until).
func (c *Client) Sleeps(ctx context.Context, accessToken string, since, until time.Time) ([]SleepRecord, error) {
	raws, err := c.collect(ctx, sleepPath, accessToken, since, until)
	if err != nil {
		return nil, err
	}
	records := make([]SleepRecord, 0, len(raws))
	for _, raw := range raws {
		var rec Sleep
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode sleep record: %w", err)
		}
		records = append(records, SleepRecord{Sleep: rec, Raw: raw})
	}
	return records, nil
}

// Workouts fetches the workout collection for the window [since, until).
func (c *Client) Workouts(ctx context.Context, accessToken string, since, until time.Time) ([]WorkoutRecord, error) {
	raws, err := c.collect(ctx, workoutPath, accessToken, since, until)
	if err != nil {
		return nil, err
	}
	records := make([]WorkoutRecord, 0, len(raws))
	for _, raw := range raws {
		var rec Workout
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode workout record: %w", err)
		}
		records = append(records, WorkoutRecord{Workout: rec, Raw: raw})
	}
	return records, nil
}

type collectionPage struct {
	Records   []json.RawMessage `json:"records"`
	NextToken *string           `json:"next_token"`
}

// collect walks a paginated collection endpoint until next_token runs out.
func (c *Client) collect(ctx context.Context, path, accessToken string, since, until time.Time) ([]json.RawMessage, error) {
	var (
		records   []json.RawMessage
		nextToken string
	)

	for {
		page, err := c.fetchPage(ctx, path, accessToken, since, until, nextToken)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Records...)

		if page.NextToken == nil || *page.NextToken == "" {
			return records, nil
		}
		nextToken = *page.NextToken
	}
}

func (c *Client) fetchPage(ctx context.Context, path, accessToken string, since, until time.Time, nextToken string) (*collectionPage, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(c.pageLimit))
	query.Set("start", since.UTC().Format(time.RFC3339))
	query.Set("end", until.UTC().Format(time.RFC3339))
	if nextToken != "" {
		query.Set("nextToken", nextToken)
	}
	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, query.Encode())

	page, err := c.doPage(ctx, endpoint, accessToken)
	if err == nil {
		return page, nil
	}

	retryable, delay := retryAfter(err)
	if !retryable {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(delay):
	}
	return c.doPage(ctx, endpoint, accessToken)
}

func (c *Client) doPage(ctx context.Context, endpoint, accessToken string) (*collectionPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{
			Status:     resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var page collectionPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode collection page: %w", err)
	}
	return &page, nil
}

// APIError represents a non-200 response from the provider.
type APIError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whoop api status %d: %s", e.Status, e.Body)
}

// Retryable reports whether the error is worth a single retry.
func (e *APIError) Retryable() bool {
	switch e.Status {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func retryAfter(err error) (bool, time.Duration) {
	apiErr, ok := err.(*APIError)
	if !ok || !apiErr.Retryable() {
		return false, 0
	}
	if apiErr.RetryAfter > 0 {
		return true, apiErr.RetryAfter
	}
	return true, time.Second
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
