// Package events defines the payloads published after sync runs.
package events

import "time"

// SyncCompleted is emitted once per sync run, successful or partial.
type SyncCompleted struct {
	Platform       string    `json:"platform"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	UsersProcessed int       `json:"users_processed"`
	UsersFailed    int       `json:"users_failed"`
	RecordsWritten int       `json:"records_written"`
}
