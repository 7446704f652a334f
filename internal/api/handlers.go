// Package api exposes the HTTP routes of the performance hub.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/auth"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/domain"
	syncpkg "github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/sync"
)

// The hosting platform kills the cron route at 60 seconds; leave room to
// respond with partial results instead of being cut off mid-write.
const cronSyncBudget = 55 * time.Second

const (
	defaultStatsPeriod = 7
	minStatsPeriod     = 1
	maxStatsPeriod     = 365
)

// ScopedRepoFunc hands out a repository bound to one caller's identity.
type ScopedRepoFunc func(userID string) domain.Repository

// SyncRunner is the orchestration surface the cron route needs.
type SyncRunner interface {
	SyncAllUsers(ctx context.Context) (*syncpkg.Result, error)
}

// Handler coordinates HTTP requests with the read services and the sync
// orchestrator. Each request walks the same ladder: authenticate, authorize,
// validate, execute, respond — bailing out with the matching status at the
// first failed step.
type Handler struct {
	scoped     ScopedRepoFunc
	overview   *domain.Service
	syncer     SyncRunner
	cronSecret string
	logger     *log.Logger
}

// NewHandler builds a Handler. overview must be backed by a credential that
// can see all athletes; scoped repositories are per-caller.
func NewHandler(scoped ScopedRepoFunc, overview *domain.Service, syncer SyncRunner, cronSecret string) *Handler {
	return &Handler{
		scoped:     scoped,
		overview:   overview,
		syncer:     syncer,
		cronSecret: cronSecret,
		logger:     log.New(log.Writer(), "[api] ", log.LstdFlags),
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/athlete/dashboard", h.athleteDashboard)
	mux.HandleFunc("/api/cron/sync-whoop", h.cronSync)
	mux.HandleFunc("/api/sync/athletes", h.syncAthletes)
	mux.HandleFunc("/api/sync/stats", h.syncStats)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for load balancer health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// athleteDashboard serves GET /api/athlete/dashboard for the signed-in athlete.
func (h *Handler) athleteDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	service := domain.NewService(h.scoped(claims.Subject))
	data, err := service.GetAthleteDashboardData(r.Context(), claims.Subject)
	if err != nil {
		h.logger.Printf("[athlete/dashboard] %v", err)
		writeError(w, http.StatusInternalServerError, errorMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, DashboardResponse{Success: true, Data: data})
}

// cronSync serves GET /api/cron/sync-whoop, authenticated by the shared cron
// secret rather than a session.
func (h *Handler) cronSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if !h.cronAuthorized(r) {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), cronSyncBudget)
	defer cancel()

	result, err := h.syncer.SyncAllUsers(ctx)
	if err != nil {
		h.logger.Printf("[cron/sync-whoop] %v", err)
		writeError(w, http.StatusInternalServerError, errorMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, CronSyncResponse{
		Success:   true,
		Timestamp: time.Now().UTC(),
		Result:    *result,
	})
}

// cronAuthorized compares the bearer token against the configured secret in
// constant time. The full token must match; prefixes are not enough, and an
// unset secret rejects everything.
func (h *Handler) cronAuthorized(r *http.Request) bool {
	if h.cronSecret == "" {
		return false
	}
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return false
	}
	token := header[len("Bearer "):]
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) == 1
}

// syncAthletes serves GET /api/sync/athletes for doctors.
func (h *Handler) syncAthletes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	if !claims.HasRole(auth.RoleDoctor) {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}

	athletes, err := h.overview.GetAthleteSyncStatus(r.Context())
	if err != nil {
		h.logger.Printf("[sync/athletes] %v", err)
		writeError(w, http.StatusInternalServerError, errorMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, AthletesResponse{Success: true, Athletes: athletes})
}

// syncStats serves GET /api/sync/stats.
func (h *Handler) syncStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// Only a truly absent parameter defaults; ?period= is an invalid value.
	period := defaultStatsPeriod
	if raw, present := r.URL.Query()["period"]; present {
		parsed, err := strconv.Atoi(raw[0])
		if err != nil || parsed < minStatsPeriod || parsed > maxStatsPeriod {
			writeError(w, http.StatusBadRequest, "Invalid period parameter")
			return
		}
		period = parsed
	}

	stats, err := h.overview.GetSyncStatsByPeriod(r.Context(), period)
	if err != nil {
		h.logger.Printf("[sync/stats] %v", err)
		writeError(w, http.StatusInternalServerError, errorMessage(err))
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{Success: true, Stats: stats})
}

// DashboardResponse is the body of GET /api/athlete/dashboard.
type DashboardResponse struct {
	Success bool                  `json:"success"`
	Data    *domain.DashboardData `json:"data"`
}

// CronSyncResponse is the body of GET /api/cron/sync-whoop. The sync result
// fields flatten into the top-level object.
type CronSyncResponse struct {
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
	syncpkg.Result
}

// AthletesResponse is the body of GET /api/sync/athletes.
type AthletesResponse struct {
	Success  bool                       `json:"success"`
	Athletes []domain.AthleteSyncStatus `json:"athletes"`
}

// StatsResponse is the body of GET /api/sync/stats.
type StatsResponse struct {
	Success bool              `json:"success"`
	Stats   *domain.SyncStats `json:"stats"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// errorMessage keeps client-visible failures to the message text; stack
// traces and wrapped detail stay in the server log.
func errorMessage(err error) string {
	if err == nil {
		return "Internal server error"
	}
	return err.Error()
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Success: false, Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
