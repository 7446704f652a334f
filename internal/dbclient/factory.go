// Package dbclient constructs the three database access surfaces: the
// request-scoped client subject to row-level security, the privileged
// service-role client, and the public anon client.
package dbclient

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/config"
	"github.com/pedalexsilva/Prime-Human-Performance-Hub-v2-sub001/internal/persistence/postgres"
)

// ErrServiceRoleUnavailable is raised when the privileged client is requested
// outside a trusted server context or without its credential.
var ErrServiceRoleUnavailable = errors.New("service-role client unavailable")

// Factory hands out repositories bound to the right credential. It owns the
// connection pools; repositories share them and carry no per-call state, so
// handing one out per request is cheap and safe.
type Factory struct {
	cfg config.Config

	rlsPool *pgxpool.Pool

	serviceOnce sync.Once
	servicePool *pgxpool.Pool
	serviceErr  error

	anonOnce sync.Once
	anonRepo *postgres.Repository
}

// New opens the request-scoped pool and returns the factory. The service and
// anon pools are opened lazily on first use.
func New(ctx context.Context, cfg config.Config) (*Factory, error) {
	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
	return &Factory{cfg: cfg, rlsPool: pool}, nil
}

// ServerClient returns a repository scoped to the caller's identity. Every
// query through it runs under that user's row-level security policies.
func (f *Factory) ServerClient(userID string) *postgres.Repository {
	return postgres.NewRepository(f.rlsPool).ForUser(userID)
}

// ServiceRoleClient returns the privileged repository, bypassing row-level
// security. It fails fast when the credential is absent or the execution
// context has not been marked trusted.
func (f *Factory) ServiceRoleClient(ctx context.Context) (*postgres.Repository, error) {
	if !f.cfg.AllowServiceRole {
		return nil, ErrServiceRoleUnavailable
	}
	if f.cfg.ServiceRolePostgresURL == "" {
		return nil, ErrServiceRoleUnavailable
	}

	f.serviceOnce.Do(func() {
		f.servicePool, f.serviceErr = pgxpool.New(ctx, f.cfg.ServiceRolePostgresURL)
	})
	if f.serviceErr != nil {
		return nil, f.serviceErr
	}
	return postgres.NewRepository(f.servicePool), nil
}

// AnonClient returns the process-wide public-credential repository. When the
// anon credential is missing it returns a placeholder whose queries fail
// with domain.ErrNotConfigured instead of crashing, so degraded preview
// environments keep serving the routes that do not need it.
func (f *Factory) AnonClient(ctx context.Context) *postgres.Repository {
	f.anonOnce.Do(func() {
		if f.cfg.AnonPostgresURL == "" {
			f.anonRepo = postgres.NewRepository(nil)
			return
		}
		pool, err := pgxpool.New(ctx, f.cfg.AnonPostgresURL)
		if err != nil {
			f.anonRepo = postgres.NewRepository(nil)
			return
		}
		f.anonRepo = postgres.NewRepository(pool)
	})
	return f.anonRepo
}

// Close releases every pool the factory opened.
func (f *Factory) Close() {
	if f.rlsPool != nil {
		f.rlsPool.Close()
	}
	if f.servicePool != nil {
		f.servicePool.Close()
	}
}
