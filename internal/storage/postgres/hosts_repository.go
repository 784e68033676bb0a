package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snaproll/server/internal/auth"
	"github.com/snaproll/server/internal/metrics"
)

var _ auth.HostStore = (*HostRepository)(nil)

type HostRepository struct {
	pool *pgxpool.Pool
}

func NewHostRepository(pool *pgxpool.Pool) (*HostRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("host repository: pool is nil")
	}
	return &HostRepository{pool: pool}, nil
}

func (r *HostRepository) CreateHost(ctx context.Context, host auth.Host) (err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("create_host", start, err) }()

	_, err = r.pool.Exec(ctx, `
INSERT INTO hosts (id, email, password_hash)
VALUES ($1, $2, $3)`, host.ID, host.Email, host.PasswordHash)
	if err != nil {
		return fmt.Errorf("create host: %w", err)
	}
	return nil
}

func (r *HostRepository) GetHostByEmail(ctx context.Context, email string) (_ *auth.Host, err error) {
	start := time.Now()
	defer func() { metrics.RecordQuery("get_host_by_email", start, err) }()

	var host auth.Host
	err = r.pool.QueryRow(ctx, `
SELECT id, email, password_hash, created_at
  FROM hosts
 WHERE email = $1`, email).
		Scan(&host.ID, &host.Email, &host.PasswordHash, &host.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrHostNotFound
		}
		return nil, fmt.Errorf("get host: %w", err)
	}
	return &host, nil
}
