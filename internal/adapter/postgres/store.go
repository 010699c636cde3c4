package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/tyresync/internal/domain"
	"github.com/Strob0t/tyresync/internal/domain/installation"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const installationColumns = `id, vehicle_plate, position, brand, model, size, tread_depth_mm, status, installed_at, version, created_at, updated_at`

// ListInstallations returns the whole collection in a stable order. It is
// the snapshot read behind every refresh push.
func (s *Store) ListInstallations(ctx context.Context) ([]installation.Installation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+installationColumns+` FROM installations ORDER BY vehicle_plate, position, installed_at`)
	if err != nil {
		return nil, fmt.Errorf("list installations: %w", err)
	}
	defer rows.Close()

	var items []installation.Installation
	for rows.Next() {
		in, err := scanInstallation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan installation: %w", err)
		}
		items = append(items, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list installations: %w", err)
	}
	return orEmpty(items), nil
}

func (s *Store) GetInstallation(ctx context.Context, id string) (*installation.Installation, error) {
	in, err := scanInstallation(s.pool.QueryRow(ctx,
		`SELECT `+installationColumns+` FROM installations WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get installation %s", id)
	}
	return &in, nil
}

func (s *Store) CreateInstallation(ctx context.Context, req *installation.CreateRequest) (*installation.Installation, error) {
	installedAt := time.Now().UTC()
	if req.InstalledAt != nil {
		installedAt = req.InstalledAt.UTC()
	}
	in, err := scanInstallation(s.pool.QueryRow(ctx,
		`INSERT INTO installations (id, vehicle_plate, position, brand, model, size, tread_depth_mm, status, installed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING `+installationColumns,
		uuid.NewString(), req.VehiclePlate, req.Position, req.Brand, req.Model, req.Size,
		req.TreadDepthMM, req.Status, installedAt))
	if err != nil {
		return nil, fmt.Errorf("insert installation: %w", err)
	}
	return &in, nil
}

// UpdateInstallation writes in when its version still matches and bumps
// in.Version and in.UpdatedAt to the stored values.
func (s *Store) UpdateInstallation(ctx context.Context, in *installation.Installation) error {
	err := s.pool.QueryRow(ctx,
		`UPDATE installations
		 SET vehicle_plate = $2, position = $3, brand = $4, model = $5, size = $6,
		     tread_depth_mm = $7, status = $8, installed_at = $9,
		     version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $10
		 RETURNING version, updated_at`,
		in.ID, in.VehiclePlate, in.Position, in.Brand, in.Model, in.Size,
		in.TreadDepthMM, in.Status, in.InstalledAt, in.Version,
	).Scan(&in.Version, &in.UpdatedAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update installation %s: %w", in.ID, err)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM installations WHERE id = $1)`, in.ID).Scan(&exists); err != nil {
		return fmt.Errorf("update installation %s: %w", in.ID, err)
	}
	if !exists {
		return fmt.Errorf("update installation %s: %w", in.ID, domain.ErrNotFound)
	}
	return fmt.Errorf("update installation %s: %w", in.ID, domain.ErrConflict)
}

func (s *Store) DeleteInstallation(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM installations WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete installation %s", id)
}

func scanInstallation(row scannable) (installation.Installation, error) {
	var in installation.Installation
	err := row.Scan(&in.ID, &in.VehiclePlate, &in.Position, &in.Brand, &in.Model, &in.Size,
		&in.TreadDepthMM, &in.Status, &in.InstalledAt, &in.Version, &in.CreatedAt, &in.UpdatedAt)
	return in, err
}
