// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/tyresync/internal/domain/installation"
)

// Store is the port interface for database operations.
type Store interface {
	ListInstallations(ctx context.Context) ([]installation.Installation, error)
	GetInstallation(ctx context.Context, id string) (*installation.Installation, error)
	CreateInstallation(ctx context.Context, req *installation.CreateRequest) (*installation.Installation, error)
	// UpdateInstallation persists in when its Version still matches the
	// stored row and increments in.Version. Returns domain.ErrConflict otherwise.
	UpdateInstallation(ctx context.Context, in *installation.Installation) error
	DeleteInstallation(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}
