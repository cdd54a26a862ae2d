// Package store defines the transactional boundary the engine runs in.
// Adapters live under internal/infrastructure/persistence.
package store

import (
	"context"

	"github.com/youlearn/youlearn-progress/internal/domain/achievement"
	"github.com/youlearn/youlearn-progress/internal/domain/activity"
	"github.com/youlearn/youlearn-progress/internal/domain/progression"
	"github.com/youlearn/youlearn-progress/internal/domain/user"
)

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	Users() user.Repository
	Progress() progression.Repository
	Activities() activity.Repository
	Grants() achievement.GrantRepository
}

// Store is implemented by every persistence adapter.
type Store interface {
	// Atomic runs fn inside one transaction. When fn returns an error nothing
	// it wrote is kept.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Catalog returns the achievement catalog repository.
	Catalog() achievement.CatalogRepository

	// Close releases resources.
	Close() error
}
