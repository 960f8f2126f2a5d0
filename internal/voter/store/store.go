// Package store persists voters. Services depend on the Store interface;
// the memory implementation backs unit tests and local development, the
// postgres implementation backs production.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cyvote/backend-cyvote-sub001/internal/voter/models"
)

// Store is the voter persistence contract. Implementations return
// sentinel.ErrNotFound for missing voters; soft-deleted voters are treated
// as missing by the finders.
type Store interface {
	Insert(ctx context.Context, voter *models.Voter) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Voter, error)
	FindByRegistrationNumber(ctx context.Context, registrationNumber string) (*models.Voter, error)
	// ListActive returns all non-deleted voters in stable order.
	ListActive(ctx context.Context) ([]*models.Voter, error)
	// MarkVoted flips the voted flag. Called only from the cast transaction.
	MarkVoted(ctx context.Context, id uuid.UUID, votedAt time.Time) error
}
