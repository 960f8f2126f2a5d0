package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cyvote/backend-cyvote-sub001/internal/voter/models"
	"github.com/cyvote/backend-cyvote-sub001/pkg/platform/sentinel"
)

// MemoryStore is an in-memory voter store guarded by a RWMutex.
type MemoryStore struct {
	mu     sync.RWMutex
	voters map[uuid.UUID]*models.Voter
}

func NewMemory() *MemoryStore {
	return &MemoryStore{voters: make(map[uuid.UUID]*models.Voter)}
}

func (s *MemoryStore) Insert(_ context.Context, voter *models.Voter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.voters[voter.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, v := range s.voters {
		if v.RegistrationNumber == voter.RegistrationNumber {
			return sentinel.ErrConflict
		}
	}

	copied := *voter
	s.voters[voter.ID] = &copied
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.Voter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	voter, ok := s.voters[id]
	if !ok || voter.Deleted() {
		return nil, sentinel.ErrNotFound
	}
	copied := *voter
	return &copied, nil
}

func (s *MemoryStore) FindByRegistrationNumber(_ context.Context, registrationNumber string) (*models.Voter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, voter := range s.voters {
		if voter.RegistrationNumber == registrationNumber && !voter.Deleted() {
			copied := *voter
			return &copied, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) ListActive(_ context.Context) ([]*models.Voter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Voter
	for _, voter := range s.voters {
		if !voter.Deleted() {
			copied := *voter
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RegistrationNumber < out[j].RegistrationNumber
	})
	return out, nil
}

func (s *MemoryStore) MarkVoted(_ context.Context, id uuid.UUID, votedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	voter, ok := s.voters[id]
	if !ok || voter.Deleted() {
		return sentinel.ErrNotFound
	}
	voter.HasVoted = true
	t := votedAt
	voter.VotedAt = &t
	return nil
}
