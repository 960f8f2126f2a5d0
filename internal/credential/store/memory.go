package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cyvote/backend-cyvote-sub001/internal/credential/models"
	"github.com/cyvote/backend-cyvote-sub001/pkg/platform/sentinel"
)

// MemoryStore is an in-memory credential store guarded by a RWMutex.
type MemoryStore struct {
	mu          sync.RWMutex
	credentials map[uuid.UUID]*models.Credential
}

func NewMemory() *MemoryStore {
	return &MemoryStore{credentials: make(map[uuid.UUID]*models.Credential)}
}

func (s *MemoryStore) Insert(_ context.Context, credential *models.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.credentials[credential.ID]; exists {
		return sentinel.ErrConflict
	}
	copied := copyCredential(credential)
	s.credentials[credential.ID] = copied
	return nil
}

func (s *MemoryStore) FindActiveByVoter(_ context.Context, voterID uuid.UUID) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.credentials {
		if !c.IsUsed && c.VoterID != nil && *c.VoterID == voterID {
			return copyCredential(c), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) FindByVoterAndHash(_ context.Context, voterID uuid.UUID, hash string) (*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.Credential
	for _, c := range s.credentials {
		if c.VoterID == nil || *c.VoterID != voterID || c.Hash != hash {
			continue
		}
		// Prefer the unused match when a superseded credential shares the
		// hash with a reissued one.
		if !c.IsUsed {
			return copyCredential(c), nil
		}
		found = c
	}
	if found == nil {
		return nil, sentinel.ErrNotFound
	}
	return copyCredential(found), nil
}

func (s *MemoryStore) ExistsByHash(_ context.Context, hash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.credentials {
		if c.Hash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ListUndelivered(_ context.Context) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Credential
	for _, c := range s.credentials {
		if c.DeliveredAt == nil && !c.IsUsed {
			out = append(out, copyCredential(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].GeneratedAt.Before(out[j].GeneratedAt)
	})
	return out, nil
}

func (s *MemoryStore) InvalidateAllForVoter(_ context.Context, voterID uuid.UUID, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	invalidated := 0
	for _, c := range s.credentials {
		if !c.IsUsed && c.VoterID != nil && *c.VoterID == voterID {
			c.IsUsed = true
			t := at
			c.UsedAt = &t
			invalidated++
		}
	}
	return invalidated, nil
}

func (s *MemoryStore) MarkUsed(_ context.Context, id uuid.UUID, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credentials[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if c.IsUsed {
		return sentinel.ErrAlreadyUsed
	}
	c.IsUsed = true
	t := usedAt
	c.UsedAt = &t
	return nil
}

func (s *MemoryStore) MarkDelivered(_ context.Context, id uuid.UUID, deliveredAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credentials[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if c.IsUsed {
		return sentinel.ErrAlreadyUsed
	}
	t := deliveredAt
	c.DeliveredAt = &t
	return nil
}

func (s *MemoryStore) ReplaceHash(_ context.Context, id uuid.UUID, hash string, generatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.credentials[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if c.IsUsed {
		return sentinel.ErrAlreadyUsed
	}
	c.Hash = hash
	c.GeneratedAt = generatedAt
	return nil
}

// snapshotVoter deep-copies every credential row belonging to the voter.
// MemoryTx uses the snapshot to undo writes when a transaction fails.
func (s *MemoryStore) snapshotVoter(voterID uuid.UUID) map[uuid.UUID]*models.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(map[uuid.UUID]*models.Credential)
	for id, c := range s.credentials {
		if c.VoterID != nil && *c.VoterID == voterID {
			snap[id] = copyCredential(c)
		}
	}
	return snap
}

// restoreVoter replaces the voter's rows with a prior snapshot, dropping any
// row inserted since it was taken.
func (s *MemoryStore) restoreVoter(voterID uuid.UUID, snap map[uuid.UUID]*models.Credential) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.credentials {
		if c.VoterID != nil && *c.VoterID == voterID {
			delete(s.credentials, id)
		}
	}
	for id, c := range snap {
		s.credentials[id] = copyCredential(c)
	}
}

func copyCredential(c *models.Credential) *models.Credential {
	copied := *c
	if c.VoterID != nil {
		v := *c.VoterID
		copied.VoterID = &v
	}
	if c.UsedAt != nil {
		t := *c.UsedAt
		copied.UsedAt = &t
	}
	if c.DeliveredAt != nil {
		t := *c.DeliveredAt
		copied.DeliveredAt = &t
	}
	return &copied
}
