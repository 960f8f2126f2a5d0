package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/cyvote/backend-cyvote-sub001/internal/ballot/models"
	"github.com/cyvote/backend-cyvote-sub001/pkg/platform/sentinel"
)

// MemoryStore is an in-memory ballot store guarded by a RWMutex.
type MemoryStore struct {
	mu           sync.RWMutex
	candidates   map[uuid.UUID]*models.Candidate
	votes        map[uuid.UUID]*models.Vote
	votesByVoter map[uuid.UUID]uuid.UUID
	integrity    map[uuid.UUID]*models.VoteIntegrityRecord
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		candidates:   make(map[uuid.UUID]*models.Candidate),
		votes:        make(map[uuid.UUID]*models.Vote),
		votesByVoter: make(map[uuid.UUID]uuid.UUID),
		integrity:    make(map[uuid.UUID]*models.VoteIntegrityRecord),
	}
}

func (s *MemoryStore) InsertCandidate(_ context.Context, candidate *models.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.candidates[candidate.ID]; exists {
		return sentinel.ErrConflict
	}
	copied := *candidate
	s.candidates[candidate.ID] = &copied
	return nil
}

func (s *MemoryStore) FindCandidateByID(_ context.Context, id uuid.UUID) (*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.candidates[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *MemoryStore) ListCandidates(_ context.Context) ([]*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Candidate, 0, len(s.candidates))
	for _, c := range s.candidates {
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FullName < out[j].FullName
	})
	return out, nil
}

// InsertVote enforces the one-vote-per-voter constraint the way the database
// unique index does: the second insert for a voter fails with ErrConflict.
func (s *MemoryStore) InsertVote(_ context.Context, vote *models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.votesByVoter[vote.VoterID]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.votes[vote.ID]; exists {
		return sentinel.ErrConflict
	}
	copied := *vote
	s.votes[vote.ID] = &copied
	s.votesByVoter[vote.VoterID] = vote.ID
	return nil
}

func (s *MemoryStore) InsertIntegrityRecord(_ context.Context, record *models.VoteIntegrityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.integrity[record.ID]; exists {
		return sentinel.ErrConflict
	}
	copied := *record
	s.integrity[record.ID] = &copied
	return nil
}

func (s *MemoryStore) FindVoteByVoter(_ context.Context, voterID uuid.UUID) (*models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	voteID, ok := s.votesByVoter[voterID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *s.votes[voteID]
	return &copied, nil
}

func (s *MemoryStore) CountByCandidate(_ context.Context) ([]models.CandidateTally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[uuid.UUID]int)
	for _, v := range s.votes {
		counts[v.CandidateID]++
	}
	out := make([]models.CandidateTally, 0, len(counts))
	for id, n := range counts {
		out = append(out, models.CandidateTally{CandidateID: id, Votes: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Votes != out[j].Votes {
			return out[i].Votes > out[j].Votes
		}
		return out[i].CandidateID.String() < out[j].CandidateID.String()
	})
	return out, nil
}

// IntegrityRecordForVote supports verification tests.
func (s *MemoryStore) IntegrityRecordForVote(voteID uuid.UUID) (*models.VoteIntegrityRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.integrity {
		if r.VoteID == voteID {
			copied := *r
			return &copied, true
		}
	}
	return nil, false
}

// snapshotVoter captures the voter's vote rows so MemoryTx can undo a failed
// transaction.
func (s *MemoryStore) snapshotVoter(voterID uuid.UUID) (vote *models.Vote, records []*models.VoteIntegrityRecord) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	voteID, ok := s.votesByVoter[voterID]
	if !ok {
		return nil, nil
	}
	copied := *s.votes[voteID]
	vote = &copied
	for _, r := range s.integrity {
		if r.VoteID == voteID {
			rc := *r
			records = append(records, &rc)
		}
	}
	return vote, records
}

// restoreVoter rolls the voter's rows back to a prior snapshot.
func (s *MemoryStore) restoreVoter(voterID uuid.UUID, vote *models.Vote, records []*models.VoteIntegrityRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if voteID, ok := s.votesByVoter[voterID]; ok {
		for id, r := range s.integrity {
			if r.VoteID == voteID {
				delete(s.integrity, id)
			}
		}
		delete(s.votes, voteID)
		delete(s.votesByVoter, voterID)
	}
	if vote != nil {
		copied := *vote
		s.votes[vote.ID] = &copied
		s.votesByVoter[voterID] = vote.ID
		for _, r := range records {
			rc := *r
			s.integrity[r.ID] = &rc
		}
	}
}
