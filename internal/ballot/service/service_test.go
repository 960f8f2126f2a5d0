package service

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/cyvote/backend-cyvote-sub001/internal/audit"
	"github.com/cyvote/backend-cyvote-sub001/internal/ballot/models"
	ballotstore "github.com/cyvote/backend-cyvote-sub001/internal/ballot/store"
	"github.com/cyvote/backend-cyvote-sub001/internal/election"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/metrics"
	votermodels "github.com/cyvote/backend-cyvote-sub001/internal/voter/models"
	voterstore "github.com/cyvote/backend-cyvote-sub001/internal/voter/store"
	dErrors "github.com/cyvote/backend-cyvote-sub001/pkg/domain-errors"
)

const testSalt = "unit-test-salt"

type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAuditor) Emit(_ context.Context, event audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *recordingAuditor) all() []audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]audit.Event, len(a.events))
	copy(out, a.events)
	return out
}

type BallotSuite struct {
	suite.Suite

	voters    *voterstore.MemoryStore
	ballots   *ballotstore.MemoryStore
	schedule  *election.Static
	auditor   *recordingAuditor
	svc       *Service
	voter     *votermodels.Voter
	candidate *models.Candidate
}

func TestBallotSuite(t *testing.T) {
	suite.Run(t, new(BallotSuite))
}

func (s *BallotSuite) SetupTest() {
	s.voters = voterstore.NewMemory()
	s.ballots = ballotstore.NewMemory()
	s.schedule = &election.Static{Active: true}
	s.auditor = &recordingAuditor{}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.svc = New(
		s.voters,
		s.ballots,
		ballotstore.NewMemoryTx(s.ballots, s.voters),
		s.schedule,
		testSalt,
		logger,
		metrics.NewForTest(),
		WithAuditPublisher(s.auditor),
	)

	s.voter = &votermodels.Voter{
		ID:                 uuid.New(),
		RegistrationNumber: "2024-0001",
		DisplayName:        "Chidi Okeke",
		Email:              "chidi@example.edu",
	}
	s.Require().NoError(s.voters.Insert(context.Background(), s.voter))

	s.candidate = &models.Candidate{
		ID:       uuid.New(),
		FullName: "Amina Yusuf",
		Platform: "transparency first",
	}
	s.Require().NoError(s.ballots.InsertCandidate(context.Background(), s.candidate))
}

func (s *BallotSuite) TestCastVoteProducesReceipt() {
	ctx := context.Background()

	receipt, err := s.svc.CastVote(ctx, s.voter.ID, s.candidate.ID)
	s.Require().NoError(err)
	s.Regexp(regexp.MustCompile(`^VOTE-[0-9A-F]{8}$`), receipt)

	vote, err := s.ballots.FindVoteByVoter(ctx, s.voter.ID)
	s.Require().NoError(err)
	s.Equal(receipt, vote.ReceiptCode)
	s.Equal(s.candidate.ID, vote.CandidateID)

	record, ok := s.ballots.IntegrityRecordForVote(vote.ID)
	s.Require().True(ok)
	s.Equal(vote.VoteHash, record.VoteHash)
	s.Equal(vote.VoteHash, record.VerificationHash)

	voter, err := s.voters.FindByID(ctx, s.voter.ID)
	s.Require().NoError(err)
	s.True(voter.HasVoted)
	s.NotNil(voter.VotedAt)
}

func (s *BallotSuite) TestCastVotePreChecks() {
	ctx := context.Background()

	s.Run("election closed", func() {
		s.schedule.Active = false
		defer func() { s.schedule.Active = true }()
		_, err := s.svc.CastVote(ctx, s.voter.ID, s.candidate.ID)
		s.Equal(dErrors.CodePreconditionFailed, dErrors.CodeOf(err))
	})

	s.Run("unknown candidate", func() {
		_, err := s.svc.CastVote(ctx, s.voter.ID, uuid.New())
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})

	s.Run("unknown voter", func() {
		_, err := s.svc.CastVote(ctx, uuid.New(), s.candidate.ID)
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})

	s.Run("already voted", func() {
		_, err := s.svc.CastVote(ctx, s.voter.ID, s.candidate.ID)
		s.Require().NoError(err)

		_, err = s.svc.CastVote(ctx, s.voter.ID, s.candidate.ID)
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
	})
}

func (s *BallotSuite) TestCastAuditOmitsCandidate() {
	ctx := context.Background()

	_, err := s.svc.CastVote(ctx, s.voter.ID, s.candidate.ID)
	s.Require().NoError(err)

	events := s.auditor.all()
	s.Require().NotEmpty(events)
	for _, e := range events {
		s.NotContains(e.Reason, s.candidate.ID.String())
		for k, v := range e.Details {
			s.NotContains(v, s.candidate.ID.String(), "audit detail %q leaks the candidate", k)
		}
	}

	cast := events[len(events)-1]
	s.Equal(audit.ActionVoteCast, cast.Action)
	s.Equal(s.voter.ID.String(), cast.ActorID)
	s.False(cast.Timestamp.IsZero())
}

func (s *BallotSuite) TestStatusReturnsStoredReceipt() {
	ctx := context.Background()

	status, err := s.svc.Status(ctx, s.voter.ID)
	s.Require().NoError(err)
	s.False(status.HasVoted)
	s.Empty(status.ReceiptCode)

	receipt, err := s.svc.CastVote(ctx, s.voter.ID, s.candidate.ID)
	s.Require().NoError(err)

	status, err = s.svc.Status(ctx, s.voter.ID)
	s.Require().NoError(err)
	s.True(status.HasVoted)
	s.Equal(receipt, status.ReceiptCode)
}

func (s *BallotSuite) TestStatusRequiresActiveElection() {
	s.schedule.Active = false
	_, err := s.svc.Status(context.Background(), s.voter.ID)
	s.Equal(dErrors.CodePreconditionFailed, dErrors.CodeOf(err))
}

func TestConcurrentCastsYieldOneVote(t *testing.T) {
	ctx := context.Background()
	voters := voterstore.NewMemory()
	ballots := ballotstore.NewMemory()

	voter := &votermodels.Voter{
		ID:                 uuid.New(),
		RegistrationNumber: "2024-0055",
		DisplayName:        "Kemi Lawal",
		Email:              "kemi@example.edu",
	}
	require.NoError(t, voters.Insert(ctx, voter))

	candidate := &models.Candidate{ID: uuid.New(), FullName: "Ibrahim Musa"}
	require.NoError(t, ballots.InsertCandidate(ctx, candidate))

	svc := New(
		voters,
		ballots,
		ballotstore.NewMemoryTx(ballots, voters),
		&election.Static{Active: true},
		testSalt,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics.NewForTest(),
	)

	const attempts = 8
	var wg sync.WaitGroup
	type outcome struct {
		receipt string
		err     error
	}
	results := make(chan outcome, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			receipt, err := svc.CastVote(ctx, voter.ID, candidate.ID)
			results <- outcome{receipt: receipt, err: err}
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for r := range results {
		if r.err == nil {
			succeeded++
			require.NotEmpty(t, r.receipt)
		} else {
			require.Equal(t, dErrors.CodeConflict, dErrors.CodeOf(r.err))
		}
	}
	require.Equal(t, 1, succeeded)

	tallies, err := ballots.CountByCandidate(ctx)
	require.NoError(t, err)
	require.Len(t, tallies, 1)
	require.Equal(t, 1, tallies[0].Votes)
}
