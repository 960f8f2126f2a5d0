// Package service implements vote casting and status. Casting is the
// terminal operation of the pipeline: it validates eligibility, writes the
// vote and its integrity record in one transaction, and flips the voter's
// voted flag. The audit record for a cast carries the voter and timestamp
// but never the chosen candidate.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cyvote/backend-cyvote-sub001/internal/audit"
	"github.com/cyvote/backend-cyvote-sub001/internal/ballot/models"
	"github.com/cyvote/backend-cyvote-sub001/internal/ballot/store"
	"github.com/cyvote/backend-cyvote-sub001/internal/election"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/metrics"
	votermodels "github.com/cyvote/backend-cyvote-sub001/internal/voter/models"
	dErrors "github.com/cyvote/backend-cyvote-sub001/pkg/domain-errors"
	"github.com/cyvote/backend-cyvote-sub001/pkg/hashutil"
	"github.com/cyvote/backend-cyvote-sub001/pkg/platform/sentinel"
)

var tracer = otel.Tracer("github.com/cyvote/backend-cyvote-sub001/internal/ballot/service")

// VoterDirectory is the voter slice the caster needs.
type VoterDirectory interface {
	FindByID(ctx context.Context, id uuid.UUID) (*votermodels.Voter, error)
}

// AuditPublisher records cast outcomes.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// Service casts and reports ballots.
type Service struct {
	voters   VoterDirectory
	ballots  store.Store
	tx       store.Tx
	schedule election.Schedule
	voteSalt string
	logger   *slog.Logger
	metrics  *metrics.Metrics
	auditor  AuditPublisher
	clock    func() time.Time
}

type Option func(*Service)

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func WithAuditPublisher(auditor AuditPublisher) Option {
	return func(s *Service) { s.auditor = auditor }
}

func New(
	voters VoterDirectory,
	ballots store.Store,
	tx store.Tx,
	schedule election.Schedule,
	voteSalt string,
	logger *slog.Logger,
	m *metrics.Metrics,
	opts ...Option,
) *Service {
	s := &Service{
		voters:   voters,
		ballots:  ballots,
		tx:       tx,
		schedule: schedule,
		voteSalt: voteSalt,
		logger:   logger,
		metrics:  m,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CastVote records the voter's single ballot and returns the receipt code.
//
// Four checks run in order before any write: election active, candidate
// exists, voter exists, voter has not voted. The hasVoted read can still
// race a concurrent cast, so the unique constraint on votes(voter_id) is the
// authority: a conflict surfacing at commit is reclassified as already-voted
// rather than an internal failure.
func (s *Service) CastVote(ctx context.Context, voterID, candidateID uuid.UUID) (string, error) {
	ctx, span := tracer.Start(ctx, "ballot.cast",
		trace.WithAttributes(attribute.String("voter_id", voterID.String())))
	defer span.End()

	if !s.schedule.IsActive(s.clock()) {
		span.SetStatus(codes.Error, "election not active")
		return "", dErrors.New(dErrors.CodePreconditionFailed, "election is not active")
	}

	if _, err := s.ballots.FindCandidateByID(ctx, candidateID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			span.SetStatus(codes.Error, "candidate not found")
			return "", dErrors.New(dErrors.CodeNotFound, "candidate not found")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "candidate lookup failed")
	}

	voter, err := s.voters.FindByID(ctx, voterID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			span.SetStatus(codes.Error, "voter not found")
			return "", dErrors.New(dErrors.CodeNotFound, "voter not found")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "voter lookup failed")
	}
	if voter.HasVoted {
		return "", s.alreadyVoted(ctx, voterID)
	}

	castAt := s.clock().UTC()
	voteHash := hashutil.VoteHash(voterID.String(), candidateID.String(), castAt, s.voteSalt)
	receiptCode := hashutil.ReceiptCode(voteHash)

	err = s.tx.RunInTx(ctx, voterID, func(txStore store.TxStore) error {
		vote := &models.Vote{
			ID:          uuid.New(),
			VoterID:     voterID,
			CandidateID: candidateID,
			VoteHash:    voteHash,
			ReceiptCode: receiptCode,
			CastAt:      castAt,
		}
		if err := txStore.InsertVote(ctx, vote); err != nil {
			return err
		}
		record := &models.VoteIntegrityRecord{
			ID:               uuid.New(),
			VoteID:           vote.ID,
			VoteHash:         voteHash,
			VerificationHash: hashutil.VoteHash(voterID.String(), candidateID.String(), castAt, s.voteSalt),
			CreatedAt:        castAt,
		}
		if err := txStore.InsertIntegrityRecord(ctx, record); err != nil {
			return err
		}
		return txStore.MarkVoterVoted(ctx, voterID, castAt)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost the race past the hasVoted pre-check.
			return "", s.alreadyVoted(ctx, voterID)
		}
		span.SetStatus(codes.Error, "cast transaction failed")
		s.logger.ErrorContext(ctx, "cast transaction failed",
			"voter_id", voterID,
			"error", err,
		)
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to record vote")
	}

	s.metrics.VotesCast.Inc()
	if s.auditor != nil {
		// Ballot secrecy: no candidate reference, only who voted and when.
		s.auditor.Emit(ctx, audit.Event{
			Action:    audit.ActionVoteCast,
			Status:    audit.StatusSuccess,
			ActorID:   voterID.String(),
			Timestamp: castAt,
		})
	}
	s.logger.InfoContext(ctx, "vote cast",
		"voter_id", voterID,
	)
	return receiptCode, nil
}

func (s *Service) alreadyVoted(ctx context.Context, voterID uuid.UUID) error {
	trace.SpanFromContext(ctx).SetStatus(codes.Error, "already voted")
	s.metrics.VoteConflicts.Inc()
	if s.auditor != nil {
		s.auditor.Emit(ctx, audit.Event{
			Action:  audit.ActionVoteConflict,
			Status:  audit.StatusFailure,
			ActorID: voterID.String(),
			Reason:  "already voted",
		})
	}
	return dErrors.New(dErrors.CodeConflict, "voter has already voted")
}

// Status reports whether the voter has voted and, if so, the receipt code
// stored at cast time. The code is never recomputed.
func (s *Service) Status(ctx context.Context, voterID uuid.UUID) (models.Status, error) {
	ctx, span := tracer.Start(ctx, "ballot.status")
	defer span.End()

	if !s.schedule.IsActive(s.clock()) {
		return models.Status{}, dErrors.New(dErrors.CodePreconditionFailed, "election is not active")
	}

	voter, err := s.voters.FindByID(ctx, voterID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Status{}, dErrors.New(dErrors.CodeNotFound, "voter not found")
		}
		return models.Status{}, dErrors.Wrap(err, dErrors.CodeInternal, "voter lookup failed")
	}
	if !voter.HasVoted {
		return models.Status{HasVoted: false}, nil
	}

	vote, err := s.ballots.FindVoteByVoter(ctx, voterID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// hasVoted set without a vote row breaks the core invariant.
			s.logger.ErrorContext(ctx, "voter flagged as voted but no vote row exists",
				"voter_id", voterID,
			)
			return models.Status{}, dErrors.New(dErrors.CodeInternal, "ballot state inconsistent")
		}
		return models.Status{}, dErrors.Wrap(err, dErrors.CodeInternal, "vote lookup failed")
	}

	return models.Status{
		HasVoted:    true,
		ReceiptCode: vote.ReceiptCode,
	}, nil
}
