// Package issuer creates credentials for voters that lack one.
package issuer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cyvote/backend-cyvote-sub001/internal/audit"
	"github.com/cyvote/backend-cyvote-sub001/internal/credential/keygen"
	"github.com/cyvote/backend-cyvote-sub001/internal/credential/models"
	"github.com/cyvote/backend-cyvote-sub001/internal/credential/store"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/config"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/metrics"
	votermodels "github.com/cyvote/backend-cyvote-sub001/internal/voter/models"
	"github.com/cyvote/backend-cyvote-sub001/pkg/platform/sentinel"
)

// VoterDirectory is the slice of the voter store the issuer needs.
type VoterDirectory interface {
	ListActive(ctx context.Context) ([]*votermodels.Voter, error)
}

// AuditPublisher emits audit events for issued credentials.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// Service issues credentials in batch. Each voter is processed
// independently: one failure increments the counter and the run continues,
// which makes re-running after partial failure safe.
type Service struct {
	voters      VoterDirectory
	credentials store.Store
	cfg         config.Credential
	logger      *slog.Logger
	metrics     *metrics.Metrics
	auditor     AuditPublisher
	clock       func() time.Time
}

type Option func(*Service)

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func WithAuditPublisher(auditor AuditPublisher) Option {
	return func(s *Service) { s.auditor = auditor }
}

func New(voters VoterDirectory, credentials store.Store, cfg config.Credential, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		voters:      voters,
		credentials: credentials,
		cfg:         cfg,
		logger:      logger,
		metrics:     m,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueForAllPending creates one credential for every non-deleted voter that
// has not voted and has no active credential. Idempotent at voter
// granularity: voters already holding an active credential are skipped, so a
// re-run after partial failure targets only the remainder.
func (s *Service) IssueForAllPending(ctx context.Context) (models.IssueSummary, error) {
	voters, err := s.voters.ListActive(ctx)
	if err != nil {
		return models.IssueSummary{}, err
	}

	var summary models.IssueSummary
	for _, voter := range voters {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		// A ballot already cast consumes the credential for good; minting a
		// replacement would mail a voter something the handshake accepts but
		// the cast must reject.
		if voter.HasVoted {
			continue
		}

		_, err := s.credentials.FindActiveByVoter(ctx, voter.ID)
		if err == nil {
			continue // already holds an active credential
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			summary.Total++
			summary.Failed++
			s.logger.ErrorContext(ctx, "active credential lookup failed",
				"error", err,
				"voter_id", voter.ID,
			)
			continue
		}

		summary.Total++
		if err := s.issueOne(ctx, voter.ID); err != nil {
			summary.Failed++
			s.logger.ErrorContext(ctx, "credential issuance failed",
				"error", err,
				"voter_id", voter.ID,
			)
			continue
		}
		summary.Issued++
		s.metrics.CredentialsIssued.Inc()
	}

	s.logger.InfoContext(ctx, "issuance run complete",
		"issued", summary.Issued,
		"failed", summary.Failed,
		"total", summary.Total,
	)
	return summary, nil
}

func (s *Service) issueOne(ctx context.Context, voterID uuid.UUID) error {
	_, hash, err := keygen.Mint(ctx, s.cfg.Length, s.cfg.MaxGenAttempts, s.credentials.ExistsByHash)
	if err != nil {
		return err
	}

	credential := &models.Credential{
		ID:          uuid.New(),
		VoterID:     &voterID,
		Hash:        hash,
		GeneratedAt: s.clock(),
		ResendCount: 0,
	}
	if err := s.credentials.Insert(ctx, credential); err != nil {
		return err
	}

	if s.auditor != nil {
		s.auditor.Emit(ctx, audit.Event{
			Action:  audit.ActionCredentialIssued,
			Status:  audit.StatusSuccess,
			ActorID: voterID.String(),
		})
	}
	return nil
}
