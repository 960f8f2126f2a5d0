// Package resend implements the administrator-triggered credential resend:
// invalidate the voter's active credential, issue a replacement against a
// strict lifetime quota, and deliver it immediately — all inside one
// transaction serialized per voter by a row lock.
package resend

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
	"github.com/cyvote/backend-cyvote-sub001/internal/election"
	"github.com/cyvote/backend-cyvote-sub001/internal/mailer"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/config"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/metrics"
	votermodels "github.com/cyvote/backend-cyvote-sub001/internal/voter/models"
	dErrors "github.com/cyvote/backend-cyvote-sub001/pkg/domain-errors"
	"github.com/cyvote/backend-cyvote-sub001/pkg/platform/sentinel"
)

// VoterLookup resolves the resend target.
type VoterLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*votermodels.Voter, error)
}

// AuditPublisher records completed resends for the compliance trail.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// Service coordinates credential resends.
type Service struct {
	voters      VoterLookup
	credentials store.Store
	tx          store.Tx
	mail        mailer.Mailer
	schedule    election.Schedule
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

func New(
	voters VoterLookup,
	credentials store.Store,
	tx store.Tx,
	mail mailer.Mailer,
	schedule election.Schedule,
	cfg config.Credential,
	logger *slog.Logger,
	m *metrics.Metrics,
	opts ...Option,
) *Service {
	s := &Service{
		voters:      voters,
		credentials: credentials,
		tx:          tx,
		mail:        mail,
		schedule:    schedule,
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

// Resend replaces the voter's active credential and mails the new plaintext.
//
// Preconditions are checked in order, each a distinct failure: voter exists;
// election active; an active credential exists; it is unused; quota not
// exhausted. The write path then re-reads the credential under a row lock so
// two concurrent resends for the same voter cannot both pass the quota check:
// the loser blocks until the winner commits and re-evaluates against the new
// state. Any failure, including delivery, rolls the whole transaction back
// and leaves the prior credential untouched.
func (s *Service) Resend(ctx context.Context, voterID uuid.UUID, requestedBy string) (models.ResendResult, error) {
	voter, err := s.voters.FindByID(ctx, voterID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.ResendResult{}, dErrors.New(dErrors.CodeNotFound, "voter not found")
		}
		return models.ResendResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "voter lookup failed")
	}

	if !s.schedule.IsActive(s.clock()) {
		return models.ResendResult{}, dErrors.New(dErrors.CodePreconditionFailed, "election is not active")
	}

	active, err := s.credentials.FindActiveByVoter(ctx, voterID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.ResendResult{}, dErrors.New(dErrors.CodeNotFound, "voter has no active credential")
		}
		return models.ResendResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "credential lookup failed")
	}
	if active.IsUsed {
		return models.ResendResult{}, dErrors.New(dErrors.CodeConflict, "credential already used")
	}
	if active.ResendCount >= s.cfg.MaxResends {
		return models.ResendResult{}, dErrors.New(dErrors.CodeQuotaExhausted, "resend quota exhausted")
	}

	var result models.ResendResult
	err = s.tx.RunInTx(ctx, voterID, func(txStore store.TxStore) error {
		// Re-read under the row lock: a concurrent resend may have committed
		// since the pre-check, changing the quota or the active credential.
		locked, err := txStore.LockActiveByVoter(ctx, voterID)
		if errors.Is(err, sentinel.ErrNotFound) {
			// Under read committed, a loser unblocked by the winner's commit
			// skips the invalidated row but cannot see the replacement in
			// the same statement. A fresh statement sees it.
			locked, err = txStore.LockActiveByVoter(ctx, voterID)
		}
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "voter has no active credential")
			}
			return err
		}
		if locked.ResendCount >= s.cfg.MaxResends {
			return dErrors.New(dErrors.CodeQuotaExhausted, "resend quota exhausted")
		}

		now := s.clock()
		if _, err := txStore.InvalidateAllForVoter(ctx, voterID, now); err != nil {
			return err
		}

		plaintext, hash, err := keygen.Mint(ctx, s.cfg.Length, s.cfg.MaxGenAttempts, s.credentials.ExistsByHash)
		if err != nil {
			return err
		}

		replacement := &models.Credential{
			ID:          uuid.New(),
			VoterID:     &voterID,
			Hash:        hash,
			GeneratedAt: now,
			ResendCount: locked.ResendCount + 1,
		}
		if err := txStore.Insert(ctx, replacement); err != nil {
			return err
		}

		err = s.mail.Send(ctx, mailer.Message{
			To:          voter.Email,
			DisplayName: voter.DisplayName,
			Credential:  plaintext,
		})
		if err != nil {
			// Rolls back the replacement; the old credential survives.
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "credential delivery failed")
		}
		if err := txStore.MarkDelivered(ctx, replacement.ID, s.clock()); err != nil {
			return err
		}

		result = models.ResendResult{
			ResendCount:      replacement.ResendCount,
			RemainingResends: replacement.RemainingResends(),
		}
		return nil
	})
	if err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return models.ResendResult{}, err
		}
		return models.ResendResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "credential resend failed")
	}

	s.metrics.CredentialResends.Inc()
	if s.auditor != nil {
		s.auditor.Emit(ctx, audit.Event{
			Action:  audit.ActionCredentialResent,
			Status:  audit.StatusSuccess,
			ActorID: voterID.String(),
			Details: map[string]string{
				"requested_by": requestedBy,
			},
		})
	}
	s.logger.InfoContext(ctx, "credential resent",
		"voter_id", voterID,
		"resend_count", result.ResendCount,
		"requested_by", requestedBy,
	)
	return result, nil
}
