// Package handshake implements the two-step voter authentication: identify
// by registration number, then redeem a credential for an authenticated
// capability. Identification failures are deliberately uninformative so the
// endpoint cannot be used to enumerate the voter roll.
package handshake

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
	credstore "github.com/cyvote/backend-cyvote-sub001/internal/credential/store"
	"github.com/cyvote/backend-cyvote-sub001/internal/election"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/metrics"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/middleware"
	votermodels "github.com/cyvote/backend-cyvote-sub001/internal/voter/models"
	dErrors "github.com/cyvote/backend-cyvote-sub001/pkg/domain-errors"
	"github.com/cyvote/backend-cyvote-sub001/pkg/hashutil"
	"github.com/cyvote/backend-cyvote-sub001/pkg/platform/sentinel"
)

var tracer = otel.Tracer("github.com/cyvote/backend-cyvote-sub001/internal/handshake")

// VoterDirectory is the roll slice the handshake needs.
type VoterDirectory interface {
	FindByRegistrationNumber(ctx context.Context, registrationNumber string) (*votermodels.Voter, error)
	FindByID(ctx context.Context, id uuid.UUID) (*votermodels.Voter, error)
}

// CapabilityIssuer mints the bearer assertions handed out at each step.
type CapabilityIssuer interface {
	IssueSession(voterID uuid.UUID) (string, error)
	IssueAuthenticated(voterID, credentialID uuid.UUID) (string, error)
}

// AuditPublisher records handshake outcomes, successful and failed alike.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// IdentifyResult is the identify-step response: a session capability plus
// the voter facts shown on the confirmation screen.
type IdentifyResult struct {
	Capability string
	Voter      votermodels.PublicSummary
}

// Service drives both handshake steps.
type Service struct {
	voters       VoterDirectory
	credentials  credstore.Store
	capabilities CapabilityIssuer
	schedule     election.Schedule
	logger       *slog.Logger
	metrics      *metrics.Metrics
	auditor      AuditPublisher
	clock        func() time.Time
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
	credentials credstore.Store,
	capabilities CapabilityIssuer,
	schedule election.Schedule,
	logger *slog.Logger,
	m *metrics.Metrics,
	opts ...Option,
) *Service {
	s := &Service{
		voters:       voters,
		credentials:  credentials,
		capabilities: capabilities,
		schedule:     schedule,
		logger:       logger,
		metrics:      m,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Identify resolves a registration number to a session capability. Unknown
// and soft-deleted voters produce the same generic rejection; the attempted
// number goes to the security log and audit trail, never to the caller.
func (s *Service) Identify(ctx context.Context, registrationNumber string) (IdentifyResult, error) {
	ctx, span := tracer.Start(ctx, "handshake.identify")
	defer span.End()

	if registrationNumber == "" {
		return IdentifyResult{}, dErrors.New(dErrors.CodeBadRequest, "registration number is required")
	}
	if !s.schedule.IsActive(s.clock()) {
		return IdentifyResult{}, dErrors.New(dErrors.CodePreconditionFailed, "election is not active")
	}

	voter, err := s.voters.FindByRegistrationNumber(ctx, registrationNumber)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return IdentifyResult{}, s.rejectIdentify(ctx, registrationNumber, "unknown registration number")
		}
		return IdentifyResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "voter lookup failed")
	}
	if voter.Deleted() {
		return IdentifyResult{}, s.rejectIdentify(ctx, registrationNumber, "voter is deleted")
	}

	capability, err := s.capabilities.IssueSession(voter.ID)
	if err != nil {
		return IdentifyResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue session capability")
	}

	span.SetAttributes(attribute.String("voter_id", voter.ID.String()))
	s.metrics.HandshakeOutcomes.WithLabelValues("identify", "success").Inc()
	if s.auditor != nil {
		s.auditor.Emit(ctx, audit.Event{
			Action:  audit.ActionVoterIdentified,
			Status:  audit.StatusSuccess,
			ActorID: voter.ID.String(),
		})
	}

	return IdentifyResult{
		Capability: capability,
		Voter: votermodels.PublicSummary{
			RegistrationNumber: voter.RegistrationNumber,
			DisplayName:        voter.DisplayName,
		},
	}, nil
}

func (s *Service) rejectIdentify(ctx context.Context, registrationNumber, reason string) error {
	trace.SpanFromContext(ctx).SetStatus(codes.Error, reason)
	s.logger.WarnContext(ctx, "identification rejected",
		"attempted_number", registrationNumber,
		"reason", reason,
	)
	s.metrics.HandshakeOutcomes.WithLabelValues("identify", "failure").Inc()
	if s.auditor != nil {
		details := map[string]string{
			"attempted_number": registrationNumber,
		}
		if device := middleware.GetDevice(ctx); device != "" {
			details["device"] = device
		}
		s.auditor.Emit(ctx, audit.Event{
			Action:  audit.ActionIdentifyFailed,
			Status:  audit.StatusFailure,
			Reason:  reason,
			Details: details,
		})
	}
	// One message for every cause.
	return dErrors.New(dErrors.CodeUnauthorized, "registration number not recognized")
}

// Redeem consumes the credential matching the supplied plaintext and mints
// the authenticated capability. An unknown credential and a replayed one are
// distinct failures: the replay is the security-relevant event. The
// credential is consumed before the capability exists, so a crash in between
// burns the credential rather than leaving two live capabilities.
func (s *Service) Redeem(ctx context.Context, voterID uuid.UUID, plaintext string) (string, error) {
	ctx, span := tracer.Start(ctx, "handshake.redeem",
		trace.WithAttributes(attribute.String("voter_id", voterID.String())))
	defer span.End()

	if len(plaintext) < 6 || len(plaintext) > 64 {
		return "", dErrors.New(dErrors.CodeBadRequest, "credential must be between 6 and 64 characters")
	}
	if !s.schedule.IsActive(s.clock()) {
		return "", dErrors.New(dErrors.CodePreconditionFailed, "election is not active")
	}

	hash := hashutil.CredentialHash(plaintext)
	credential, err := s.credentials.FindByVoterAndHash(ctx, voterID, hash)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", s.rejectRedeem(ctx, voterID, audit.ActionRedeemFailed, "credential not recognized",
				dErrors.New(dErrors.CodeUnauthorized, "credential not recognized"))
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "credential lookup failed")
	}
	if credential.IsUsed {
		return "", s.rejectRedeem(ctx, voterID, audit.ActionCredentialReplayed, "credential already used",
			dErrors.New(dErrors.CodeConflict, "credential already used"))
	}

	err = s.credentials.MarkUsed(ctx, credential.ID, s.clock())
	if err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			// Lost the race against a concurrent redeem of the same credential.
			return "", s.rejectRedeem(ctx, voterID, audit.ActionCredentialReplayed, "credential already used",
				dErrors.New(dErrors.CodeConflict, "credential already used"))
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume credential")
	}

	capability, err := s.capabilities.IssueAuthenticated(voterID, credential.ID)
	if err != nil {
		// The credential is already burnt; an admin resend is the recovery
		// path, same as a lost email.
		s.logger.ErrorContext(ctx, "capability mint failed after credential consumption",
			"voter_id", voterID,
			"credential_id", credential.ID,
			"error", err,
		)
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue authenticated capability")
	}

	s.metrics.HandshakeOutcomes.WithLabelValues("redeem", "success").Inc()
	if s.auditor != nil {
		s.auditor.Emit(ctx, audit.Event{
			Action:  audit.ActionCredentialRedeemed,
			Status:  audit.StatusSuccess,
			ActorID: voterID.String(),
			Details: map[string]string{
				"credential_id": credential.ID.String(),
			},
		})
	}
	return capability, nil
}

func (s *Service) rejectRedeem(ctx context.Context, voterID uuid.UUID, action audit.Action, reason string, err error) error {
	trace.SpanFromContext(ctx).SetStatus(codes.Error, reason)
	s.logger.WarnContext(ctx, "credential redemption rejected",
		"voter_id", voterID,
		"reason", reason,
	)
	s.metrics.HandshakeOutcomes.WithLabelValues("redeem", "failure").Inc()
	if s.auditor != nil {
		event := audit.Event{
			Action:  action,
			Status:  audit.StatusFailure,
			ActorID: voterID.String(),
			Reason:  reason,
		}
		if device := middleware.GetDevice(ctx); device != "" {
			event.Details = map[string]string{"device": device}
		}
		s.auditor.Emit(ctx, event)
	}
	return err
}
