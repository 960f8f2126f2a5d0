package handshake

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/cyvote/backend-cyvote-sub001/internal/audit"
	"github.com/cyvote/backend-cyvote-sub001/internal/capability"
	credmodels "github.com/cyvote/backend-cyvote-sub001/internal/credential/models"
	credstore "github.com/cyvote/backend-cyvote-sub001/internal/credential/store"
	"github.com/cyvote/backend-cyvote-sub001/internal/election"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/config"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/metrics"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/middleware"
	votermodels "github.com/cyvote/backend-cyvote-sub001/internal/voter/models"
	voterstore "github.com/cyvote/backend-cyvote-sub001/internal/voter/store"
	dErrors "github.com/cyvote/backend-cyvote-sub001/pkg/domain-errors"
	"github.com/cyvote/backend-cyvote-sub001/pkg/hashutil"
)

type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAuditor) Emit(_ context.Context, event audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *recordingAuditor) byAction(action audit.Action) []audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []audit.Event
	for _, e := range a.events {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type HandshakeSuite struct {
	suite.Suite

	voters       *voterstore.MemoryStore
	credentials  *credstore.MemoryStore
	capabilities *capability.Service
	schedule     *election.Static
	auditor      *recordingAuditor
	svc          *Service

	voter     *votermodels.Voter
	plaintext string
}

func TestHandshakeSuite(t *testing.T) {
	suite.Run(t, new(HandshakeSuite))
}

func (s *HandshakeSuite) SetupTest() {
	s.voters = voterstore.NewMemory()
	s.credentials = credstore.NewMemory()
	s.schedule = &election.Static{Active: true}
	s.auditor = &recordingAuditor{}
	s.capabilities = capability.NewService(config.Capability{
		SigningKey:       "handshake-test-key",
		Issuer:           "cyvote",
		SessionTTL:       5 * time.Minute,
		AuthenticatedTTL: 15 * time.Minute,
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.svc = New(
		s.voters,
		s.credentials,
		s.capabilities,
		s.schedule,
		logger,
		metrics.NewForTest(),
		WithAuditPublisher(s.auditor),
	)

	s.voter = &votermodels.Voter{
		ID:                 uuid.New(),
		RegistrationNumber: "2024-0042",
		DisplayName:        "Ngozi Eze",
		Email:              "ngozi@example.edu",
	}
	s.Require().NoError(s.voters.Insert(context.Background(), s.voter))

	s.plaintext = "A7K2M9QX"
	s.Require().NoError(s.credentials.Insert(context.Background(), &credmodels.Credential{
		ID:          uuid.New(),
		VoterID:     &s.voter.ID,
		Hash:        hashutil.CredentialHash(s.plaintext),
		GeneratedAt: time.Now().UTC(),
	}))
}

func (s *HandshakeSuite) TestIdentifyReturnsSessionCapability() {
	result, err := s.svc.Identify(context.Background(), s.voter.RegistrationNumber)
	s.Require().NoError(err)
	s.Equal(s.voter.RegistrationNumber, result.Voter.RegistrationNumber)
	s.Equal(s.voter.DisplayName, result.Voter.DisplayName)

	claims, err := s.capabilities.Verify(result.Capability, capability.PurposeSession)
	s.Require().NoError(err)
	s.Equal(s.voter.ID.String(), claims.VoterID)

	// A session capability must not open ballot endpoints.
	_, err = s.capabilities.Verify(result.Capability, capability.PurposeAuthenticated)
	s.Error(err)
}

func (s *HandshakeSuite) TestIdentifyRejectionsAreUniform() {
	ctx := context.Background()

	deleted := &votermodels.Voter{
		ID:                 uuid.New(),
		RegistrationNumber: "2024-0066",
		DisplayName:        "Gone",
		Email:              "gone@example.edu",
		DeletedAt:          ptrTime(time.Now()),
	}
	s.Require().NoError(s.voters.Insert(ctx, deleted))

	_, unknownErr := s.svc.Identify(ctx, "9999-0000")
	_, deletedErr := s.svc.Identify(ctx, deleted.RegistrationNumber)

	// Unknown and deleted voters must be indistinguishable to the caller.
	s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(unknownErr))
	s.Equal(unknownErr.Error(), deletedErr.Error())

	failures := s.auditor.byAction(audit.ActionIdentifyFailed)
	s.Require().Len(failures, 2)
	s.Equal("9999-0000", failures[0].Details["attempted_number"])
}

func (s *HandshakeSuite) TestRejectionAuditCarriesDeviceSummary() {
	ctx := context.WithValue(context.Background(), middleware.ContextKeyDevice, "Firefox 125.0 (Linux)")

	_, err := s.svc.Identify(ctx, "9999-0000")
	s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))

	failures := s.auditor.byAction(audit.ActionIdentifyFailed)
	s.Require().Len(failures, 1)
	s.Equal("Firefox 125.0 (Linux)", failures[0].Details["device"])

	_, err = s.svc.Redeem(ctx, s.voter.ID, "WRONGCODE")
	s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))

	redeemFailures := s.auditor.byAction(audit.ActionRedeemFailed)
	s.Require().Len(redeemFailures, 1)
	s.Equal("Firefox 125.0 (Linux)", redeemFailures[0].Details["device"])
}

func (s *HandshakeSuite) TestIdentifyRequiresActiveElection() {
	s.schedule.Active = false
	_, err := s.svc.Identify(context.Background(), s.voter.RegistrationNumber)
	s.Equal(dErrors.CodePreconditionFailed, dErrors.CodeOf(err))
}

func (s *HandshakeSuite) TestRedeemConsumesCredential() {
	ctx := context.Background()

	token, err := s.svc.Redeem(ctx, s.voter.ID, s.plaintext)
	s.Require().NoError(err)

	claims, err := s.capabilities.Verify(token, capability.PurposeAuthenticated)
	s.Require().NoError(err)
	s.Equal(s.voter.ID.String(), claims.VoterID)
	s.NotEmpty(claims.CredentialID)

	// The credential is burnt.
	cred, err := s.credentials.FindByVoterAndHash(ctx, s.voter.ID, hashutil.CredentialHash(s.plaintext))
	s.Require().NoError(err)
	s.True(cred.IsUsed)
	s.NotNil(cred.UsedAt)
}

func (s *HandshakeSuite) TestRedeemIsCaseInsensitive() {
	_, err := s.svc.Redeem(context.Background(), s.voter.ID, "a7k2m9qx")
	s.NoError(err)
}

func (s *HandshakeSuite) TestRedeemDistinguishesUnknownFromReplayed() {
	ctx := context.Background()

	s.Run("unknown credential", func() {
		_, err := s.svc.Redeem(ctx, s.voter.ID, "WRONGCODE")
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
		s.Len(s.auditor.byAction(audit.ActionRedeemFailed), 1)
	})

	s.Run("replayed credential", func() {
		_, err := s.svc.Redeem(ctx, s.voter.ID, s.plaintext)
		s.Require().NoError(err)

		_, err = s.svc.Redeem(ctx, s.voter.ID, s.plaintext)
		s.Equal(dErrors.CodeConflict, dErrors.CodeOf(err))
		s.Len(s.auditor.byAction(audit.ActionCredentialReplayed), 1)
	})
}

func (s *HandshakeSuite) TestRedeemScopedToSessionVoter() {
	ctx := context.Background()

	other := &votermodels.Voter{
		ID:                 uuid.New(),
		RegistrationNumber: "2024-0043",
		DisplayName:        "Tunde Bakare",
		Email:              "tunde@example.edu",
	}
	s.Require().NoError(s.voters.Insert(ctx, other))

	// A valid credential belonging to someone else must not redeem.
	_, err := s.svc.Redeem(ctx, other.ID, s.plaintext)
	s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
}

func TestConcurrentRedeemConsumesOnce(t *testing.T) {
	ctx := context.Background()
	voters := voterstore.NewMemory()
	credentials := credstore.NewMemory()

	voter := &votermodels.Voter{
		ID:                 uuid.New(),
		RegistrationNumber: "2024-0077",
		DisplayName:        "Sade Alao",
		Email:              "sade@example.edu",
	}
	require.NoError(t, voters.Insert(ctx, voter))

	const plaintext = "ZX81C64P"
	require.NoError(t, credentials.Insert(ctx, &credmodels.Credential{
		ID:          uuid.New(),
		VoterID:     &voter.ID,
		Hash:        hashutil.CredentialHash(plaintext),
		GeneratedAt: time.Now().UTC(),
	}))

	svc := New(
		voters,
		credentials,
		capability.NewService(config.Capability{
			SigningKey:       "handshake-test-key",
			Issuer:           "cyvote",
			SessionTTL:       5 * time.Minute,
			AuthenticatedTTL: 15 * time.Minute,
		}),
		&election.Static{Active: true},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics.NewForTest(),
	)

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Redeem(ctx, voter.ID, plaintext)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		}
	}
	require.Equal(t, 1, succeeded)
}

func ptrTime(t time.Time) *time.Time { return &t }
