// Package capability mints and verifies the signed, short-lived bearer
// assertions that carry a voter through the handshake: a session capability
// proves identification, an authenticated capability proves a redeemed
// credential. Each purpose is only accepted where it was minted for.
package capability

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cyvote/backend-cyvote-sub001/internal/platform/config"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/middleware"
	dErrors "github.com/cyvote/backend-cyvote-sub001/pkg/domain-errors"
)

const (
	// PurposeSession marks a capability minted at identification. It grants
	// access to credential redemption only.
	PurposeSession = "session"
	// PurposeAuthenticated marks a capability minted at redemption. It
	// grants access to ballot operations.
	PurposeAuthenticated = "authenticated"
)

// Claims represents the JWT claims for our capability tokens.
type Claims struct {
	VoterID      string `json:"voter_id"`
	CredentialID string `json:"credential_id,omitempty"`
	Purpose      string `json:"purpose"`
	jwt.RegisteredClaims
}

// Service handles capability creation and validation.
type Service struct {
	signingKey       []byte
	issuer           string
	sessionTTL       time.Duration
	authenticatedTTL time.Duration
	clock            func() time.Time
}

type Option func(*Service)

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func NewService(cfg config.Capability, opts ...Option) *Service {
	s := &Service{
		signingKey:       []byte(cfg.SigningKey),
		issuer:           cfg.Issuer,
		sessionTTL:       cfg.SessionTTL,
		authenticatedTTL: cfg.AuthenticatedTTL,
		clock:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueSession mints the capability handed out after a successful
// identification.
func (s *Service) IssueSession(voterID uuid.UUID) (string, error) {
	return s.issue(Claims{
		VoterID: voterID.String(),
		Purpose: PurposeSession,
	}, s.sessionTTL)
}

// IssueAuthenticated mints the capability handed out after a credential is
// redeemed. It records which credential authenticated the voter.
func (s *Service) IssueAuthenticated(voterID, credentialID uuid.UUID) (string, error) {
	return s.issue(Claims{
		VoterID:      voterID.String(),
		CredentialID: credentialID.String(),
		Purpose:      PurposeAuthenticated,
	}, s.authenticatedTTL)
}

func (s *Service) issue(claims Claims, ttl time.Duration) (string, error) {
	now := s.clock()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    s.issuer,
		ID:        uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign capability")
	}
	return signed, nil
}

// Verify validates the token signature, expiry and purpose. Expired,
// forged and mispurposed tokens all come back as the same unauthorized
// error so callers cannot probe token state.
func (s *Service) Verify(tokenString, purpose string) (*middleware.CapabilityClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithTimeFunc(s.clock), jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "capability has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid capability")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid capability")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid capability claims")
	}
	if claims.Purpose != purpose {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid capability")
	}

	return &middleware.CapabilityClaims{
		VoterID:      claims.VoterID,
		CredentialID: claims.CredentialID,
		TokenID:      claims.ID,
		Purpose:      claims.Purpose,
	}, nil
}
