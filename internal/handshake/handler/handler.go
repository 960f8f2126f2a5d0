// Package handler exposes the handshake over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cyvote/backend-cyvote-sub001/internal/capability"
	"github.com/cyvote/backend-cyvote-sub001/internal/handshake"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/middleware"
	"github.com/cyvote/backend-cyvote-sub001/internal/transport/http/shared"
	dErrors "github.com/cyvote/backend-cyvote-sub001/pkg/domain-errors"
)

// Service defines the interface for handshake operations.
type Service interface {
	Identify(ctx context.Context, registrationNumber string) (handshake.IdentifyResult, error)
	Redeem(ctx context.Context, voterID uuid.UUID, plaintext string) (string, error)
}

// Handler handles the /auth endpoints.
type Handler struct {
	handshake        Service
	verifier         middleware.CapabilityVerifier
	authenticatedTTL time.Duration
	logger           *slog.Logger
}

func New(service Service, verifier middleware.CapabilityVerifier, authenticatedTTL time.Duration, logger *slog.Logger) *Handler {
	return &Handler{
		handshake:        service,
		verifier:         verifier,
		authenticatedTTL: authenticatedTTL,
		logger:           logger,
	}
}

// Register mounts the handshake routes. Identify is public; Redeem requires
// the session capability Identify handed out.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/identify", h.handleIdentify)
	r.With(middleware.RequireCapability(h.verifier, capability.PurposeSession, h.logger)).
		Post("/auth/redeem", h.handleRedeem)
}

type identifyRequest struct {
	RegistrationNumber string `json:"registration_number"`
}

type voterSummary struct {
	RegistrationNumber string `json:"registration_number"`
	DisplayName        string `json:"display_name"`
}

type identifyResponse struct {
	SessionToken string       `json:"session_token"`
	Voter        voterSummary `json:"voter"`
}

func (h *Handler) handleIdentify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req identifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.handshake.Identify(ctx, req.RegistrationNumber)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "identify failed",
				"request_id", middleware.GetRequestID(ctx),
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, identifyResponse{
		SessionToken: result.Capability,
		Voter: voterSummary{
			RegistrationNumber: result.Voter.RegistrationNumber,
			DisplayName:        result.Voter.DisplayName,
		},
	})
}

type redeemRequest struct {
	Credential string `json:"credential"`
}

type redeemResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	voterID, err := uuid.Parse(middleware.GetVoterID(ctx))
	if err != nil {
		// RequireCapability vouched for the token, so a bad subject here is
		// a programming error, not a caller error.
		h.logger.ErrorContext(ctx, "voter ID missing from context despite capability middleware",
			"request_id", requestID,
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	token, err := h.handshake.Redeem(ctx, voterID, req.Credential)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "redeem failed",
				"request_id", requestID,
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, redeemResponse{
		AccessToken: token,
		ExpiresIn:   int(h.authenticatedTTL.Seconds()),
	})
}
