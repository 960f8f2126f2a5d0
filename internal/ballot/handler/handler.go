// Package handler exposes the ballot over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cyvote/backend-cyvote-sub001/internal/ballot/models"
	"github.com/cyvote/backend-cyvote-sub001/internal/capability"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/middleware"
	"github.com/cyvote/backend-cyvote-sub001/internal/transport/http/shared"
	dErrors "github.com/cyvote/backend-cyvote-sub001/pkg/domain-errors"
)

// Service defines the interface for ballot operations.
type Service interface {
	CastVote(ctx context.Context, voterID, candidateID uuid.UUID) (string, error)
	Status(ctx context.Context, voterID uuid.UUID) (models.Status, error)
}

// Handler handles the /ballot endpoints.
type Handler struct {
	ballot   Service
	verifier middleware.CapabilityVerifier
	revoked  capability.RevocationList
	tokenTTL time.Duration
	logger   *slog.Logger
}

// New creates a ballot Handler. tokenTTL is the authenticated capability
// lifetime; revocation entries only need to outlive the token they shadow.
func New(
	ballot Service,
	verifier middleware.CapabilityVerifier,
	revoked capability.RevocationList,
	tokenTTL time.Duration,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		ballot:   ballot,
		verifier: verifier,
		revoked:  revoked,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

// Register mounts the ballot routes behind the authenticated capability.
func (h *Handler) Register(r chi.Router) {
	r.Route("/ballot", func(r chi.Router) {
		r.Use(middleware.RequireCapability(h.verifier, capability.PurposeAuthenticated, h.logger))
		r.Post("/cast", h.handleCast)
		r.Get("/status", h.handleStatus)
	})
}

type castRequest struct {
	CandidateID string `json:"candidate_id"`
}

type castResponse struct {
	ReceiptCode string `json:"receipt_code"`
}

func (h *Handler) handleCast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	voterID, err := uuid.Parse(middleware.GetVoterID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "voter ID missing from context despite capability middleware",
			"request_id", requestID,
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	// A capability spent on a successful cast cannot cast again, even
	// within its lifetime.
	jti := middleware.GetTokenID(ctx)
	revoked, err := h.revoked.IsRevoked(ctx, jti)
	if err != nil {
		h.logger.ErrorContext(ctx, "revocation check failed",
			"request_id", requestID,
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeUnavailable, "unable to verify capability"))
		return
	}
	if revoked {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "capability has been spent"))
		return
	}

	var req castRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	candidateID, err := uuid.Parse(req.CandidateID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "candidate_id must be a UUID"))
		return
	}

	receiptCode, err := h.ballot.CastVote(ctx, voterID, candidateID)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "cast failed",
				"request_id", requestID,
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}

	// The vote is committed; a failure to revoke only means the store
	// conflict catches the replay instead.
	if err := h.revoked.Revoke(ctx, jti, h.tokenTTL); err != nil {
		h.logger.WarnContext(ctx, "failed to revoke spent capability",
			"request_id", requestID,
			"error", err.Error(),
		)
	}

	shared.WriteJSON(w, http.StatusOK, castResponse{ReceiptCode: receiptCode})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	voterID, err := uuid.Parse(middleware.GetVoterID(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "voter ID missing from context despite capability middleware",
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	status, err := h.ballot.Status(ctx, voterID)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) {
			h.logger.ErrorContext(ctx, "status failed",
				"request_id", middleware.GetRequestID(ctx),
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, status)
}
