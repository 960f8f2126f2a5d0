// Package handler exposes the administrative credential operations.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cyvote/backend-cyvote-sub001/internal/credential/models"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/middleware"
	"github.com/cyvote/backend-cyvote-sub001/internal/transport/http/shared"
	dErrors "github.com/cyvote/backend-cyvote-sub001/pkg/domain-errors"
)

// Issuer creates credentials for voters who lack one.
type Issuer interface {
	IssueForAllPending(ctx context.Context) (models.IssueSummary, error)
}

// Distributor delivers pending credentials on demand.
type Distributor interface {
	DeliverPending(ctx context.Context) (models.DeliverySummary, error)
}

// Resender replaces a voter's credential under quota.
type Resender interface {
	Resend(ctx context.Context, voterID uuid.UUID, requestedBy string) (models.ResendResult, error)
}

// Handler handles the /admin/credentials endpoints.
type Handler struct {
	issuer      Issuer
	distributor Distributor
	resender    Resender
	adminHash   string
	logger      *slog.Logger
}

func New(
	issuer Issuer,
	distributor Distributor,
	resender Resender,
	adminHash string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		issuer:      issuer,
		distributor: distributor,
		resender:    resender,
		adminHash:   adminHash,
		logger:      logger,
	}
}

// Register mounts the admin routes behind the admin token check.
func (h *Handler) Register(r chi.Router) {
	r.Route("/admin/credentials", func(r chi.Router) {
		r.Use(middleware.RequireAdminToken(h.adminHash, h.logger))
		r.Post("/issue", h.handleIssue)
		r.Post("/distribute", h.handleDistribute)
		r.Post("/resend", h.handleResend)
	})
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	summary, err := h.issuer.IssueForAllPending(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "issuance run failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "issuance failed"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleDistribute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	summary, err := h.distributor.DeliverPending(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "distribution run failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "distribution failed"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, summary)
}

type resendRequest struct {
	VoterID string `json:"voter_id"`
}

func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	var req resendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	voterID, err := uuid.Parse(req.VoterID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "voter_id must be a UUID"))
		return
	}

	result, err := h.resender.Resend(ctx, voterID, "admin-api")
	if err != nil {
		if dErrors.Is(err, dErrors.CodeInternal) || dErrors.Is(err, dErrors.CodeUnavailable) {
			h.logger.ErrorContext(ctx, "resend failed",
				"request_id", requestID,
				"voter_id", voterID,
				"error", err.Error(),
			)
		}
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}
