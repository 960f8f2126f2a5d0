// Package distributor delivers issued credentials by mail in paced batches.
//
// Because only hashes are at rest, the distributor cannot resend the
// plaintext generated at issuance. It mints a fresh plaintext per send and
// overwrites the stored hash before dispatch, so a plaintext never exists
// outside the moment of delivery.
package distributor

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
	"github.com/cyvote/backend-cyvote-sub001/internal/mailer"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/config"
	"github.com/cyvote/backend-cyvote-sub001/internal/platform/metrics"
	votermodels "github.com/cyvote/backend-cyvote-sub001/internal/voter/models"
	"github.com/cyvote/backend-cyvote-sub001/pkg/platform/sentinel"
)

// VoterLookup resolves a credential's owner to a mailable identity.
type VoterLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*votermodels.Voter, error)
}

// AuditPublisher emits delivery audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

// Distributor is the long-running, self-paced delivery job. Each item's
// delivery commits independently, so cancellation between items never leaves
// a batch half-applied.
type Distributor struct {
	credentials store.Store
	voters      VoterLookup
	mail        mailer.Mailer
	cfg         config.Credential
	logger      *slog.Logger
	metrics     *metrics.Metrics
	auditor     AuditPublisher
	clock       func() time.Time
}

type Option func(*Distributor)

func WithClock(clock func() time.Time) Option {
	return func(d *Distributor) { d.clock = clock }
}

func WithAuditPublisher(auditor AuditPublisher) Option {
	return func(d *Distributor) { d.auditor = auditor }
}

func New(credentials store.Store, voters VoterLookup, mail mailer.Mailer, cfg config.Credential, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Distributor {
	d := &Distributor{
		credentials: credentials,
		voters:      voters,
		mail:        mail,
		cfg:         cfg,
		logger:      logger,
		metrics:     m,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run sweeps for undelivered credentials until the context is cancelled.
func (d *Distributor) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		if _, err := d.DeliverPending(ctx); err != nil && ctx.Err() == nil {
			d.logger.ErrorContext(ctx, "distribution sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// DeliverPending performs one full distribution run: all undelivered, unused
// credentials, in fixed-size batches with a pacing delay between batches to
// respect outbound mail throughput limits. Per-item failures are counted and
// skipped, never propagated.
func (d *Distributor) DeliverPending(ctx context.Context) (models.DeliverySummary, error) {
	pending, err := d.credentials.ListUndelivered(ctx)
	if err != nil {
		return models.DeliverySummary{}, err
	}

	summary := models.DeliverySummary{Total: len(pending)}
	for start := 0; start < len(pending); start += d.cfg.BatchSize {
		if summary.Batches > 0 {
			// Pacing delay, cancellable so shutdown never waits a full minute.
			select {
			case <-ctx.Done():
				return summary, ctx.Err()
			case <-time.After(d.cfg.BatchDelay):
			}
		}

		end := start + d.cfg.BatchSize
		if end > len(pending) {
			end = len(pending)
		}
		summary.Batches++

		for _, credential := range pending[start:end] {
			if err := ctx.Err(); err != nil {
				return summary, err
			}
			if err := d.deliverOne(ctx, credential); err != nil {
				if errors.Is(err, sentinel.ErrAlreadyUsed) {
					// A resend or cast invalidated the row after the sweep
					// listed it; the replacement surfaces on the next sweep.
					summary.Skipped++
					continue
				}
				summary.Failed++
				d.metrics.DeliveryFailures.Inc()
				d.logger.ErrorContext(ctx, "credential delivery failed",
					"error", err,
					"credential_id", credential.ID,
				)
				continue
			}
			summary.Sent++
			d.metrics.CredentialsDelivered.Inc()
		}
	}

	if summary.Total > 0 {
		d.logger.InfoContext(ctx, "distribution run complete",
			"sent", summary.Sent,
			"skipped", summary.Skipped,
			"failed", summary.Failed,
			"total", summary.Total,
			"batches", summary.Batches,
		)
	}
	return summary, nil
}

func (d *Distributor) deliverOne(ctx context.Context, credential *models.Credential) error {
	if credential.VoterID == nil {
		return errOrphaned
	}
	voter, err := d.voters.FindByID(ctx, *credential.VoterID)
	if err != nil {
		return err
	}

	// Fresh plaintext for this send; the hash at rest is replaced before the
	// mail leaves so the delivered secret is the one that redeems.
	plaintext, hash, err := keygen.Mint(ctx, d.cfg.Length, d.cfg.MaxGenAttempts, d.credentials.ExistsByHash)
	if err != nil {
		return err
	}
	if err := d.credentials.ReplaceHash(ctx, credential.ID, hash, d.clock()); err != nil {
		return err
	}

	err = d.mail.Send(ctx, mailer.Message{
		To:          voter.Email,
		DisplayName: voter.DisplayName,
		Credential:  plaintext,
	})
	if err != nil {
		return err
	}

	if err := d.credentials.MarkDelivered(ctx, credential.ID, d.clock()); err != nil {
		return err
	}

	if d.auditor != nil {
		d.auditor.Emit(ctx, audit.Event{
			Action:  audit.ActionCredentialDelivered,
			Status:  audit.StatusSuccess,
			ActorID: voter.ID.String(),
		})
	}
	return nil
}

var errOrphaned = errors.New("credential has no owning voter")
