package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxResends is the lifetime resend quota per voter.
const MaxResends = 3

// Credential is a one-time secret bound to a voter. Only the hash is ever
// persisted; the plaintext exists in memory just long enough to be mailed.
//
// Invariant: at most one credential per voter has IsUsed=false at any time.
// Creating a new one must first invalidate all prior unused credentials for
// that voter.
type Credential struct {
	ID uuid.UUID
	// VoterID is nullable: removing a voter orphans their credentials
	// instead of destroying the issuance record.
	VoterID     *uuid.UUID
	Hash        string
	GeneratedAt time.Time
	UsedAt      *time.Time
	IsUsed      bool
	ResendCount int
	// DeliveredAt marks distribution completion; NULL means the distributor
	// still owes this credential a send.
	DeliveredAt *time.Time
}

// RemainingResends returns how many resends the quota still allows.
func (c *Credential) RemainingResends() int {
	remaining := MaxResends - c.ResendCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IssueSummary reports one issuance batch run.
type IssueSummary struct {
	Issued int `json:"issued"`
	Failed int `json:"failed"`
	Total  int `json:"total"`
}

// DeliverySummary reports one distribution run.
type DeliverySummary struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
	Batches int `json:"batches"`
}

// ResendResult reports a completed administrator resend.
type ResendResult struct {
	ResendCount      int `json:"resend_count"`
	RemainingResends int `json:"remaining_resends"`
}
