// Package models defines the ballot records. A Vote is written exactly once
// and never updated or deleted here.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Candidate is one entry on the ballot. The roster is loaded at election
// setup; this core only reads it.
type Candidate struct {
	ID       uuid.UUID
	FullName string
	Platform string
}

// Vote is the immutable record of a single ballot. At most one exists per
// voter, enforced by a storage uniqueness constraint on the voter reference.
type Vote struct {
	ID          uuid.UUID
	VoterID     uuid.UUID
	CandidateID uuid.UUID
	VoteHash    string
	ReceiptCode string
	CastAt      time.Time
}

// VoteIntegrityRecord mirrors the vote hash for an out-of-band verification
// pass. It is written in the same transaction as its Vote.
type VoteIntegrityRecord struct {
	ID               uuid.UUID
	VoteID           uuid.UUID
	VoteHash         string
	VerificationHash string
	CreatedAt        time.Time
}

// Status is the voter-facing view of their own ballot.
type Status struct {
	HasVoted    bool   `json:"has_voted"`
	ReceiptCode string `json:"receipt_code,omitempty"`
}

// CandidateTally pairs a candidate with their vote count. Tallying itself
// lives outside this core; the count is exposed for it.
type CandidateTally struct {
	CandidateID uuid.UUID `json:"candidate_id"`
	Votes       int       `json:"votes"`
}
