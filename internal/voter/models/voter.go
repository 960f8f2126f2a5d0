package models

import (
	"time"

	"github.com/google/uuid"
)

// Voter is the identity record for one registered voter.
//
// Invariant: HasVoted is true exactly when one Vote row references this
// voter. The flag is flipped only inside the cast transaction.
type Voter struct {
	ID                 uuid.UUID
	RegistrationNumber string
	DisplayName        string
	CohortYear         int
	Email              string
	HasVoted           bool
	VotedAt            *time.Time
	DeletedAt          *time.Time
}

// Deleted reports whether the voter is soft-deleted and therefore excluded
// from issuance, handshake, and casting.
func (v *Voter) Deleted() bool {
	return v.DeletedAt != nil
}

// PublicSummary is the non-sensitive slice of a voter returned by the
// identify step.
type PublicSummary struct {
	RegistrationNumber string `json:"registration_number"`
	DisplayName        string `json:"display_name"`
}
