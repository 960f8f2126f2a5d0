package audit

import "time"

// EventCategory classifies audit events by their primary purpose. This
// enables different retention policies and routing downstream.
type EventCategory string

const (
	// CategoryCompliance covers events with legal significance for the
	// election record. These require long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to monitoring and forensics,
	// such as failed handshakes and replayed credentials.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity useful for debugging.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
//
// Ballot secrecy: events recording a cast MUST NOT carry the candidate
// identifier anywhere, including Details.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	ActorID   string
	Action    Action
	Status    string
	Reason    string
	RequestID string
	Details   map[string]string
}

// Action names a thing that happened.
type Action string

const (
	// Credential lifecycle
	ActionCredentialIssued    Action = "credential_issued"
	ActionCredentialDelivered Action = "credential_delivered"
	ActionCredentialResent    Action = "credential_resent"

	// Handshake
	ActionVoterIdentified    Action = "voter_identified"
	ActionIdentifyFailed     Action = "identify_failed"
	ActionCredentialRedeemed Action = "credential_redeemed"
	ActionRedeemFailed       Action = "redeem_failed"
	ActionCredentialReplayed Action = "credential_replayed"

	// Ballot
	ActionVoteCast     Action = "vote_cast"
	ActionVoteConflict Action = "vote_conflict"
)

var actionCategories = map[Action]EventCategory{
	ActionCredentialIssued:    CategoryOperations,
	ActionCredentialDelivered: CategoryOperations,
	ActionCredentialResent:    CategoryCompliance,

	ActionVoterIdentified:    CategoryOperations,
	ActionIdentifyFailed:     CategorySecurity,
	ActionCredentialRedeemed: CategoryOperations,
	ActionRedeemFailed:       CategorySecurity,
	ActionCredentialReplayed: CategorySecurity,

	ActionVoteCast:     CategoryCompliance,
	ActionVoteConflict: CategorySecurity,
}

// Category returns the EventCategory for this action. Unknown actions default
// to CategoryOperations.
func (a Action) Category() EventCategory {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)
