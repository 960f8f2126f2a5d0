// Package hashutil holds the deterministic hashing used by the credential and
// ballot paths. Both sides of a comparison (issuance vs redemption, cast vs
// verification) must go through these functions so the bytes always agree.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// CredentialHash canonicalizes a credential plaintext and returns its SHA-256
// as lowercase hex. Input is uppercased first so comparison is
// case-insensitive while storage stays canonical.
func CredentialHash(plaintext string) string {
	sum := sha256.Sum256([]byte(strings.ToUpper(plaintext)))
	return hex.EncodeToString(sum[:])
}

// VoteHash computes the integrity hash for a cast ballot from its composite
// key. The timestamp is rendered in RFC 3339 so the hash is reproducible from
// the stored cast time.
func VoteHash(voterID, candidateID string, castAt time.Time, salt string) string {
	payload := voterID + candidateID + castAt.UTC().Format(time.RFC3339) + salt
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// ReceiptCode derives the public proof-of-vote from an integrity hash:
// "VOTE-" followed by the first 8 hex characters, uppercased.
func ReceiptCode(voteHash string) string {
	return "VOTE-" + strings.ToUpper(voteHash[:8])
}
