// Package shared centralizes JSON response writing so every handler emits
// the same envelopes.
package shared

import (
	"encoding/json"
	"net/http"

	dErrors "github.com/cyvote/backend-cyvote-sub001/pkg/domain-errors"
)

// ErrorResponse is the JSON error envelope returned by every endpoint.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteError translates a domain error into its HTTP status and envelope.
// Unclassified errors map to 500 without leaking their message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := ErrorResponse{
		Error:            string(code),
		ErrorDescription: dErrors.MessageOf(err),
	}
	if code == dErrors.CodeInternal {
		resp.ErrorDescription = "internal error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dErrors.ToHTTPStatus(code))
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteJSON writes a success payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
