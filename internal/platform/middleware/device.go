package middleware

import (
	"context"
	"net/http"

	"github.com/mssola/useragent"
)

type contextKeyDevice struct{}

// ContextKeyDevice carries the caller's device summary.
var ContextKeyDevice = contextKeyDevice{}

// Device condenses the User-Agent header into a browser/OS summary and
// stores it in the request context, so security audit events can attribute
// the device behind a failed handshake.
func Device(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if summary := DeviceSummary(r.Header.Get("User-Agent")); summary != "" {
			r = r.WithContext(context.WithValue(r.Context(), ContextKeyDevice, summary))
		}
		next.ServeHTTP(w, r)
	})
}

// DeviceSummary renders a User-Agent string as "Browser version (OS)".
// Unparseable agents collapse to "unknown" rather than echoing the raw
// header into audit storage.
func DeviceSummary(raw string) string {
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return "unknown"
	}
	summary := name
	if version != "" {
		summary += " " + version
	}
	if os := ua.OS(); os != "" {
		summary += " (" + os + ")"
	}
	if ua.Bot() {
		summary += " [bot]"
	}
	return summary
}

// GetDevice returns the device summary, or "" when none was captured.
func GetDevice(ctx context.Context) string {
	device, ok := ctx.Value(ContextKeyDevice).(string)
	if !ok {
		return ""
	}
	return device
}
