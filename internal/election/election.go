// Package election answers the single question every handshake and cast asks
// first: is the voting window open right now.
package election

import (
	"time"

	"github.com/cyvote/backend-cyvote-sub001/internal/platform/config"
)

// Schedule reports whether the election accepts handshakes and ballots.
type Schedule interface {
	IsActive(now time.Time) bool
}

// Window is a fixed start/end schedule taken from configuration.
type Window struct {
	start time.Time
	end   time.Time
}

// NewWindow builds a Window schedule. A zero start means "already open"; a
// zero end means "never closes", which keeps local development friction-free.
func NewWindow(cfg config.Election) *Window {
	return &Window{start: cfg.Start, end: cfg.End}
}

func (w *Window) IsActive(now time.Time) bool {
	if !w.start.IsZero() && now.Before(w.start) {
		return false
	}
	if !w.end.IsZero() && !now.Before(w.end) {
		return false
	}
	return true
}

// Static is a fixed answer schedule for tests.
type Static struct {
	Active bool
}

func (s *Static) IsActive(time.Time) bool { return s.Active }
