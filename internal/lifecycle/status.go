package lifecycle

import (
	"strings"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/models"
)

// Status is the lifecycle phase of a game
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusFinal     Status = "final"
	StatusPostponed Status = "postponed"
	StatusSuspended Status = "suspended"
)

// codedGameState values published by the MLB stats feed
var statusByCode = map[models.StatusCode]Status{
	"S": StatusScheduled, // Scheduled
	"P": StatusScheduled, // Pre-Game
	"W": StatusScheduled, // Warmup
	"I": StatusLive,      // In Progress
	"M": StatusLive,      // Manager challenge
	"N": StatusLive,      // Umpire review
	"F": StatusFinal,     // Final
	"O": StatusFinal,     // Game Over
	"Q": StatusFinal,     // Completed early
	"D": StatusPostponed, // Postponed
	"C": StatusPostponed, // Cancelled
	"U": StatusSuspended, // Suspended
	"T": StatusSuspended, // Suspended, resumption scheduled
}

// FromCode maps a structured status code to a lifecycle status.
// Free-text state descriptions are never consulted.
func FromCode(code models.StatusCode) Status {
	c := models.StatusCode(strings.ToUpper(strings.TrimSpace(string(code))))
	if s, ok := statusByCode[c]; ok {
		return s
	}
	return StatusUnknown
}

// IsTerminal reports whether no further live play is expected today
func (s Status) IsTerminal() bool {
	return s == StatusFinal || s == StatusPostponed || s == StatusSuspended
}
