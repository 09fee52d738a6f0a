package lifecycle

import (
	"sync"
	"time"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/models"
	"github.com/sirupsen/logrus"
)

// Scheduler is the part of the live scheduler the monitor drives
type Scheduler interface {
	Start(game models.GameRef, interval time.Duration) error
	Stop()
}

// ForegroundSource reports whether anyone is watching the game
type ForegroundSource interface {
	Foreground() bool
}

// Monitor tracks one game's authoritative status and starts or stops the
// scheduler when the game moves into or out of live play. Repeated
// observations of the same status do nothing.
type Monitor struct {
	game      models.GameRef
	interval  time.Duration
	scheduler Scheduler
	log       logrus.FieldLogger

	mu          sync.Mutex
	status      Status
	transitions int
	foreground  ForegroundSource
}

// NewMonitor creates a monitor in the unknown state
func NewMonitor(game models.GameRef, interval time.Duration, scheduler Scheduler, log logrus.FieldLogger) *Monitor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Monitor{
		game:      game,
		interval:  interval,
		scheduler: scheduler,
		status:    StatusUnknown,
		log: log.WithFields(logrus.Fields{
			"component": "lifecycle",
			"game_id":   game.ID,
		}),
	}
}

// SetForegroundSource attaches the visibility signal consulted when the game goes live.
// Without one the game counts as foregrounded.
func (m *Monitor) SetForegroundSource(src ForegroundSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.foreground = src
}

// Status returns the last observed status
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsLive reports whether the game is currently in live play
func (m *Monitor) IsLive() bool {
	return m.Status() == StatusLive
}

// Transitions counts observed status changes
func (m *Monitor) Transitions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitions
}

// Observe records a status code from a live snapshot or the games listing and
// returns the resulting status. Empty codes carry no information and are ignored.
func (m *Monitor) Observe(code models.StatusCode) Status {
	if code == "" {
		return m.Status()
	}
	next := FromCode(code)

	m.mu.Lock()
	prev := m.status
	if prev == next {
		m.mu.Unlock()
		return next
	}
	m.status = next
	m.transitions++
	src := m.foreground
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"from": string(prev),
		"to":   string(next),
		"code": string(code),
	}).Info("Game status changed")

	switch {
	case next == StatusLive:
		if src != nil && !src.Foreground() {
			m.log.Debug("Game is live but not watched, not starting")
			return next
		}
		if err := m.scheduler.Start(m.game, m.interval); err != nil {
			m.log.WithError(err).Error("Failed to start live updates")
		}
	case prev == StatusLive:
		m.scheduler.Stop()
	}
	return next
}
