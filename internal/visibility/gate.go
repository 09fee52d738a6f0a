package visibility

import (
	"sync"
	"time"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/models"
	"github.com/sirupsen/logrus"
)

// Scheduler is the part of the live scheduler the gate controls
type Scheduler interface {
	Start(game models.GameRef, interval time.Duration) error
	Stop()
	RefreshNow()
}

// LivenessSource reports whether the game is in live play
type LivenessSource interface {
	IsLive() bool
}

// Gate pauses polling while nobody is watching a game and catches up as soon
// as someone is. Only transitions of the foreground signal have an effect.
type Gate struct {
	game      models.GameRef
	interval  time.Duration
	scheduler Scheduler
	liveness  LivenessSource
	log       logrus.FieldLogger

	mu         sync.Mutex
	foreground bool
}

// NewGate creates a gate that starts out backgrounded
func NewGate(game models.GameRef, interval time.Duration, scheduler Scheduler, liveness LivenessSource, log logrus.FieldLogger) *Gate {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Gate{
		game:      game,
		interval:  interval,
		scheduler: scheduler,
		liveness:  liveness,
		log: log.WithFields(logrus.Fields{
			"component": "visibility",
			"game_id":   game.ID,
		}),
	}
}

// Foreground reports the last observed signal
func (g *Gate) Foreground() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.foreground
}

// SetForeground feeds the host's foreground signal. It reports whether the
// call was a transition.
func (g *Gate) SetForeground(foreground bool) bool {
	g.mu.Lock()
	if g.foreground == foreground {
		g.mu.Unlock()
		return false
	}
	g.foreground = foreground
	g.mu.Unlock()

	if foreground {
		g.onForeground()
	} else {
		g.onBackground()
	}
	return true
}

func (g *Gate) onForeground() {
	if g.liveness == nil || !g.liveness.IsLive() {
		g.log.Debug("Foregrounded, game not live")
		return
	}
	g.log.Info("Foregrounded, resuming live updates")
	if err := g.scheduler.Start(g.game, g.interval); err != nil {
		g.log.WithError(err).Error("Failed to resume live updates")
		return
	}
	g.scheduler.RefreshNow()
}

func (g *Gate) onBackground() {
	g.log.Info("Backgrounded, pausing live updates")
	g.scheduler.Stop()
}
