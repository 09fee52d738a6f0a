package tracker

import (
	"context"
	"time"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/classifier"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/lifecycle"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/live"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/pitchindex"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/visibility"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/models"
	"github.com/sirupsen/logrus"
)

const sinkTimeout = 5 * time.Second

// Metrics is the subset of the metrics recorder a tracker reports to
type Metrics interface {
	RecordUpdateApplied(gameID string)
	RecordSessionError(gameID string)
	RecordError(kind string)
}

// Sinks receive a tracker's outbound updates and errors
type Sinks struct {
	Snapshots []contracts.SnapshotSink
	Errors    []contracts.ErrorSink
}

// Config tunes a tracker
type Config struct {
	PollInterval time.Duration
	Live         live.Config
}

// Tracker wires the live engine for one game: the lifecycle monitor and the
// visibility gate both drive the scheduler, applied snapshots feed the monitor,
// reset the pitch index and fan out to the sinks.
type Tracker struct {
	game      models.GameRef
	scheduler *live.Scheduler
	monitor   *lifecycle.Monitor
	gate      *visibility.Gate
	index     *pitchindex.Lazy
	sinks     Sinks
	metrics   Metrics
	log       logrus.FieldLogger
}

// New builds a stopped tracker for game
func New(game models.GameRef, fetcher contracts.SnapshotFetcher, cfg Config, sinks Sinks, metrics Metrics, log logrus.FieldLogger) *Tracker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = live.DefaultPollInterval
	}
	gameLog := log.WithField("game_id", game.ID)

	t := &Tracker{
		game:    game,
		index:   pitchindex.NewLazy(),
		sinks:   sinks,
		metrics: metrics,
		log:     gameLog.WithField("component", "tracker"),
	}

	t.scheduler = live.NewScheduler(fetcher, classifier.New(gameLog), cfg.Live, live.Callbacks{
		OnUpdate: t.onUpdate,
		OnError:  t.onError,
	}, gameLog)
	t.monitor = lifecycle.NewMonitor(game, cfg.PollInterval, t.scheduler, gameLog)
	t.gate = visibility.NewGate(game, cfg.PollInterval, t.scheduler, t.monitor, gameLog)
	t.monitor.SetForegroundSource(t.gate)

	return t
}

// Game returns the tracked game
func (t *Tracker) Game() models.GameRef {
	return t.game
}

// State returns the scheduler's published state
func (t *Tracker) State() live.State {
	return t.scheduler.State()
}

// Status returns the last observed lifecycle status
func (t *Tracker) Status() lifecycle.Status {
	return t.monitor.Status()
}

// Foreground reports whether a viewer is watching
func (t *Tracker) Foreground() bool {
	return t.gate.Foreground()
}

// ObserveStatus feeds a status code obtained outside the live feed
func (t *Tracker) ObserveStatus(code models.StatusCode) lifecycle.Status {
	return t.monitor.Observe(code)
}

// SetForeground feeds the aggregated viewer visibility
func (t *Tracker) SetForeground(foreground bool) {
	t.gate.SetForeground(foreground)
}

// RefreshNow forces a catch-up fetch when the session is running
func (t *Tracker) RefreshNow() {
	t.scheduler.RefreshNow()
}

// GetPitchSequence looks up an at-bat in the most recently applied snapshot.
// It returns nil when there is no such at-bat.
func (t *Tracker) GetPitchSequence(batter string, inning int, halfInning string) *models.AtBatPitchSequence {
	return t.index.Lookup(batter, inning, halfInning)
}

// Close stops polling for good
func (t *Tracker) Close() {
	t.scheduler.Stop()
}

func (t *Tracker) onUpdate(snapshot *models.GameSnapshot) {
	t.index.Reset(snapshot)
	if t.metrics != nil {
		t.metrics.RecordUpdateApplied(t.game.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	for _, sink := range t.sinks.Snapshots {
		if err := sink.SnapshotApplied(ctx, t.game.ID, snapshot); err != nil {
			t.log.WithError(err).Warn("Snapshot sink failed")
			if t.metrics != nil {
				t.metrics.RecordError("sink")
			}
		}
	}

	// observed last so a final status stops the session after viewers got the result
	t.monitor.Observe(snapshot.StatusCode())
}

func (t *Tracker) onError(message string) {
	if t.metrics != nil {
		t.metrics.RecordSessionError(t.game.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	for _, sink := range t.sinks.Errors {
		if err := sink.SessionError(ctx, t.game.ID, message); err != nil {
			t.log.WithError(err).Warn("Error sink failed")
		}
	}
}
