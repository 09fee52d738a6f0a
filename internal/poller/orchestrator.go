package poller

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/lifecycle"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/retry"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/tracker"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const DefaultRefreshSpec = "@every 1m"

// GamesCache mirrors game listings and statuses
type GamesCache interface {
	WriteGamesForDate(ctx context.Context, date string, games []models.Game) error
	WriteGameStatus(ctx context.Context, gameID string, status lifecycle.Status) error
}

// Metrics is what the orchestrator and its trackers report to
type Metrics interface {
	tracker.Metrics
	SetTrackedGames(n int)
}

// Options tunes the orchestrator
type Options struct {
	Tracker          tracker.Config
	RefreshSpec      string
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
}

// Orchestrator owns one tracker per watched game and keeps every tracked
// game's lifecycle status fresh from the games listing on a cron schedule
type Orchestrator struct {
	provider contracts.GameDataProvider
	cache    GamesCache
	sinks    tracker.Sinks
	metrics  Metrics
	opts     Options
	log      logrus.FieldLogger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	cron   *cron.Cron

	mu       sync.Mutex
	trackers map[string]*tracker.Tracker
	known    map[string]models.Game
}

// NewOrchestrator creates a new orchestrator. cache and metrics may be nil.
func NewOrchestrator(
	provider contracts.GameDataProvider,
	cache GamesCache,
	sinks tracker.Sinks,
	metrics Metrics,
	opts Options,
	log logrus.FieldLogger,
) *Orchestrator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.RefreshSpec == "" {
		opts.RefreshSpec = DefaultRefreshSpec
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		provider: provider,
		cache:    cache,
		sinks:    sinks,
		metrics:  metrics,
		opts:     opts,
		log:      log.WithField("component", "orchestrator"),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		cron:     cron.New(),
		trackers: make(map[string]*tracker.Tracker),
		known:    make(map[string]models.Game),
	}
}

// Run schedules the games-listing refresh and blocks until ctx is done,
// then stops every tracker
func (o *Orchestrator) Run(ctx context.Context) error {
	if _, err := o.cron.AddFunc(o.opts.RefreshSpec, func() { o.RefreshAll(o.ctx) }); err != nil {
		return fmt.Errorf("scheduling games refresh %q: %w", o.opts.RefreshSpec, err)
	}
	o.cron.Start()
	o.log.WithField("spec", o.opts.RefreshSpec).Info("Games refresh scheduled")

	go o.RefreshAll(o.ctx)

	select {
	case <-ctx.Done():
	case <-o.ctx.Done():
	}
	o.Shutdown()
	return nil
}

// Shutdown stops the refresh schedule and every tracker
func (o *Orchestrator) Shutdown() {
	o.cancel()
	<-o.cron.Stop().Done()

	o.mu.Lock()
	trackers := make([]*tracker.Tracker, 0, len(o.trackers))
	for _, t := range o.trackers {
		trackers = append(trackers, t)
	}
	o.trackers = make(map[string]*tracker.Tracker)
	o.mu.Unlock()

	for _, t := range trackers {
		t.Close()
	}
	o.reportTracked(0)
	o.log.WithField("trackers", len(trackers)).Info("Orchestrator stopped")
}

// Track returns the game's tracker, creating it on first use. A new tracker's
// status is unknown until the next refresh of its date, which is kicked off
// right away.
func (o *Orchestrator) Track(gameID string) (*tracker.Tracker, error) {
	id, err := models.ParseGameID(gameID)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	if t, ok := o.trackers[gameID]; ok {
		o.mu.Unlock()
		return t, nil
	}
	ref := models.GameRef{ID: gameID}
	known, isKnown := o.known[gameID]
	if isKnown {
		ref.PK = known.GamePK
	}
	t := tracker.New(ref, o.provider, o.opts.Tracker, o.sinks, o.metrics, o.log)
	o.trackers[gameID] = t
	total := len(o.trackers)
	o.mu.Unlock()

	o.reportTracked(total)
	o.log.WithFields(logrus.Fields{"game_id": gameID, "game_pk": ref.PK}).Info("Tracking game")

	if isKnown {
		t.ObserveStatus(known.StatusCode)
	} else {
		go func() {
			if err := o.RefreshDate(o.ctx, id.DateString()); err != nil {
				o.log.WithError(err).WithField("date", id.DateString()).Warn("Initial games refresh failed")
			}
		}()
	}
	return t, nil
}

// Tracker returns the game's tracker if it is tracked
func (o *Orchestrator) Tracker(gameID string) (*tracker.Tracker, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.trackers[gameID]
	return t, ok
}

// TrackedGames returns the tracked game ids, sorted
func (o *Orchestrator) TrackedGames() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.trackers))
	for id := range o.trackers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetGameForeground routes aggregated viewer visibility to the game's tracker
func (o *Orchestrator) SetGameForeground(gameID string, foreground bool) {
	t, ok := o.Tracker(gameID)
	if !ok {
		if !foreground {
			return
		}
		var err error
		if t, err = o.Track(gameID); err != nil {
			o.log.WithError(err).WithField("game_id", gameID).Warn("Cannot track game")
			return
		}
	}
	t.SetForeground(foreground)
}

// RefreshAll refreshes today's listing and the listing of every date with a
// tracked game, then drops trackers nobody watches whose game is over
func (o *Orchestrator) RefreshAll(ctx context.Context) {
	dates := map[string]bool{o.now().Format("2006-01-02"): true}
	for _, gameID := range o.TrackedGames() {
		if id, err := models.ParseGameID(gameID); err == nil {
			dates[id.DateString()] = true
		}
	}

	for date := range dates {
		if err := o.RefreshDate(ctx, date); err != nil {
			o.log.WithError(err).WithField("date", date).Warn("Games refresh failed")
		}
	}
	o.prune()
}

// RefreshDate fetches the games listing for a date and feeds each tracked
// game's status code to its lifecycle monitor
func (o *Orchestrator) RefreshDate(ctx context.Context, date string) error {
	policy := retry.NewRetryPolicy(o.opts.RetryMaxAttempts, o.opts.RetryBaseDelay, o.opts.RetryMaxDelay)

	var games []models.Game
	err := policy.Execute(ctx, func(ctx context.Context) error {
		var err error
		games, err = o.provider.FetchGamesForDate(ctx, date)
		return err
	})
	if err != nil {
		if o.metrics != nil {
			o.metrics.RecordError("games_refresh")
		}
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	o.mu.Lock()
	for _, g := range games {
		o.known[g.ID] = g
	}
	o.mu.Unlock()

	if o.cache != nil {
		if err := o.cache.WriteGamesForDate(ctx, date, games); err != nil {
			o.log.WithError(err).WithField("date", date).Warn("Failed to cache games listing")
		}
	}

	observed := 0
	for _, g := range games {
		t, ok := o.Tracker(g.ID)
		if !ok {
			continue
		}
		status := t.ObserveStatus(g.StatusCode)
		observed++
		if o.cache != nil {
			if err := o.cache.WriteGameStatus(ctx, g.ID, status); err != nil {
				o.log.WithError(err).WithField("game_id", g.ID).Warn("Failed to cache game status")
			}
		}
	}

	o.log.WithFields(logrus.Fields{
		"date":     date,
		"games":    len(games),
		"observed": observed,
	}).Debug("Games listing refreshed")
	return nil
}

// prune drops trackers that are finished and unwatched
func (o *Orchestrator) prune() {
	o.mu.Lock()
	var dropped []*tracker.Tracker
	for id, t := range o.trackers {
		if t.Status().IsTerminal() && !t.Foreground() {
			dropped = append(dropped, t)
			delete(o.trackers, id)
		}
	}
	total := len(o.trackers)
	o.mu.Unlock()

	for _, t := range dropped {
		t.Close()
		o.log.WithField("game_id", t.Game().ID).Info("Stopped tracking finished game")
	}
	if len(dropped) > 0 {
		o.reportTracked(total)
	}
}

func (o *Orchestrator) reportTracked(n int) {
	if o.metrics != nil {
		o.metrics.SetTrackedGames(n)
	}
}
