package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/classifier"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/retry"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/models"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultFetchTimeout = 10 * time.Second
)

var (
	// ErrUnsuccessful marks a response that decoded but did not report success
	ErrUnsuccessful = errors.New("snapshot response not successful")
	// ErrMissingCursor marks a successful response without a timestamp
	ErrMissingCursor = errors.New("snapshot response has no timestamp")
)

// State is a published, immutable view of a scheduler's session.
// CurrentSnapshot is shared and must be treated as read-only.
type State struct {
	GameID            string
	CurrentSnapshot   *models.GameSnapshot
	IsLive            bool
	IsFetching        bool
	LastError         string
	LastAppliedCursor string
	ChangeCount       int64
	Generation        uint64
	RetryAttempt      int
	RetryPending      bool
	LastFetchAt       time.Time
}

// Config tunes a scheduler
type Config struct {
	FetchTimeout     time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	Clock            clockwork.Clock
}

// DefaultConfig returns 10s fetch timeout and the default retry policy
func DefaultConfig() Config {
	return Config{
		FetchTimeout:     DefaultFetchTimeout,
		RetryMaxAttempts: retry.DefaultMaxAttempts,
		RetryBaseDelay:   retry.DefaultBaseDelay,
		RetryMaxDelay:    retry.DefaultMaxDelay,
		Clock:            clockwork.NewRealClock(),
	}
}

// Callbacks are invoked outside the scheduler's lock, so they may call
// back into Start, Stop or RefreshNow. Deliveries are serialized and arrive
// in the order the results were applied.
type Callbacks struct {
	// OnUpdate fires once per snapshot classified as changed
	OnUpdate func(snapshot *models.GameSnapshot)
	// OnError fires when a game id is rejected or a retry chain gives up
	OnError func(message string)
}

// Scheduler polls one game at a time. It owns the interval timer, the retry
// timer and the session state; at most one fetch is in flight per session.
type Scheduler struct {
	fetcher    contracts.SnapshotFetcher
	classifier *classifier.Classifier
	cfg        Config
	callbacks  Callbacks
	log        logrus.FieldLogger

	mu         sync.Mutex
	state      State
	game       models.GameRef
	interval   time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	tickTimer  clockwork.Timer
	retryTimer clockwork.Timer
	retry      *retry.RetryPolicy

	// pending callbacks in apply order; delivering is set while a
	// goroutine drains them
	deliveries []func()
	delivering bool

	published     atomic.Pointer[State]
	staleDiscards atomic.Int64
}

// NewScheduler creates a stopped scheduler
func NewScheduler(
	fetcher contracts.SnapshotFetcher,
	cls *classifier.Classifier,
	cfg Config,
	callbacks Callbacks,
	log logrus.FieldLogger,
) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cls == nil {
		cls = classifier.New(log)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Scheduler{
		fetcher:    fetcher,
		classifier: cls,
		cfg:        cfg,
		callbacks:  callbacks,
		log:        log.WithField("component", "scheduler"),
	}
	s.published.Store(&State{})
	return s
}

// State returns the latest published state
func (s *Scheduler) State() State {
	return *s.published.Load()
}

// StaleDiscards counts fetch completions dropped because their session ended
func (s *Scheduler) StaleDiscards() int64 {
	return s.staleDiscards.Load()
}

// Start begins polling game every interval. Starting the game that is already
// being polled is a no-op; starting another game ends the current session first.
// An invalid game id is reported through OnError and returned without fetching.
func (s *Scheduler) Start(game models.GameRef, interval time.Duration) error {
	if _, err := models.ParseGameID(game.ID); err != nil {
		s.notifyError(fmt.Sprintf("cannot start live updates: %v", err))
		return err
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsLive && s.game.ID == game.ID {
		return nil
	}
	if s.state.IsLive {
		s.stopLocked()
	}

	s.state.Generation++
	gen := s.state.Generation

	s.game = game
	s.interval = interval
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.retry = retry.NewRetryPolicy(s.cfg.RetryMaxAttempts, s.cfg.RetryBaseDelay, s.cfg.RetryMaxDelay)

	s.state.GameID = game.ID
	s.state.IsLive = true
	s.state.LastAppliedCursor = ""
	s.state.LastError = ""
	s.state.RetryAttempt = 0

	s.log.WithFields(logrus.Fields{
		"game_id":    game.ID,
		"interval":   interval.String(),
		"generation": gen,
	}).Info("Starting live updates")

	s.armTickLocked(gen)
	s.startFetchLocked(gen)
	s.publishLocked()
	return nil
}

// Stop ends the session: timers are released, the in-flight request is
// cancelled and its completion will be discarded. Safe to call at any time.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.IsLive {
		return
	}
	s.stopLocked()
	s.publishLocked()
}

// RefreshNow fetches immediately without moving the interval's phase.
// It does nothing when stopped or when a fetch is already in flight.
func (s *Scheduler) RefreshNow() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.IsLive || s.state.IsFetching {
		return
	}
	s.retry.BeginChain()
	s.startFetchLocked(s.state.Generation)
	s.publishLocked()
}

func (s *Scheduler) stopLocked() {
	if s.tickTimer != nil {
		s.tickTimer.Stop()
		s.tickTimer = nil
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	s.state.Generation++
	s.state.IsLive = false
	s.state.IsFetching = false
	s.state.RetryPending = false

	s.log.WithFields(logrus.Fields{
		"game_id":    s.game.ID,
		"generation": s.state.Generation,
	}).Info("Stopped live updates")
}

func (s *Scheduler) armTickLocked(gen uint64) {
	s.tickTimer = s.cfg.Clock.AfterFunc(s.interval, func() { s.onTick(gen) })
}

func (s *Scheduler) onTick(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.state.Generation || !s.state.IsLive {
		return
	}

	// re-arm first so the interval keeps its phase
	s.armTickLocked(gen)

	if s.state.IsFetching || s.state.RetryPending {
		s.log.WithField("game_id", s.game.ID).Debug("Skipping tick, fetch or retry outstanding")
		return
	}

	s.retry.BeginChain()
	s.startFetchLocked(gen)
	s.publishLocked()
}

func (s *Scheduler) onRetry(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.state.Generation || !s.state.IsLive {
		return
	}

	s.retryTimer = nil
	s.state.RetryPending = false
	if !s.state.IsFetching {
		s.startFetchLocked(gen)
	}
	s.publishLocked()
}

// startFetchLocked launches the session's single in-flight fetch.
// A fetch supersedes any pending retry.
func (s *Scheduler) startFetchLocked(gen uint64) {
	if s.state.IsFetching {
		return
	}
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
		s.state.RetryPending = false
	}

	s.state.IsFetching = true
	go s.fetch(s.ctx, gen, s.game, s.state.LastAppliedCursor)
}

func (s *Scheduler) fetch(ctx context.Context, gen uint64, game models.GameRef, cursor string) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	snapshot, err := s.fetcher.FetchGameSnapshot(fetchCtx, game, cursor)
	cancel()

	if err == nil {
		switch {
		case snapshot == nil:
			err = fmt.Errorf("%w: empty body", ErrUnsuccessful)
		case !snapshot.Success:
			err = fmt.Errorf("%w: %s", ErrUnsuccessful, snapshot.Error)
		case snapshot.Cursor() == "":
			err = ErrMissingCursor
		}
	}

	s.complete(gen, game, snapshot, err)
}

func (s *Scheduler) complete(gen uint64, game models.GameRef, snapshot *models.GameSnapshot, err error) {
	s.mu.Lock()

	if gen != s.state.Generation || !s.state.IsLive {
		s.mu.Unlock()
		s.staleDiscards.Add(1)
		s.log.WithFields(logrus.Fields{
			"game_id":    game.ID,
			"generation": gen,
		}).Debug("Discarding fetch result from ended session")
		return
	}

	s.state.IsFetching = false
	s.state.LastFetchAt = s.cfg.Clock.Now()

	var notify func()
	if err != nil {
		notify = s.failLocked(gen, err)
	} else {
		s.retry.OnSuccess()
		s.state.LastError = ""
		if s.classifier.Classify(s.state.LastAppliedCursor, snapshot) == classifier.Changed {
			s.state.CurrentSnapshot = snapshot
			s.state.LastAppliedCursor = snapshot.Cursor()
			s.state.ChangeCount++
			if s.callbacks.OnUpdate != nil {
				notify = func() { s.callbacks.OnUpdate(snapshot) }
			}
		}
	}

	s.state.RetryAttempt = s.retry.State().Attempt
	s.publishLocked()

	drain := notify != nil && s.enqueueLocked(notify)
	s.mu.Unlock()

	if drain {
		s.deliver()
	}
}

// enqueueLocked queues fn behind earlier deliveries and reports whether the
// caller must drain the queue
func (s *Scheduler) enqueueLocked(fn func()) bool {
	s.deliveries = append(s.deliveries, fn)
	if s.delivering {
		return false
	}
	s.delivering = true
	return true
}

// deliver runs queued callbacks one at a time until the queue is empty.
// Completions that arrive meanwhile are appended and picked up here.
func (s *Scheduler) deliver() {
	for {
		s.mu.Lock()
		if len(s.deliveries) == 0 {
			s.delivering = false
			s.mu.Unlock()
			return
		}
		fn := s.deliveries[0]
		s.deliveries[0] = nil
		s.deliveries = s.deliveries[1:]
		s.mu.Unlock()

		fn()
	}
}

func (s *Scheduler) failLocked(gen uint64, err error) func() {
	s.state.LastError = err.Error()
	decision := s.retry.OnFailure()
	entry := s.log.WithFields(logrus.Fields{
		"game_id": s.game.ID,
		"attempt": s.retry.State().Attempt,
		"error":   err.Error(),
	})

	if decision.Retry {
		entry.WithField("delay", decision.Delay.String()).Warn("Fetch failed, retrying")
		s.state.RetryPending = true
		s.retryTimer = s.cfg.Clock.AfterFunc(decision.Delay, func() { s.onRetry(gen) })
		return nil
	}

	entry.Error("Fetch failed, retries exhausted until next poll")
	message := fmt.Sprintf("live updates for %s unavailable: %v", s.game.ID, err)
	return func() { s.notifyError(message) }
}

func (s *Scheduler) notifyError(message string) {
	if s.callbacks.OnError != nil {
		s.callbacks.OnError(message)
	}
}

func (s *Scheduler) publishLocked() {
	snapshot := s.state
	s.published.Store(&snapshot)
}
