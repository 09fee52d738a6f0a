package scorecard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/models"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	DefaultTimeout        = 15 * time.Second
	DefaultBreakerTimeout = 30 * time.Second

	opSnapshot = "fetch_game_snapshot"
	opGames    = "fetch_games_for_date"
)

// ErrUnsuccessful is returned when the backend answers with success=false
var ErrUnsuccessful = errors.New("scorecard backend reported failure")

// Metrics is the subset of the metrics recorder the client reports to
type Metrics interface {
	RecordLatency(op string, seconds float64)
	RecordError(kind string)
	SetBreakerState(name string, state int)
}

// Options tunes a Client
type Options struct {
	Timeout        time.Duration
	BreakerTimeout time.Duration
	HTTPClient     *http.Client
	Metrics        Metrics
	Logger         logrus.FieldLogger
}

// Client handles scorecard backend requests
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	breaker    *gobreaker.CircuitBreaker
	metrics    Metrics
	log        logrus.FieldLogger
}

// New creates a new scorecard backend client
func New(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = DefaultBreakerTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: opts.HTTPClient,
		userAgent:  "Mozilla/5.0 (compatible; FortunaScorecard/1.0)",
		metrics:    opts.Metrics,
		log:        opts.Logger.WithField("component", "scorecard_client"),
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "scorecard",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
			if c.metrics != nil {
				c.metrics.SetBreakerState(name, int(to))
			}
		},
	})

	return c
}

// BreakerState returns the circuit breaker's current state
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// FetchGameSnapshot fetches a game's live state. An empty cursor asks for the
// full snapshot; otherwise the backend computes hasChanges against it.
func (c *Client) FetchGameSnapshot(ctx context.Context, game models.GameRef, cursor string) (*models.GameSnapshot, error) {
	q := url.Values{}
	if game.PK > 0 {
		q.Set("gamePk", strconv.Itoa(game.PK))
	}
	if cursor != "" {
		q.Set("lastUpdate", cursor)
	}
	endpoint := fmt.Sprintf("%s/api/games/%s/live", c.baseURL, url.PathEscape(game.ID))
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var snapshot models.GameSnapshot
	if err := c.do(ctx, opSnapshot, endpoint, &snapshot); err != nil {
		return nil, fmt.Errorf("fetching snapshot for %s: %w", game.ID, err)
	}
	if snapshot.GameID == "" {
		snapshot.GameID = game.ID
	}
	return &snapshot, nil
}

// FetchGamesForDate lists the games scheduled on a YYYY-MM-DD date
func (c *Client) FetchGamesForDate(ctx context.Context, date string) ([]models.Game, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}
	endpoint := fmt.Sprintf("%s/api/games?date=%s", c.baseURL, url.QueryEscape(date))

	var envelope models.GamesForDate
	if err := c.do(ctx, opGames, endpoint, &envelope); err != nil {
		return nil, fmt.Errorf("fetching games for %s: %w", date, err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("fetching games for %s: %w: %s", date, ErrUnsuccessful, envelope.Error)
	}
	return envelope.Games, nil
}

// do runs a GET through the circuit breaker and decodes the JSON body into out
func (c *Client) do(ctx context.Context, op, endpoint string, out interface{}) error {
	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.get(ctx, endpoint, out)
	})
	if c.metrics != nil {
		c.metrics.RecordLatency(op, time.Since(start).Seconds())
		if err != nil {
			c.metrics.RecordError(op)
		}
	}
	return err
}

func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("scorecard API error: status=%d, body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
