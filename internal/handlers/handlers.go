package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/cache"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/client"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/hub"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/pitchindex"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/tracker"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// TrackerSource looks up the tracker of a game
type TrackerSource interface {
	Tracker(gameID string) (*tracker.Tracker, bool)
	TrackedGames() []string
}

// SnapshotReader reads mirrored snapshots
type SnapshotReader interface {
	ReadSnapshot(ctx context.Context, gameID string) (*models.GameSnapshot, error)
}

// Handler manages HTTP endpoints
type Handler struct {
	hub       *hub.Hub
	trackers  TrackerSource
	snapshots SnapshotReader
	upgrader  websocket.Upgrader
	ctx       context.Context
	log       logrus.FieldLogger
}

// NewHandler creates a new handler instance. Client pumps run on ctx, not on
// the request context. snapshots may be nil.
func NewHandler(ctx context.Context, h *hub.Hub, trackers TrackerSource, snapshots SnapshotReader, allowedOrigins []string, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		hub:       h,
		trackers:  trackers,
		snapshots: snapshots,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		ctx: ctx,
		log: log.WithField("component", "handlers"),
	}
}

// originChecker allows same-origin requests and the configured origins.
// A "*" entry allows everything.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

// HandleWebSocket upgrades HTTP connections to WebSocket
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	clientID := uuid.New().String()
	c := client.NewClient(clientID, conn, h.hub, h.log)

	h.hub.Register(c)

	go c.WritePump(h.ctx)
	go c.ReadPump(h.ctx)

	h.log.WithField("client_id", clientID).Debug("WebSocket connection established")
}

// HandleHealth returns service health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"service":        "scorecard-live",
		"active_clients": h.hub.GetClientCount(),
		"tracked_games":  len(h.trackers.TrackedGames()),
	})
}

// HandleHubStats returns hub counters
func (h *Handler) HandleHubStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.hub.GetMetrics())
}

// LiveStateResponse is the read-only view of a game's live session
type LiveStateResponse struct {
	GameID            string    `json:"game_id"`
	Status            string    `json:"status"`
	Foreground        bool      `json:"foreground"`
	IsLive            bool      `json:"is_live"`
	IsFetching        bool      `json:"is_fetching"`
	LastError         string    `json:"last_error,omitempty"`
	LastAppliedCursor string    `json:"last_applied_cursor,omitempty"`
	ChangeCount       int64     `json:"change_count"`
	RetryAttempt      int       `json:"retry_attempt"`
	LastFetchAt       time.Time `json:"last_fetch_at,omitempty"`
}

// HandleGetLiveState returns a tracked game's session state
// GET /api/v1/games/{gameID}/state
func (h *Handler) HandleGetLiveState(w http.ResponseWriter, r *http.Request) {
	t, ok := h.tracker(w, r)
	if !ok {
		return
	}

	state := t.State()
	writeJSON(w, http.StatusOK, LiveStateResponse{
		GameID:            t.Game().ID,
		Status:            string(t.Status()),
		Foreground:        t.Foreground(),
		IsLive:            state.IsLive,
		IsFetching:        state.IsFetching,
		LastError:         state.LastError,
		LastAppliedCursor: state.LastAppliedCursor,
		ChangeCount:       state.ChangeCount,
		RetryAttempt:      state.RetryAttempt,
		LastFetchAt:       state.LastFetchAt,
	})
}

// HandleGetSnapshot returns the latest applied snapshot, from memory when the
// game is tracked and from the Redis mirror otherwise
// GET /api/v1/games/{gameID}/snapshot
func (h *Handler) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	if _, err := models.ParseGameID(gameID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if t, ok := h.trackers.Tracker(gameID); ok {
		if snap := t.State().CurrentSnapshot; snap != nil {
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}

	if h.snapshots == nil {
		writeError(w, http.StatusNotFound, "no snapshot for game")
		return
	}
	snap, err := h.snapshots.ReadSnapshot(r.Context(), gameID)
	if errors.Is(err, cache.ErrNotCached) {
		writeError(w, http.StatusNotFound, "no snapshot for game")
		return
	}
	if err != nil {
		h.log.WithError(err).WithField("game_id", gameID).Error("Failed to read snapshot")
		writeError(w, http.StatusInternalServerError, "failed to read snapshot")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleGetPitchSequence returns one at-bat's pitches
// GET /api/v1/games/{gameID}/pitches?batter={name}&inning={n}&half={top|bottom}
func (h *Handler) HandleGetPitchSequence(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	batter := q.Get("batter")
	if batter == "" {
		writeError(w, http.StatusBadRequest, "batter is required")
		return
	}
	inning, err := strconv.Atoi(q.Get("inning"))
	if err != nil || inning < 1 {
		writeError(w, http.StatusBadRequest, "inning must be a positive integer")
		return
	}
	half := pitchindex.NormalizeHalf(q.Get("half"))
	if half == "" {
		writeError(w, http.StatusBadRequest, "half must be top or bottom")
		return
	}

	t, ok := h.tracker(w, r)
	if !ok {
		return
	}

	seq := t.GetPitchSequence(batter, inning, half)
	if seq == nil {
		writeError(w, http.StatusNotFound, "no at-bat for batter in that half-inning")
		return
	}
	writeJSON(w, http.StatusOK, seq)
}

// tracker resolves the {gameID} route parameter, writing the error response
// when it cannot
func (h *Handler) tracker(w http.ResponseWriter, r *http.Request) (*tracker.Tracker, bool) {
	gameID := chi.URLParam(r, "gameID")
	if _, err := models.ParseGameID(gameID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	t, ok := h.trackers.Tracker(gameID)
	if !ok {
		writeError(w, http.StatusNotFound, "game is not tracked")
		return nil, false
	}
	return t, true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
