package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/lifecycle"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/models"
	"github.com/redis/go-redis/v9"
)

// TTL constants
const (
	GamesListTTL     = 24 * time.Hour
	LiveSnapshotTTL  = 2 * time.Hour
	FinalSnapshotTTL = 6 * time.Hour
)

// ErrNotCached is returned when a key is absent
var ErrNotCached = errors.New("not cached")

// RedisWriter mirrors applied snapshots and game listings into Redis
type RedisWriter struct {
	client redis.Cmdable
}

// NewRedisWriter creates a new Redis writer
func NewRedisWriter(client redis.Cmdable) *RedisWriter {
	return &RedisWriter{
		client: client,
	}
}

// SnapshotKey is where a game's latest applied snapshot lives
func SnapshotKey(gameID string) string {
	return fmt.Sprintf("scorecard:%s:snapshot", gameID)
}

// StatusKey is where a game's lifecycle status lives
func StatusKey(gameID string) string {
	return fmt.Sprintf("scorecard:%s:status", gameID)
}

// GamesKey is where the game ids for a date live
func GamesKey(date string) string {
	return fmt.Sprintf("scorecard:games:%s", date)
}

// TTLForStatus keeps finished games around longer than live ones
func TTLForStatus(status lifecycle.Status) time.Duration {
	if status.IsTerminal() {
		return FinalSnapshotTTL
	}
	return LiveSnapshotTTL
}

// SnapshotApplied stores the snapshot and its derived status
func (w *RedisWriter) SnapshotApplied(ctx context.Context, gameID string, snapshot *models.GameSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	status := lifecycle.FromCode(snapshot.StatusCode())
	ttl := TTLForStatus(status)

	pipe := w.client.Pipeline()
	pipe.Set(ctx, SnapshotKey(gameID), data, ttl)
	pipe.Set(ctx, StatusKey(gameID), string(status), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing snapshot for %s: %w", gameID, err)
	}
	return nil
}

// WriteGameStatus stores a status observed outside the live feed
func (w *RedisWriter) WriteGameStatus(ctx context.Context, gameID string, status lifecycle.Status) error {
	return w.client.Set(ctx, StatusKey(gameID), string(status), TTLForStatus(status)).Err()
}

// WriteGamesForDate replaces the list of game ids for a date
func (w *RedisWriter) WriteGamesForDate(ctx context.Context, date string, games []models.Game) error {
	key := GamesKey(date)

	values := make([]interface{}, len(games))
	for i, g := range games {
		values[i] = g.ID
	}

	pipe := w.client.Pipeline()
	pipe.Del(ctx, key)
	if len(values) > 0 {
		pipe.RPush(ctx, key, values...)
	}
	pipe.Expire(ctx, key, GamesListTTL)

	_, err := pipe.Exec(ctx)
	return err
}

// ReadSnapshot retrieves a game's latest applied snapshot
func (w *RedisWriter) ReadSnapshot(ctx context.Context, gameID string) (*models.GameSnapshot, error) {
	data, err := w.client.Get(ctx, SnapshotKey(gameID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("snapshot for %s: %w", gameID, ErrNotCached)
	}
	if err != nil {
		return nil, err
	}

	var snapshot models.GameSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &snapshot, nil
}

// ReadGameStatus retrieves a game's cached lifecycle status
func (w *RedisWriter) ReadGameStatus(ctx context.Context, gameID string) (lifecycle.Status, error) {
	status, err := w.client.Get(ctx, StatusKey(gameID)).Result()
	if errors.Is(err, redis.Nil) {
		return lifecycle.StatusUnknown, fmt.Errorf("status for %s: %w", gameID, ErrNotCached)
	}
	if err != nil {
		return lifecycle.StatusUnknown, err
	}
	return lifecycle.Status(status), nil
}

// ReadGamesForDate retrieves the game ids cached for a date
func (w *RedisWriter) ReadGamesForDate(ctx context.Context, date string) ([]string, error) {
	return w.client.LRange(ctx, GamesKey(date), 0, -1).Result()
}
