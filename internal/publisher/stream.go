package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/lifecycle"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/models"
	"github.com/redis/go-redis/v9"
)

// DefaultMaxLen bounds each daily stream
const DefaultMaxLen = 10000

// StreamPublisher publishes applied snapshots to Redis streams
type StreamPublisher struct {
	client redis.Cmdable
	maxLen int64
}

// NewStreamPublisher creates a new stream publisher
func NewStreamPublisher(client redis.Cmdable) *StreamPublisher {
	return &StreamPublisher{
		client: client,
		maxLen: DefaultMaxLen,
	}
}

// StreamKey returns the daily stream a game's updates go to
func StreamKey(gameID string) (string, error) {
	id, err := models.ParseGameID(gameID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("scorecards.updates.%s", id.DateString()), nil
}

// SnapshotApplied publishes an applied snapshot
func (p *StreamPublisher) SnapshotApplied(ctx context.Context, gameID string, snapshot *models.GameSnapshot) error {
	streamKey, err := StreamKey(gameID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshaling snapshot update: %w", err)
	}

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data":    string(data),
			"game_id": gameID,
			"cursor":  snapshot.Cursor(),
			"status":  string(lifecycle.FromCode(snapshot.StatusCode())),
			"type":    "update",
		},
	}).Err()
}

// SessionError publishes a terminal error for a game
func (p *StreamPublisher) SessionError(ctx context.Context, gameID string, message string) error {
	streamKey, err := StreamKey(gameID)
	if err != nil {
		return err
	}

	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"game_id": gameID,
			"error":   message,
			"type":    "error",
		},
	}).Err()
}
