package contracts

import (
	"context"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/models"
)

// SnapshotSink receives every applied snapshot of a tracked game.
// Implementations: Redis cache writer, Redis stream publisher, websocket hub.
type SnapshotSink interface {
	SnapshotApplied(ctx context.Context, gameID string, snapshot *models.GameSnapshot) error
}

// ErrorSink receives terminal errors surfaced by a game's live session
type ErrorSink interface {
	SessionError(ctx context.Context, gameID string, message string) error
}
