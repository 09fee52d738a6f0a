package contracts

import (
	"context"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/models"
)

// SnapshotFetcher is the live-feed side of the external scorecard backend.
// Calling it repeatedly with the same cursor must be safe.
type SnapshotFetcher interface {
	// FetchGameSnapshot returns the game's state. An empty cursor asks for a full snapshot.
	FetchGameSnapshot(ctx context.Context, game models.GameRef, cursor string) (*models.GameSnapshot, error)
}

// GamesLister is the schedule side of the external scorecard backend
type GamesLister interface {
	// FetchGamesForDate lists games for a YYYY-MM-DD date
	FetchGamesForDate(ctx context.Context, date string) ([]models.Game, error)
}

// GameDataProvider combines both capabilities
type GameDataProvider interface {
	SnapshotFetcher
	GamesLister
}
