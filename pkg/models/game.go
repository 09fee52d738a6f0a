package models

// StatusCode is the structured MLB game state code (codedGameState).
// It is the only input used to decide whether a game is live.
type StatusCode string

// Game is one entry of the games-for-date listing served by the scorecard backend
type Game struct {
	ID          string     `json:"id"`          // "2024-04-12-CHC-LAD-1"
	AwayTeam    string     `json:"away_team"`   // "Cubs"
	HomeTeam    string     `json:"home_team"`   // "Dodgers"
	AwayCode    string     `json:"away_code"`   // "CHC"
	HomeCode    string     `json:"home_code"`   // "LAD"
	GameNumber  int        `json:"game_number"` // 2 for the second game of a doubleheader
	StartTime   string     `json:"start_time"`  // display string, e.g. "07:10 PM UTC"
	Location    string     `json:"location"`    // "Dodger Stadium, Los Angeles"
	Status      string     `json:"status"`      // free-text detailedState, display only
	StatusCode  StatusCode `json:"status_code"` // codedGameState
	GamePK      int        `json:"game_pk"`
	Inning      int        `json:"inning,omitempty"`
	InningState string     `json:"inning_state,omitempty"` // "Top", "Bottom", "Middle", "End"
	AwayScore   int        `json:"away_score"`
	HomeScore   int        `json:"home_score"`
}

// GamesForDate is the games listing envelope
type GamesForDate struct {
	Games   []Game `json:"games"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// GameRef identifies the game a polling session targets.
// PK may be zero when the backend resolves the game from its id.
type GameRef struct {
	ID string
	PK int
}
