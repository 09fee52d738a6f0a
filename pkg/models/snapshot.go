package models

// GameSnapshot is one fetch of a game's live state from the scorecard backend.
// Timestamp is the cursor; HasChanges is computed server-side against the cursor
// that was sent with the request.
type GameSnapshot struct {
	GameID     string   `json:"game_id,omitempty"`
	Success    bool     `json:"success"`
	HasChanges bool     `json:"hasChanges"`
	Timestamp  string   `json:"timestamp"`
	GameData   GameData `json:"game_data"`
	LiveData   LiveData `json:"liveData"`
	SVGContent string   `json:"svg_content,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Cursor returns the snapshot's monotonic marker
func (s *GameSnapshot) Cursor() string {
	return s.Timestamp
}

// StatusCode returns the structured game state carried by the snapshot
func (s *GameSnapshot) StatusCode() StatusCode {
	return s.GameData.Status.CodedGameState
}

// GameData is the subset of the MLB gameData block the live engine reads
type GameData struct {
	Game   GameInfo   `json:"game"`
	Status GameStatus `json:"status"`
	Teams  Teams      `json:"teams"`
}

// GameInfo carries the MLB game identifiers
type GameInfo struct {
	PK         int    `json:"pk"`
	Type       string `json:"type,omitempty"`
	GameNumber int    `json:"gameNumber,omitempty"`
}

// GameStatus is the MLB status block. DetailedState is free text and is
// never used for lifecycle decisions.
type GameStatus struct {
	AbstractGameState string     `json:"abstractGameState,omitempty"`
	CodedGameState    StatusCode `json:"codedGameState"`
	DetailedState     string     `json:"detailedState,omitempty"`
	StatusCode        string     `json:"statusCode,omitempty"`
	AbstractGameCode  string     `json:"abstractGameCode,omitempty"`
}

// Teams holds the two clubs
type Teams struct {
	Away Team `json:"away"`
	Home Team `json:"home"`
}

// Team identifies a club
type Team struct {
	ID           int    `json:"id,omitempty"`
	Name         string `json:"name,omitempty"`
	TeamName     string `json:"teamName,omitempty"`
	Abbreviation string `json:"abbreviation,omitempty"`
}
