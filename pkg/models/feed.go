package models

// LiveData is the play-by-play portion of the MLB live feed
type LiveData struct {
	Plays     Plays     `json:"plays"`
	Linescore Linescore `json:"linescore"`
}

// Plays wraps the ordered list of plays
type Plays struct {
	AllPlays []Play `json:"allPlays"`
}

// Linescore is the inning/score summary
type Linescore struct {
	CurrentInning int    `json:"currentInning,omitempty"`
	InningState   string `json:"inningState,omitempty"`
	InningHalf    string `json:"inningHalf,omitempty"`
}

// Play is one entry of allPlays
type Play struct {
	Result     PlayResult  `json:"result"`
	About      PlayAbout   `json:"about"`
	Matchup    Matchup     `json:"matchup"`
	PlayEvents []PlayEvent `json:"playEvents"`
}

// PlayResult describes the outcome of a play. Type is "atBat" for plate appearances.
type PlayResult struct {
	Type        string `json:"type"`
	Event       string `json:"event,omitempty"`
	EventType   string `json:"eventType,omitempty"`
	Description string `json:"description,omitempty"`
}

// PlayAbout places a play in the game
type PlayAbout struct {
	AtBatIndex  int    `json:"atBatIndex"`
	HalfInning  string `json:"halfInning"` // "top" or "bottom"
	IsTopInning bool   `json:"isTopInning"`
	Inning      int    `json:"inning"`
	IsComplete  bool   `json:"isComplete"`
}

// Matchup is the batter/pitcher pairing
type Matchup struct {
	Batter  Person `json:"batter"`
	Pitcher Person `json:"pitcher"`
}

// Person is a player reference
type Person struct {
	ID       int    `json:"id"`
	FullName string `json:"fullName"`
}

// PlayEvent is one event inside a play: a pitch, pickoff, substitution, ...
type PlayEvent struct {
	IsPitch     bool          `json:"isPitch"`
	Type        string        `json:"type,omitempty"` // "pitch", "action", "pickoff", ...
	PitchNumber int           `json:"pitchNumber,omitempty"`
	Index       int           `json:"index"`
	Details     EventDetails  `json:"details"`
	Count       Count         `json:"count"`
	PitchData   *PitchMetrics `json:"pitchData,omitempty"`
}

// EventDetails carries the call and the structured classification flags.
// The flags are pointers so an absent flag can be told apart from false.
type EventDetails struct {
	Description string    `json:"description,omitempty"`
	Code        string    `json:"code,omitempty"`
	Call        *CodeDesc `json:"call,omitempty"`
	Type        *CodeDesc `json:"type,omitempty"`
	IsBall      *bool     `json:"isBall,omitempty"`
	IsStrike    *bool     `json:"isStrike,omitempty"`
	IsInPlay    *bool     `json:"isInPlay,omitempty"`
}

// CodeDesc is an MLB code/description pair
type CodeDesc struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Count is the ball-strike-out count after an event
type Count struct {
	Balls   int `json:"balls"`
	Strikes int `json:"strikes"`
	Outs    int `json:"outs"`
}

// PitchMetrics holds tracking data for a pitch
type PitchMetrics struct {
	StartSpeed *float64 `json:"startSpeed,omitempty"`
	EndSpeed   *float64 `json:"endSpeed,omitempty"`
}
