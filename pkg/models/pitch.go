package models

// HalfInning values used in pitch-sequence keys
const (
	HalfTop    = "top"
	HalfBottom = "bottom"
)

// PitchResult is the classification of one pitch
type PitchResult string

const (
	PitchBall    PitchResult = "ball"
	PitchStrike  PitchResult = "strike"
	PitchFoul    PitchResult = "foul"
	PitchInPlay  PitchResult = "in_play"
	PitchUnknown PitchResult = "unknown"
)

// PitchData is one pitch of an at-bat, as the scorecard cell renders it
type PitchData struct {
	Number   int         `json:"number"`
	TypeCode string      `json:"type_code,omitempty"` // "FF"
	Type     string      `json:"type,omitempty"`      // "Four-Seam Fastball"
	Speed    *float64    `json:"speed,omitempty"`
	Call     string      `json:"call,omitempty"` // "Called Strike"
	Result   PitchResult `json:"result"`
	IsBall   bool        `json:"is_ball"`
	IsStrike bool        `json:"is_strike"`
	IsFoul   bool        `json:"is_foul"`
	IsInPlay bool        `json:"is_in_play"`
	Balls    int         `json:"balls"`               // running count after the pitch
	Strikes  int         `json:"strikes"`             // running count after the pitch
	FromText bool        `json:"from_text,omitempty"` // classified from description text
}

// AtBatKey identifies one scorecard cell
type AtBatKey struct {
	Batter     string
	Inning     int
	HalfInning string
}

// AtBatPitchSequence is the ordered pitches of one at-bat
type AtBatPitchSequence struct {
	Batter     string      `json:"batter"`
	Pitcher    string      `json:"pitcher,omitempty"`
	Inning     int         `json:"inning"`
	HalfInning string      `json:"half_inning"`
	AtBatIndex int         `json:"at_bat_index"`
	Result     string      `json:"result,omitempty"` // "Strikeout", "Single", ...
	Complete   bool        `json:"complete"`
	Pitches    []PitchData `json:"pitches"`
}
