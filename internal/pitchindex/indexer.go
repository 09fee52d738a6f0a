package pitchindex

import (
	"strings"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/models"
)

const atBatPlayType = "atBat"

// MLB call codes for fouls that do not end the at-bat as a strikeout.
// "T" (foul tip) is deliberately absent: a caught foul tip is a strike.
var foulCallCodes = map[string]bool{
	"F": true, // Foul
	"L": true, // Foul Bunt
	"R": true, // Foul Pitchout
}

// Index is an immutable lookup from (batter, inning, half) to the at-bat's pitches
type Index struct {
	sequences map[models.AtBatKey]*models.AtBatPitchSequence
}

// Build derives the index from a live feed. It is pure: the same feed
// always yields the same index. When a batter comes up twice in the same
// half-inning the later at-bat wins.
func Build(live models.LiveData) *Index {
	idx := &Index{sequences: make(map[models.AtBatKey]*models.AtBatPitchSequence)}

	for _, play := range live.Plays.AllPlays {
		if play.Result.Type != atBatPlayType {
			continue
		}

		batter := strings.TrimSpace(play.Matchup.Batter.FullName)
		half := halfOfPlay(play.About)
		if batter == "" || half == "" || play.About.Inning < 1 {
			continue
		}

		seq := &models.AtBatPitchSequence{
			Batter:     batter,
			Pitcher:    strings.TrimSpace(play.Matchup.Pitcher.FullName),
			Inning:     play.About.Inning,
			HalfInning: half,
			AtBatIndex: play.About.AtBatIndex,
			Result:     play.Result.Event,
			Complete:   play.About.IsComplete,
			Pitches:    extractPitches(play.PlayEvents),
		}

		idx.sequences[models.AtBatKey{Batter: batter, Inning: seq.Inning, HalfInning: half}] = seq
	}

	return idx
}

// Lookup returns a copy of the at-bat's pitch sequence, or nil if the
// (batter, inning, half) triple has no at-bat
func (i *Index) Lookup(batter string, inning int, halfInning string) *models.AtBatPitchSequence {
	if i == nil {
		return nil
	}
	half := NormalizeHalf(halfInning)
	if half == "" {
		return nil
	}

	seq, ok := i.sequences[models.AtBatKey{Batter: strings.TrimSpace(batter), Inning: inning, HalfInning: half}]
	if !ok {
		return nil
	}

	out := *seq
	out.Pitches = append([]models.PitchData(nil), seq.Pitches...)
	return &out
}

// Len returns the number of indexed at-bats
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.sequences)
}

// NormalizeHalf maps "Top"/"t"/"bottom"/"bot"/... onto the key values.
// Unknown input yields "".
func NormalizeHalf(half string) string {
	switch strings.ToLower(strings.TrimSpace(half)) {
	case "top", "t":
		return models.HalfTop
	case "bottom", "bot", "b":
		return models.HalfBottom
	default:
		return ""
	}
}

func halfOfPlay(about models.PlayAbout) string {
	if half := NormalizeHalf(about.HalfInning); half != "" {
		return half
	}
	if about.HalfInning != "" {
		return ""
	}
	if about.IsTopInning {
		return models.HalfTop
	}
	return models.HalfBottom
}

func extractPitches(events []models.PlayEvent) []models.PitchData {
	pitches := make([]models.PitchData, 0, len(events))

	for _, ev := range events {
		if !ev.IsPitch && ev.Type != "pitch" {
			continue
		}

		result, fromText := classify(ev.Details)

		p := models.PitchData{
			Number:   ev.PitchNumber,
			Call:     callDescription(ev.Details),
			Result:   result,
			IsBall:   result == models.PitchBall,
			IsStrike: result == models.PitchStrike,
			IsFoul:   result == models.PitchFoul,
			IsInPlay: result == models.PitchInPlay,
			Balls:    ev.Count.Balls,
			Strikes:  ev.Count.Strikes,
			FromText: fromText,
		}
		if p.Number == 0 {
			p.Number = len(pitches) + 1
		}
		if ev.Details.Type != nil {
			p.TypeCode = ev.Details.Type.Code
			p.Type = ev.Details.Type.Description
		}
		if ev.PitchData != nil && ev.PitchData.StartSpeed != nil {
			speed := *ev.PitchData.StartSpeed
			p.Speed = &speed
		}

		pitches = append(pitches, p)
	}

	return pitches
}

// classify uses the structured isBall/isStrike/isInPlay flags. Only when all
// three are absent does it fall back to the description text.
func classify(d models.EventDetails) (models.PitchResult, bool) {
	if d.IsBall == nil && d.IsStrike == nil && d.IsInPlay == nil {
		return classifyText(callDescription(d)), true
	}

	switch {
	case isSet(d.IsInPlay):
		return models.PitchInPlay, false
	case isSet(d.IsStrike) && foulCallCodes[callCode(d)]:
		return models.PitchFoul, false
	case isSet(d.IsStrike):
		return models.PitchStrike, false
	case isSet(d.IsBall):
		return models.PitchBall, false
	default:
		return models.PitchUnknown, false
	}
}

func classifyText(description string) models.PitchResult {
	desc := strings.ToLower(description)

	switch {
	case desc == "":
		return models.PitchUnknown
	case strings.Contains(desc, "in play"):
		return models.PitchInPlay
	case strings.Contains(desc, "foul tip"):
		return models.PitchStrike
	case strings.Contains(desc, "foul"):
		return models.PitchFoul
	case strings.Contains(desc, "strike"), strings.Contains(desc, "swinging"):
		return models.PitchStrike
	case strings.Contains(desc, "ball"), strings.Contains(desc, "pitchout"):
		return models.PitchBall
	default:
		return models.PitchUnknown
	}
}

func callCode(d models.EventDetails) string {
	if d.Call != nil && d.Call.Code != "" {
		return d.Call.Code
	}
	return d.Code
}

func callDescription(d models.EventDetails) string {
	if d.Call != nil && d.Call.Description != "" {
		return d.Call.Description
	}
	return d.Description
}

func isSet(b *bool) bool {
	return b != nil && *b
}
