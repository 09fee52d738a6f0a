package pitchindex

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFeed(t *testing.T) models.LiveData {
	t.Helper()
	raw, err := os.ReadFile("testdata/feed.json")
	require.NoError(t, err)

	var live models.LiveData
	require.NoError(t, json.Unmarshal(raw, &live))
	return live
}

func TestBuild_SameBatterDifferentInnings(t *testing.T) {
	idx := Build(loadFeed(t))

	// three at-bats; the substitution play is not an at-bat
	assert.Equal(t, 3, idx.Len())

	first := idx.Lookup("Cody Bellinger", 1, "top")
	third := idx.Lookup("Cody Bellinger", 3, "top")
	require.NotNil(t, first)
	require.NotNil(t, third)

	assert.Equal(t, "Strikeout", first.Result)
	assert.Len(t, first.Pitches, 4)
	assert.Equal(t, "Home Run", third.Result)
	assert.Len(t, third.Pitches, 1)
	assert.NotEqual(t, first.Pitches, third.Pitches)
}

func TestBuild_MissingKeyReturnsNil(t *testing.T) {
	idx := Build(loadFeed(t))

	assert.Nil(t, idx.Lookup("Cody Bellinger", 2, "top"))
	assert.Nil(t, idx.Lookup("Cody Bellinger", 1, "bottom"))
	assert.Nil(t, idx.Lookup("Nobody", 1, "top"))
	assert.Nil(t, idx.Lookup("Dansby Swanson", 2, "top"))
	assert.Nil(t, idx.Lookup("Cody Bellinger", 1, "middle"))

	var empty *Index
	assert.Nil(t, empty.Lookup("Cody Bellinger", 1, "top"))
}

func TestBuild_StructuredClassification(t *testing.T) {
	seq := Build(loadFeed(t)).Lookup("Cody Bellinger", 1, "Top")
	require.NotNil(t, seq)

	want := []struct {
		number  int
		result  models.PitchResult
		balls   int
		strikes int
		code    string
	}{
		{1, models.PitchStrike, 0, 1, "FF"},
		{2, models.PitchBall, 1, 1, "SL"},
		{3, models.PitchFoul, 1, 2, "FF"},
		{4, models.PitchStrike, 1, 3, "CU"},
	}

	require.Len(t, seq.Pitches, len(want))
	for i, w := range want {
		p := seq.Pitches[i]
		assert.Equal(t, w.number, p.Number, "pitch %d", i)
		assert.Equal(t, w.result, p.Result, "pitch %d", i)
		assert.Equal(t, w.balls, p.Balls, "pitch %d", i)
		assert.Equal(t, w.strikes, p.Strikes, "pitch %d", i)
		assert.Equal(t, w.code, p.TypeCode, "pitch %d", i)
		assert.False(t, p.FromText, "pitch %d", i)
	}

	assert.True(t, seq.Pitches[2].IsFoul)
	assert.False(t, seq.Pitches[2].IsStrike)
	require.NotNil(t, seq.Pitches[0].Speed)
	assert.InDelta(t, 96.4, *seq.Pitches[0].Speed, 0.001)
	assert.Equal(t, "Tyler Glasnow", seq.Pitcher)
}

func TestBuild_TextFallback(t *testing.T) {
	seq := Build(loadFeed(t)).Lookup("Mookie Betts", 1, "bottom")
	require.NotNil(t, seq)
	require.Len(t, seq.Pitches, 2)

	assert.Equal(t, models.PitchBall, seq.Pitches[0].Result)
	assert.True(t, seq.Pitches[0].FromText)
	assert.Equal(t, models.PitchInPlay, seq.Pitches[1].Result)
	assert.True(t, seq.Pitches[1].IsInPlay)
	assert.Nil(t, seq.Pitches[1].Speed)
}

func TestBuild_HalfFromTopInningFlag(t *testing.T) {
	ball := true
	play := func(batter string, top bool) models.Play {
		return models.Play{
			Result:  models.PlayResult{Type: "atBat", Event: "Walk"},
			About:   models.PlayAbout{Inning: 4, IsTopInning: top},
			Matchup: models.Matchup{Batter: models.Person{FullName: batter}},
			PlayEvents: []models.PlayEvent{{
				IsPitch: true,
				Details: models.EventDetails{Description: "Ball", IsBall: &ball},
			}},
		}
	}
	idx := Build(models.LiveData{Plays: models.Plays{AllPlays: []models.Play{
		play("Dansby Swanson", true),
		play("Freddie Freeman", false),
	}}})

	assert.Equal(t, 2, idx.Len())
	assert.NotNil(t, idx.Lookup("Dansby Swanson", 4, "top"))
	assert.NotNil(t, idx.Lookup("Freddie Freeman", 4, "bottom"))
	assert.Nil(t, idx.Lookup("Freddie Freeman", 4, "top"))
}

func TestBuild_Idempotent(t *testing.T) {
	live := loadFeed(t)
	assert.Equal(t, Build(live), Build(live))
}

func TestLookup_ReturnsCopy(t *testing.T) {
	idx := Build(loadFeed(t))

	seq := idx.Lookup("Cody Bellinger", 1, "top")
	seq.Pitches[0].Result = models.PitchBall

	again := idx.Lookup("Cody Bellinger", 1, "top")
	assert.Equal(t, models.PitchStrike, again.Pitches[0].Result)
}

func TestClassifyText(t *testing.T) {
	tests := []struct {
		desc string
		want models.PitchResult
	}{
		{"Called Strike", models.PitchStrike},
		{"Swinging Strike (Blocked)", models.PitchStrike},
		{"Foul Tip", models.PitchStrike},
		{"Foul Bunt", models.PitchFoul},
		{"Ball", models.PitchBall},
		{"Intent Ball", models.PitchBall},
		{"Pitchout", models.PitchBall},
		{"In play, out(s)", models.PitchInPlay},
		{"Hit By Pitch", models.PitchUnknown},
		{"", models.PitchUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyText(tt.desc))
		})
	}
}

func TestNormalizeHalf(t *testing.T) {
	assert.Equal(t, models.HalfTop, NormalizeHalf(" Top "))
	assert.Equal(t, models.HalfTop, NormalizeHalf("t"))
	assert.Equal(t, models.HalfBottom, NormalizeHalf("BOTTOM"))
	assert.Equal(t, models.HalfBottom, NormalizeHalf("bot"))
	assert.Equal(t, "", NormalizeHalf("middle"))
}
