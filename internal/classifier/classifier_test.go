package classifier

import (
	"testing"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/internal/logger"
	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/models"
	"github.com/stretchr/testify/assert"
)

func snap(cursor string, hasChanges bool) *models.GameSnapshot {
	return &models.GameSnapshot{Success: true, Timestamp: cursor, HasChanges: hasChanges}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		previous string
		snapshot *models.GameSnapshot
		want     Classification
	}{
		{"first snapshot always changed", "", snap("T1", false), Changed},
		{"first snapshot with changes", "", snap("T1", true), Changed},
		{"no changes same cursor", "T1", snap("T1", false), Unchanged},
		{"no changes newer cursor", "T1", snap("T2", false), Unchanged},
		{"changes newer cursor", "T1", snap("T2", true), Changed},
		{"changes same cursor", "T2", snap("T2", true), Unchanged},
		{"changes older cursor", "T2", snap("T1", true), Unchanged},
		{"nil snapshot", "T1", nil, Unchanged},
		{
			"rfc3339 newer",
			"2024-04-12T19:05:01Z",
			snap("2024-04-12T19:05:02.5Z", true),
			Changed,
		},
		{
			"rfc3339 different zones same instant",
			"2024-04-12T19:05:01Z",
			snap("2024-04-12T15:05:01-04:00", true),
			Unchanged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(logger.Discard())
			assert.Equal(t, tt.want, c.Classify(tt.previous, tt.snapshot))
		})
	}
}

func TestClassify_CountsNonMonotonic(t *testing.T) {
	c := New(logger.Discard())

	c.Classify("T2", snap("T1", true))
	c.Classify("T2", snap("T2", true))
	c.Classify("T2", snap("T1", false)) // no claim, not counted
	c.Classify("T2", snap("T3", true))

	assert.Equal(t, int64(2), c.NonMonotonicCount())
}

func TestCompareCursors(t *testing.T) {
	assert.Equal(t, -1, CompareCursors("2024-04-12T19:05:01Z", "2024-04-12T19:05:01.1Z"))
	assert.Equal(t, 1, CompareCursors("b", "a"))
	assert.Equal(t, 0, CompareCursors("", ""))
	// mixed forms fall back to lexicographic order
	assert.Equal(t, -1, CompareCursors("2024-04-12T19:05:01Z", "x"))
}

func TestClassification_String(t *testing.T) {
	assert.Equal(t, "changed", Changed.String())
	assert.Equal(t, "unchanged", Unchanged.String())
}
