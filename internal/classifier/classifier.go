package classifier

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/models"
	"github.com/sirupsen/logrus"
)

// Classification says whether a fetched snapshot carries new information
type Classification int

const (
	Unchanged Classification = iota
	Changed
)

func (c Classification) String() string {
	if c == Changed {
		return "changed"
	}
	return "unchanged"
}

// Classifier decides whether a snapshot should be applied. The server's
// hasChanges flag is honored only when the cursor also moves forward.
type Classifier struct {
	log          logrus.FieldLogger
	nonMonotonic atomic.Int64
}

// New creates a classifier that logs corrected responses to log
func New(log logrus.FieldLogger) *Classifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Classifier{log: log}
}

// Classify compares the snapshot against the previously applied cursor.
// An empty previous cursor means this is the session's first snapshot.
func (c *Classifier) Classify(previousCursor string, snapshot *models.GameSnapshot) Classification {
	if snapshot == nil {
		return Unchanged
	}
	if previousCursor == "" {
		return Changed
	}
	if !snapshot.HasChanges {
		return Unchanged
	}

	if CompareCursors(snapshot.Cursor(), previousCursor) <= 0 {
		c.nonMonotonic.Add(1)
		c.log.WithFields(logrus.Fields{
			"component":       "classifier",
			"game_id":         snapshot.GameID,
			"previous_cursor": previousCursor,
			"cursor":          snapshot.Cursor(),
		}).Warn("Server reported changes without advancing cursor, ignoring snapshot")
		return Unchanged
	}

	return Changed
}

// NonMonotonicCount reports how many claimed changes were rejected
func (c *Classifier) NonMonotonicCount() int64 {
	return c.nonMonotonic.Load()
}

// CompareCursors orders two cursors. Cursors that both parse as RFC 3339
// timestamps compare by time; anything else compares lexicographically.
func CompareCursors(a, b string) int {
	ta, errA := time.Parse(time.RFC3339Nano, a)
	tb, errB := time.Parse(time.RFC3339Nano, b)
	if errA == nil && errB == nil {
		return ta.Compare(tb)
	}
	return strings.Compare(a, b)
}
