package pitchindex

import (
	"sync"

	"github.com/XavierBriggs/fortuna/services/scorecard-live/pkg/models"
)

// Lazy holds the most recently applied snapshot and derives its index on the
// first lookup after a change. A new snapshot discards the old index whole.
type Lazy struct {
	mu       sync.Mutex
	snapshot *models.GameSnapshot
	index    *Index
	builds   int
}

// NewLazy creates an empty holder
func NewLazy() *Lazy {
	return &Lazy{}
}

// Reset swaps in a newly applied snapshot
func (l *Lazy) Reset(snapshot *models.GameSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.snapshot = snapshot
	l.index = nil
}

// Index returns the index for the current snapshot, building it if needed
func (l *Lazy) Index() *Index {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.index == nil && l.snapshot != nil {
		l.index = Build(l.snapshot.LiveData)
		l.builds++
	}
	return l.index
}

// Lookup is GetPitchSequence against the most recent snapshot
func (l *Lazy) Lookup(batter string, inning int, halfInning string) *models.AtBatPitchSequence {
	return l.Index().Lookup(batter, inning, halfInning)
}

// Builds reports how many times an index was derived
func (l *Lazy) Builds() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.builds
}
