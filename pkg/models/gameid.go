package models

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidGameID is returned for identifiers that are not YYYY-MM-DD-AWAY-HOME-N
var ErrInvalidGameID = errors.New("invalid game id")

var teamCodePattern = regexp.MustCompile(`^[A-Z]{2,3}$`)

// GameID is a parsed scorecard game identifier
type GameID struct {
	Date       time.Time
	AwayCode   string
	HomeCode   string
	GameNumber int
}

// ParseGameID parses an identifier of the form YYYY-MM-DD-AWAY-HOME-N
func ParseGameID(id string) (GameID, error) {
	parts := strings.Split(id, "-")
	if len(parts) != 6 {
		return GameID{}, fmt.Errorf("%w: %q: expected 6 dash-separated parts, got %d", ErrInvalidGameID, id, len(parts))
	}

	date, err := time.Parse("2006-01-02", strings.Join(parts[0:3], "-"))
	if err != nil {
		return GameID{}, fmt.Errorf("%w: %q: bad date: %v", ErrInvalidGameID, id, err)
	}

	away, home := parts[3], parts[4]
	if !teamCodePattern.MatchString(away) || !teamCodePattern.MatchString(home) {
		return GameID{}, fmt.Errorf("%w: %q: bad team code", ErrInvalidGameID, id)
	}
	if away == home {
		return GameID{}, fmt.Errorf("%w: %q: team plays itself", ErrInvalidGameID, id)
	}

	number, err := strconv.Atoi(parts[5])
	if err != nil || number < 1 {
		return GameID{}, fmt.Errorf("%w: %q: bad game number", ErrInvalidGameID, id)
	}

	return GameID{Date: date, AwayCode: away, HomeCode: home, GameNumber: number}, nil
}

// DateString returns the game date as YYYY-MM-DD
func (g GameID) DateString() string {
	return g.Date.Format("2006-01-02")
}

// String formats the identifier back into its wire form
func (g GameID) String() string {
	return fmt.Sprintf("%s-%s-%s-%d", g.DateString(), g.AwayCode, g.HomeCode, g.GameNumber)
}
