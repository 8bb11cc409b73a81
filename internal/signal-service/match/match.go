package match

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// UnknownLeague is used when a source gives no league.
const UnknownLeague = "unknown league"

// Match is one candidate event observed at one source. Read-only after extraction.
type Match struct {
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	League    string    `json:"league"`
	SourceID  string    `json:"source_id"`
	OddsA     float64   `json:"odds_a"`
	OddsB     float64   `json:"odds_b"`
	StartTime time.Time `json:"start_time"`
}

// Key identifies an observation: normalized teams, source and start minute.
type Key struct {
	Home     string
	Away     string
	SourceID string
	Minute   time.Time
}

func (m Match) Key() Key {
	return Key{
		Home:     NormalizeTeam(m.HomeTeam),
		Away:     NormalizeTeam(m.AwayTeam),
		SourceID: m.SourceID,
		Minute:   m.StartTime.UTC().Truncate(time.Minute),
	}
}

// String renders the key for storage and Redis, e.g. "arsenal|chelsea|1xbet|202401151930".
func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", k.Home, k.Away, k.SourceID, k.Minute.Format("200601021504"))
}

// NormalizeTeam folds case, strips diacritics and collapses whitespace.
func NormalizeTeam(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, name)
	if err != nil {
		out = name
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}
