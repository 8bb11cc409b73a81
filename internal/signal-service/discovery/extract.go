package discovery

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/radieske/football-signals/internal/signal-service/match"
)

// DefaultDelimiter splits "Home vs Away" when a source sets none.
const DefaultDelimiter = " vs "

// Extractor holds the per-source parsing parameters shared by all adapters.
type Extractor struct {
	SourceID  string
	Delimiter string
	Now       func() time.Time

	// OnTimeFallback is called when a start time could not be parsed.
	OnTimeFallback func(raw string)
}

// Extract parses one item field by field. Any malformed field fails this item only.
func (e Extractor) Extract(item RawItem) (match.Match, error) {
	home, away, err := e.teams(item)
	if err != nil {
		return match.Match{}, err
	}

	a, err := ParseOdds(item.OddsA)
	if err != nil {
		return match.Match{}, err
	}
	b, err := ParseOdds(item.OddsB)
	if err != nil {
		return match.Match{}, err
	}

	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}
	start, ok := ParseStartTime(item.StartTime, item.Channel, now)
	if !ok && e.OnTimeFallback != nil {
		e.OnTimeFallback(item.StartTime)
	}

	league := strings.TrimSpace(item.League)
	if league == "" {
		league = match.UnknownLeague
	}

	source := item.SourceID
	if source == "" {
		source = e.SourceID
	}

	return match.Match{
		HomeTeam:  home,
		AwayTeam:  away,
		League:    league,
		SourceID:  source,
		OddsA:     a,
		OddsB:     b,
		StartTime: start,
	}, nil
}

func (e Extractor) teams(item RawItem) (string, string, error) {
	if item.Home != "" || item.Away != "" {
		home, away := strings.TrimSpace(item.Home), strings.TrimSpace(item.Away)
		if home == "" || away == "" {
			return "", "", fmt.Errorf("%w: missing team (home=%q away=%q)", ErrExtraction, item.Home, item.Away)
		}
		return home, away, nil
	}
	return SplitTeams(item.Label, e.Delimiter)
}

// SplitTeams splits a combined label into exactly two non-empty names.
func SplitTeams(label, delimiter string) (string, string, error) {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	parts := strings.Split(strings.TrimSpace(label), delimiter)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: label %q does not split on %q", ErrExtraction, label, delimiter)
	}
	home, away := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if home == "" || away == "" {
		return "", "", fmt.Errorf("%w: empty team in %q", ErrExtraction, label)
	}
	return home, away, nil
}

// ParseOdds accepts "4.25" and "4,25". Non-numeric or non-positive values fail.
func ParseOdds(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: odds %q: %v", ErrExtraction, s, err)
	}
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: odds %q not a positive number", ErrExtraction, s)
	}
	return v, nil
}
