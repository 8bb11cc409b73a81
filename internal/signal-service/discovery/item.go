package discovery

import (
	"context"
	"errors"

	"github.com/radieske/football-signals/internal/signal-service/match"
)

// Channel tells the extractor which timestamp layouts apply.
type Channel string

const (
	ChannelAPI    Channel = "api"
	ChannelScrape Channel = "scrape"
)

var (
	// ErrSourceFailed means both the API and the scrape attempt failed for a source.
	ErrSourceFailed = errors.New("source failed")
	// ErrExtraction marks a single malformed item.
	ErrExtraction = errors.New("extraction failed")
)

// RawItem is one unparsed event as a source delivered it. API items carry Home/Away,
// scraped items carry a combined Label.
type RawItem struct {
	SourceID  string
	Channel   Channel
	Label     string
	Home      string
	Away      string
	League    string
	OddsA     string
	OddsB     string
	StartTime string
}

// Adapter fetches one source and turns its raw items into matches.
type Adapter interface {
	ID() string
	Fetch(ctx context.Context) ([]RawItem, error)
	Extract(item RawItem) (match.Match, error)
}
