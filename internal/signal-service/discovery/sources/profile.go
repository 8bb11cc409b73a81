package sources

import "github.com/radieske/football-signals/internal/shared/config"

// Selectors locate fields inside one event node of a bookmaker page.
// Teams yields one combined label; Team yields one node per side.
type Selectors struct {
	Item   string
	Teams  string
	Team   string
	Odds   string
	Time   string
	League string
}

// Profile is everything needed to talk to one bookmaker.
type Profile struct {
	ID        string
	APIURL    string // empty: scrape only
	PageURL   string
	Delimiter string
	Proxy     string
	Selectors Selectors
}

const (
	genericTeam   = `[class*="team"], [class*="participant"]`
	genericOdds   = `[class*="odds"], [class*="coefficient"], [class*="price"]`
	genericTime   = `[class*="time"], [class*="date"]`
	genericLeague = `[class*="league"], [class*="competition"]`
)

func genericSelectors(item string) Selectors {
	return Selectors{Item: item, Team: genericTeam, Odds: genericOdds, Time: genericTime, League: genericLeague}
}

// builtin profiles, keyed by source id
var builtin = map[string]Profile{
	"1xbet": {
		ID:        "1xbet",
		APIURL:    "https://1xbet.com/api/live/football",
		PageURL:   "https://1xbet.com/ru/live/football",
		Delimiter: " - ",
		Selectors: Selectors{
			Item:   "div.c-events__item",
			Teams:  "div.c-events__teams",
			Odds:   "span.c-bets__bet",
			Time:   "div.c-events__time",
			League: "div.c-events__league",
		},
	},
	"bet365": {
		ID:        "bet365",
		APIURL:    "https://www.bet365.com/api/live/football",
		PageURL:   "https://www.bet365.com/sport/football",
		Delimiter: " v ",
		Selectors: Selectors{
			Item:   "div.gl-Market_General",
			Teams:  "span.gl-ParticipantFixtureDetails_TeamName",
			Odds:   "span.gl-ParticipantOddsOnly_Odds",
			Time:   "span.gl-ParticipantFixtureDetails_BookCloses",
			League: "span.gl-ParticipantFixtureDetails_LeagueName",
		},
	},
	"williamhill": {
		ID:        "williamhill",
		APIURL:    "https://sports.williamhill.com/api/live/football",
		PageURL:   "https://sports.williamhill.com/betting/en-gb/football",
		Delimiter: " v ",
		Selectors: genericSelectors("div.btmarket__selection"),
	},
	"bwin": {
		ID:        "bwin",
		PageURL:   "https://sports.bwin.com/en/sports/football-4",
		Selectors: genericSelectors("div.market"),
	},
	"unibet": {
		ID:        "unibet",
		PageURL:   "https://www.unibet.com/sports/football",
		Selectors: genericSelectors("div.event"),
	},
}

// merge overlays non-empty config fields on a base profile.
func merge(base Profile, c config.SourceConfig) Profile {
	p := base
	p.ID = c.ID
	if c.APIURL != "" {
		p.APIURL = c.APIURL
	}
	if c.PageURL != "" {
		p.PageURL = c.PageURL
	}
	if c.Delimiter != "" {
		p.Delimiter = c.Delimiter
	}
	if c.Proxy != "" {
		p.Proxy = c.Proxy
	}
	s := c.Selectors
	for dst, src := range map[*string]string{
		&p.Selectors.Item:   s.Item,
		&p.Selectors.Teams:  s.Teams,
		&p.Selectors.Team:   s.Team,
		&p.Selectors.Odds:   s.Odds,
		&p.Selectors.Time:   s.Time,
		&p.Selectors.League: s.League,
	} {
		if src != "" {
			*dst = src
		}
	}
	if p.Selectors.Teams == "" && p.Selectors.Team == "" {
		p.Selectors.Team = genericTeam
	}
	if p.Selectors.Odds == "" {
		p.Selectors.Odds = genericOdds
	}
	return p
}
