package discovery

import (
	"strings"
	"time"
)

const clockLayout = "15:04"

var apiLayouts = []string{
	"2006-01-02T15:04:05.999999Z",
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"02.01.2006 15:04",
	clockLayout,
}

var scrapeLayouts = []string{
	clockLayout,
	"02.01.2006 15:04",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04",
}

// FallbackOffset is added to now when no layout matches.
const FallbackOffset = time.Hour

func layoutsFor(ch Channel) []string {
	if ch == ChannelAPI {
		return apiLayouts
	}
	return scrapeLayouts
}

// ParseStartTime tries the channel's layouts in order. A bare clock time is bound to
// now's date. The second result is false when the fallback (now + 1h) was used.
func ParseStartTime(s string, ch Channel, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	loc := now.Location()

	for _, layout := range layoutsFor(ch) {
		if layout == clockLayout {
			t, err := time.ParseInLocation(layout, s, loc)
			if err != nil {
				continue
			}
			y, m, d := now.Date()
			return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc), true
		}

		var (
			t   time.Time
			err error
		)
		if strings.HasSuffix(layout, "Z") {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, loc)
		}
		if err == nil {
			return t, true
		}
	}

	return now.Add(FallbackOffset), false
}
