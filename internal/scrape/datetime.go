package scrape

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// dateTextRe matches the site's localized time lines, e.g.
//
//	"Samstag, 5. Juni 2021 von 19:00 bis 23:00 UTC+02"
//	"Heute um 20:00"
//	"Freitag um 21:30 UTC+01"
var dateTextRe = regexp.MustCompile(
	`^(?P<dayofweek>.*?)(?:, (?P<date>.*))?(?:(?: von (?P<von>.*) bis (?P<bis>.*))|(?: um (?P<um>.*)))$`)

// clockRe matches a clock time with an optional short UTC offset. The site
// abbreviates offsets ("UTC+02", sometimes "UTC+02:00"); both forms parse.
var clockRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?:\s*UTC([+-])(\d{1,2})(?::?(\d{2}))?)?$`)

var absoluteDateRe = regexp.MustCompile(`^(\d{1,2})\. ([\p{L}]+) (\d{4})$`)

var months = map[string]time.Month{
	"januar": time.January, "februar": time.February, "märz": time.March,
	"april": time.April, "mai": time.May, "juni": time.June,
	"juli": time.July, "august": time.August, "september": time.September,
	"oktober": time.October, "november": time.November, "dezember": time.December,
}

var weekdays = map[string]time.Weekday{
	"montag": time.Monday, "dienstag": time.Tuesday, "mittwoch": time.Wednesday,
	"donnerstag": time.Thursday, "freitag": time.Friday, "samstag": time.Saturday,
	"sonnabend": time.Saturday, "sonntag": time.Sunday,
}

// DateParser resolves the human-readable time text of a detail page into
// concrete timestamps. Text without an explicit UTC offset is interpreted
// in Loc, the configured site timezone; that policy is fixed per run and
// never guessed per event.
type DateParser struct {
	Loc *time.Location

	// Now is injectable for tests; relative day words resolve against it.
	Now func() time.Time

	generic *when.Parser
}

// NewDateParser returns a parser bound to the given site timezone.
func NewDateParser(loc *time.Location) *DateParser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &DateParser{Loc: loc, Now: time.Now, generic: w}
}

// Parse resolves one time-text line. The end time is zero when the text
// names no end; all-day events come back with AllDay set and a date-only
// start. Unparseable text is an error, never a guessed timestamp.
func (p *DateParser) Parse(text string) (start, end time.Time, allDay bool, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return start, end, false, fmt.Errorf("scrape: empty date text")
	}

	if m := dateTextRe.FindStringSubmatch(text); m != nil {
		if start, end, err = p.parseRange(sub(m, "dayofweek"), sub(m, "date"), sub(m, "von"), sub(m, "bis"), sub(m, "um")); err == nil {
			return start, end, false, nil
		}
	}

	// A bare date line means an all-day event.
	if day, derr := p.absoluteDate(text); derr == nil {
		return day, time.Time{}, true, nil
	}

	// Last resort for non-localized text ("Tomorrow at 8 PM" and friends).
	if r, _ := p.generic.Parse(text, p.Now().In(p.Loc)); r != nil {
		return r.Time.In(p.Loc), time.Time{}, false, nil
	}

	return start, end, false, fmt.Errorf("scrape: unparseable date text %q", text)
}

func sub(m []string, name string) string {
	for i, n := range dateTextRe.SubexpNames() {
		if n == name && i < len(m) {
			return m[i]
		}
	}
	return ""
}

func (p *DateParser) parseRange(dayofweek, date, von, bis, um string) (start, end time.Time, err error) {
	day, err := p.datePart(dayofweek, date)
	if err != nil {
		return start, end, err
	}

	startText := von
	if startText == "" {
		startText = um
	}
	startClock, err := p.parseClock(startText)
	if err != nil {
		return start, end, err
	}
	start = startClock.on(day)

	if bis != "" {
		endClock, err := p.parseClock(bis)
		if err != nil {
			return start, end, err
		}
		end = endClock.on(day)
		// An end time earlier than the start means the event runs past
		// midnight.
		for !end.After(start) {
			end = end.Add(24 * time.Hour)
		}
	}

	return start, end, nil
}

// datePart resolves the day portion: relative words, bare weekday names
// (meaning the next such weekday) or an absolute date.
func (p *DateParser) datePart(dayofweek, date string) (time.Time, error) {
	today := p.today()
	switch {
	case date != "":
		return p.absoluteDate(date)
	case strings.EqualFold(dayofweek, "Heute"):
		return today, nil
	case strings.EqualFold(dayofweek, "Morgen"):
		return today.AddDate(0, 0, 1), nil
	}
	wd, ok := weekdays[strings.ToLower(dayofweek)]
	if !ok {
		return time.Time{}, fmt.Errorf("scrape: unknown day %q", dayofweek)
	}
	off := int(wd) - int(today.Weekday())
	for off <= 0 {
		off += 7
	}
	return today.AddDate(0, 0, off), nil
}

func (p *DateParser) absoluteDate(s string) (time.Time, error) {
	m := absoluteDateRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return time.Time{}, fmt.Errorf("scrape: unparseable date %q", s)
	}
	day, _ := strconv.Atoi(m[1])
	month, ok := months[strings.ToLower(m[2])]
	if !ok {
		return time.Time{}, fmt.Errorf("scrape: unknown month %q", m[2])
	}
	year, _ := strconv.Atoi(m[3])
	return time.Date(year, month, day, 0, 0, 0, 0, p.Loc), nil
}

// clock is a wall-clock time with its resolved zone.
type clock struct {
	hour, min int
	loc       *time.Location
}

func (c clock) on(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.hour, c.min, 0, 0, c.loc)
}

// parseClock parses "19:00", "19:00 UTC+02" or "19:00 UTC+02:00". Without
// an offset the configured site timezone applies.
func (p *DateParser) parseClock(s string) (clock, error) {
	m := clockRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return clock{}, fmt.Errorf("scrape: unparseable time %q", s)
	}
	hour, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	if hour > 23 || min > 59 {
		return clock{}, fmt.Errorf("scrape: invalid time %q", s)
	}

	loc := p.Loc
	if m[3] != "" {
		offH, _ := strconv.Atoi(m[4])
		offM := 0
		if m[5] != "" {
			offM, _ = strconv.Atoi(m[5])
		}
		secs := offH*3600 + offM*60
		if m[3] == "-" {
			secs = -secs
		}
		loc = time.FixedZone(fmt.Sprintf("UTC%s%02d%02d", m[3], offH, offM), secs)
	}

	return clock{hour: hour, min: min, loc: loc}, nil
}

func (p *DateParser) today() time.Time {
	now := p.Now().In(p.Loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, p.Loc)
}
