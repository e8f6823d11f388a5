package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"fbcal/internal/model"
	"fbcal/internal/session"
)

// ExtractionError reports that a single event page could not be turned into
// a record. It is non-fatal: the event is skipped and the run continues.
type ExtractionError struct {
	URL   string
	Field string
	Err   error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scrape: %s: cannot extract %s: %v", e.URL, e.Field, e.Err)
	}
	return fmt.Sprintf("scrape: %s: cannot extract %s", e.URL, e.Field)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Navigator is the slice of the session surface the extractor needs.
type Navigator interface {
	Open(ctx context.Context, url string) (session.Page, error)
}

// Extractor turns event detail pages into EventRecords. Field resolution
// priority for times: machine-readable attributes first (epoch, then ISO
// microdata), visible localized text second, failure if neither parses.
type Extractor struct {
	Nav   Navigator
	Sel   Selectors
	Base  *url.URL
	Dates *DateParser
}

// NewExtractor returns an extractor with the default selector table.
func NewExtractor(nav Navigator, base *url.URL, dates *DateParser) *Extractor {
	return &Extractor{Nav: nav, Sel: DefaultSelectors(), Base: base, Dates: dates}
}

// Extract loads one event page and parses it into a record. Title and start
// time are mandatory; location, description and image are emitted when
// present and silently absent otherwise.
func (x *Extractor) Extract(ctx context.Context, rawURL string) (*model.EventRecord, error) {
	eventURL, id, err := NormalizeEventURL(x.Base, rawURL)
	if err != nil {
		return nil, &ExtractionError{URL: rawURL, Field: "url", Err: err}
	}

	page, err := x.Nav.Open(ctx, eventURL)
	if err != nil {
		var authErr *session.AuthError
		if errors.As(err, &authErr) {
			// Fatal; the pipeline aborts on this one.
			return nil, err
		}
		return nil, &ExtractionError{URL: eventURL, Field: "page", Err: err}
	}

	if _, err := page.Click(ctx, x.Sel.Consent); err != nil {
		log.WithField("url", eventURL).WithError(err).Debug("consent bypass failed")
	}

	title, err := page.Text(ctx, x.Sel.Title)
	if err != nil {
		return nil, &ExtractionError{URL: eventURL, Field: "title", Err: err}
	}
	if title == "" {
		return nil, &ExtractionError{URL: eventURL, Field: "title"}
	}

	start, end, allDay, err := x.resolveTimes(ctx, page)
	if err != nil {
		return nil, &ExtractionError{URL: eventURL, Field: "start", Err: err}
	}

	rec := &model.EventRecord{
		ID:     id,
		Title:  title,
		Start:  start,
		End:    end,
		AllDay: allDay,
		URL:    eventURL,
	}

	// Optional fields: absence is fine, the record is emitted regardless.
	if infos, err := page.Texts(ctx, x.Sel.InfoRows); err == nil && len(infos) > 1 {
		rec.Location = infos[1]
	}
	if desc, err := page.Text(ctx, x.Sel.Description); err == nil {
		rec.Description = desc
	}
	if src, ok, err := page.Attr(ctx, x.Sel.Image, "src"); err == nil && ok {
		rec.ImageURL = src
	}

	return rec, nil
}

// resolveTimes applies the extraction priority: epoch attribute, then ISO
// microdata, then the visible localized text.
func (x *Extractor) resolveTimes(ctx context.Context, page session.Page) (start, end time.Time, allDay bool, err error) {
	if v, ok, aerr := page.Attr(ctx, x.Sel.StartEpoch, "data-utime"); aerr == nil && ok {
		if secs, perr := strconv.ParseInt(strings.TrimSpace(v), 10, 64); perr == nil {
			start = time.Unix(secs, 0).In(x.Dates.Loc)
			if v, ok, _ := page.Attr(ctx, x.Sel.EndEpoch, "data-utime-end"); ok {
				if secs, perr := strconv.ParseInt(strings.TrimSpace(v), 10, 64); perr == nil {
					end = time.Unix(secs, 0).In(x.Dates.Loc)
				}
			}
			return start, end, false, nil
		}
	}

	if v, ok, aerr := page.Attr(ctx, x.Sel.StartMeta, "content"); aerr == nil && ok {
		if t, dateOnly, perr := parseISO(v, x.Dates.Loc); perr == nil {
			start = t
			if v, ok, _ := page.Attr(ctx, x.Sel.EndMeta, "content"); ok {
				if t, _, perr := parseISO(v, x.Dates.Loc); perr == nil {
					end = t
				}
			}
			return start, end, dateOnly, nil
		}
	}

	infos, terr := page.Texts(ctx, x.Sel.InfoRows)
	if terr != nil {
		return start, end, false, terr
	}
	if len(infos) == 0 {
		return start, end, false, errors.New("no time information on page")
	}
	return x.Dates.Parse(infos[0])
}

// parseISO accepts the ISO forms the site embeds in microdata: RFC 3339,
// the compact +hhmm offset variant, and bare dates (all-day).
func parseISO(s string, loc *time.Location) (t time.Time, dateOnly bool, err error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05-0700", "2006-01-02T15:04-0700"} {
		if t, err = time.Parse(layout, s); err == nil {
			return t.In(loc), false, nil
		}
	}
	if t, err = time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, fmt.Errorf("scrape: unparseable ISO timestamp %q", s)
}
