package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"fbcal/internal/config"
	"fbcal/internal/ics"
	"fbcal/internal/model"
	"fbcal/internal/scrape"
	"fbcal/internal/session"
)

// Format selects the output document type.
type Format int

const (
	FormatICS Format = iota
	FormatJSON
)

// Options configures one pipeline run.
type Options struct {
	Config *config.Config

	// Pages are listing page aliases, paths or URLs. Empty means every
	// page in the configured alias table.
	Pages []string

	// EventURLs, when non-empty, are extracted directly and discovery is
	// skipped entirely.
	EventURLs []string

	Out    io.Writer
	Format Format

	// OutDir, when non-empty, selects directory storage: one .ics file per
	// event id instead of a single document on Out. Format is ignored.
	OutDir string
}

// Summary is the run report: what was discovered, what was produced, and
// every non-fatal error that was swallowed along the way.
type Summary struct {
	RunID      string
	Discovered int
	Extracted  int
	Duplicates int
	Failed     int
	Stalled    int
	Errors     []error
}

// Run executes the whole pipeline: acquire the browser session, discover
// event URLs from the listings, extract each event, deduplicate by id
// keeping the first-seen record, and serialize in discovery order.
//
// Zero extracted events is a successful run (an empty calendar is valid
// output). Only an authentication failure or the inability to load any
// listing at all is fatal; everything else is accumulated in the summary.
func Run(ctx context.Context, opts Options) (*Summary, error) {
	cfg := opts.Config
	sum := &Summary{RunID: uuid.NewString()}
	logger := log.WithField("run_id", sum.RunID)

	loc, err := cfg.Location()
	if err != nil {
		return sum, err
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Host == "" {
		return sum, fmt.Errorf("pipeline: invalid base URL %q", cfg.BaseURL)
	}

	// Configuration errors surface before any network activity.
	cookies, err := session.LoadCookies(cfg.CookieFile)
	if err != nil {
		return sum, err
	}

	sess, err := session.New(ctx, session.Options{
		BaseURL:     cfg.BaseURL,
		Cookies:     cookies,
		Headless:    cfg.Headless,
		PageTimeout: cfg.PageTimeout(),
	})
	if err != nil {
		return sum, err
	}
	defer sess.Close()

	urls, err := discover(ctx, sess, base, opts, sum, logger)
	if err != nil {
		return sum, err
	}
	sum.Discovered = len(urls)

	extractor := scrape.NewExtractor(sess, base, scrape.NewDateParser(loc))
	records, err := extract(ctx, extractor, urls, sum, logger)
	if err != nil {
		return sum, err
	}

	ser := ics.NewSerializer()
	ser.Duration = cfg.DefaultEventDuration()
	switch {
	case opts.OutDir != "":
		_, err = ics.NewDirectory(opts.OutDir, ser).WriteAll(records)
	case opts.Format == FormatJSON:
		err = writeJSON(opts.Out, records)
	default:
		_, err = ser.Serialize(opts.Out, records)
	}
	if err != nil {
		return sum, err
	}

	logger.WithFields(log.Fields{
		"discovered": sum.Discovered,
		"extracted":  sum.Extracted,
		"duplicates": sum.Duplicates,
		"failed":     sum.Failed,
		"stalled":    sum.Stalled,
	}).Info("run finished")

	return sum, nil
}

// discover resolves the configured listings into a flat, ordered URL list.
// Individual listing failures are recorded; only all listings failing is
// fatal. Event-URL mode bypasses discovery.
func discover(ctx context.Context, sess *session.Session, base *url.URL, opts Options, sum *Summary, logger *log.Entry) ([]string, error) {
	if len(opts.EventURLs) > 0 {
		return opts.EventURLs, nil
	}

	cfg := opts.Config
	pages := make([]string, 0, len(opts.Pages))
	for _, p := range opts.Pages {
		pages = append(pages, cfg.ResolvePage(p))
	}
	if len(pages) == 0 {
		pages = cfg.ListingPages()
	}

	sel := scrape.DefaultSelectors()
	paginator := &scrape.Paginator{
		LinkSelector: sel.EventLink,
		Normalize: func(href string) (string, bool) {
			u, _, err := scrape.NormalizeEventURL(base, href)
			return u, err == nil
		},
		MaxRounds: cfg.MaxScrollRounds,
		Wait:      cfg.ScrollWait(),
		Retries:   cfg.LoadMoreRetries,
	}

	var urls []string
	loaded := 0
	for _, p := range pages {
		ref, err := url.Parse(p)
		if err != nil {
			sum.Errors = append(sum.Errors, fmt.Errorf("pipeline: bad listing page %q: %w", p, err))
			continue
		}
		listURL := base.ResolveReference(ref).String()

		page, err := sess.Open(ctx, listURL)
		if err != nil {
			var authErr *session.AuthError
			if errors.As(err, &authErr) {
				return nil, err
			}
			logger.WithField("page", listURL).WithError(err).Warn("listing page failed to load")
			sum.Errors = append(sum.Errors, err)
			continue
		}
		loaded++

		if _, err := page.Click(ctx, sel.Consent); err != nil {
			logger.WithField("page", listURL).WithError(err).Debug("consent bypass failed")
		}

		d, err := paginator.Discover(ctx, page)
		urls = append(urls, d.URLs...)
		if err != nil {
			var stall *scrape.StalledError
			if errors.As(err, &stall) {
				sum.Stalled++
				sum.Errors = append(sum.Errors, err)
				logger.WithField("page", listURL).WithError(err).Warn("listing truncated")
				continue
			}
			return urls, err
		}
		logger.WithFields(log.Fields{
			"page":   listURL,
			"links":  len(d.URLs),
			"rounds": d.Rounds,
		}).Info("listing discovered")
	}

	if loaded == 0 && len(pages) > 0 {
		return nil, fmt.Errorf("pipeline: no listing page could be loaded (%d attempted)", len(pages))
	}
	return urls, nil
}

// extract maps the extractor over the URLs, deduplicating by record id and
// keeping the first-seen record. The run deadline is honored between
// events, never mid-parse. An authentication failure is fatal and aborts
// the run.
func extract(ctx context.Context, extractor *scrape.Extractor, urls []string, sum *Summary, logger *log.Entry) ([]model.EventRecord, error) {
	seen := make(map[string]bool)
	records := make([]model.EventRecord, 0, len(urls))

	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		rec, err := extractor.Extract(ctx, u)
		if err != nil {
			var authErr *session.AuthError
			if errors.As(err, &authErr) {
				return records, err
			}
			sum.Failed++
			sum.Errors = append(sum.Errors, err)
			logger.WithField("url", u).WithError(err).Warn("event skipped")
			continue
		}

		if seen[rec.ID] {
			sum.Duplicates++
			logger.WithField("id", rec.ID).Debug("duplicate event collapsed")
			continue
		}
		seen[rec.ID] = true
		records = append(records, *rec)
		sum.Extracted++

		logger.WithFields(log.Fields{
			"id":    rec.ID,
			"title": rec.Title,
			"start": rec.Start,
		}).Info("event extracted")
	}
	return records, nil
}
