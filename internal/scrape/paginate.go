package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	log "github.com/sirupsen/logrus"

	"fbcal/internal/session"
)

// Pagination defaults, used when the corresponding Paginator field is zero.
const (
	DefaultMaxRounds = 20
	DefaultWait      = 10 * time.Second
	DefaultPoll      = 500 * time.Millisecond
	DefaultRetries   = 2
)

// StalledError reports that the listing stopped responding to load-more
// interactions before it settled. The URLs discovered up to that point are
// still valid; the condition truncates the run, it does not abort it.
type StalledError struct {
	URL    string
	Rounds int
	Err    error
}

func (e *StalledError) Error() string {
	return fmt.Sprintf("scrape: pagination stalled on %s after %d rounds: %v", e.URL, e.Rounds, e.Err)
}

func (e *StalledError) Unwrap() error { return e.Err }

// Paginator walks an infinite-scroll listing: collect the currently visible
// event links, scroll to the bottom to trigger the next batch, wait a
// bounded time for new links, and stop as soon as an iteration discovers
// nothing new or the round ceiling is hit.
type Paginator struct {
	// LinkSelector matches the event anchors on the listing.
	LinkSelector string

	// Normalize canonicalizes a raw href and reports whether it should be
	// kept. Nil keeps every href verbatim.
	Normalize func(href string) (string, bool)

	// MaxRounds caps collect/scroll iterations on listings that never
	// stabilize (rotating ad or suggestion modules).
	MaxRounds int

	// Wait bounds how long one load-more interaction may take to surface
	// new links; Poll is the check interval during that wait.
	Wait time.Duration
	Poll time.Duration

	// Retries bounds re-attempts of a failed load-more interaction before
	// the listing is treated as exhausted. Zero means DefaultRetries.
	Retries int
}

// Discovery is the outcome of walking one listing page: the deduplicated
// event URLs in discovery order, and the number of iterations it took.
type Discovery struct {
	URLs   []string
	Rounds int
}

// Discover drives the listing until it yields no new links. Each URL is
// emitted at most once, in the order it was first seen. On a stall the
// partial discovery is returned together with a *StalledError.
func (p *Paginator) Discover(ctx context.Context, page session.Page) (*Discovery, error) {
	maxRounds := p.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	wait := p.Wait
	if wait <= 0 {
		wait = DefaultWait
	}
	poll := p.Poll
	if poll <= 0 {
		poll = DefaultPoll
	}

	seen := make(map[string]bool)
	var order []string
	d := &Discovery{}

	// collect gathers all currently visible links, returning how many were
	// new and how many raw anchors the page exposed.
	collect := func() (added, raw int, err error) {
		hrefs, err := page.Links(ctx, p.LinkSelector)
		if err != nil {
			return 0, 0, err
		}
		for _, href := range hrefs {
			u, ok := href, true
			if p.Normalize != nil {
				u, ok = p.Normalize(href)
			}
			if !ok || seen[u] {
				continue
			}
			seen[u] = true
			order = append(order, u)
			added++
		}
		return added, len(hrefs), nil
	}

	for d.Rounds < maxRounds {
		if err := ctx.Err(); err != nil {
			d.URLs = order
			return d, err
		}
		d.Rounds++

		added, raw, err := collect()
		if err != nil {
			d.URLs = order
			return d, &StalledError{URL: page.URL(), Rounds: d.Rounds, Err: err}
		}
		log.WithFields(log.Fields{
			"url":   page.URL(),
			"round": d.Rounds,
			"new":   added,
			"total": len(order),
		}).Debug("pagination round")

		if added == 0 {
			break
		}
		if d.Rounds == maxRounds {
			log.WithField("url", page.URL()).Warn("pagination round ceiling reached, truncating listing")
			break
		}

		if err := p.loadMore(ctx, page, raw, wait, poll); err != nil {
			d.URLs = order
			return d, &StalledError{URL: page.URL(), Rounds: d.Rounds, Err: err}
		}
	}

	d.URLs = order
	return d, nil
}

// loadMore triggers the site's incremental loading and waits, bounded, for
// the anchor count to grow past rawBefore. Not seeing new links here is not
// an error; the next collect round makes the termination decision.
func (p *Paginator) loadMore(ctx context.Context, page session.Page, rawBefore int, wait, poll time.Duration) error {
	retries := p.Retries
	if retries <= 0 {
		retries = DefaultRetries
	}

	backoff := retry.WithMaxRetries(uint64(retries), retry.NewConstant(poll))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := page.ScrollBottom(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load more: %w", err)
	}

	deadline := time.Now().Add(wait)
	for {
		links, err := page.Links(ctx, p.LinkSelector)
		if err == nil && len(links) > rawBefore {
			return nil
		}
		if !time.Now().Before(deadline) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}
