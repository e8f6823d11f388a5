package session

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	log "github.com/sirupsen/logrus"
)

// DefaultPageTimeout bounds a single page load when Options leaves it unset.
const DefaultPageTimeout = 30 * time.Second

// AuthError reports that the site redirected to its login page instead of
// rendering the requested content, the standard signal that the supplied
// session cookies are invalid or expired. It aborts the run.
type AuthError struct {
	URL string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("session: redirected to login page at %s: cookies are invalid or expired", e.URL)
}

// Options defines parameters for a browser session.
type Options struct {
	// BaseURL is the site root; it supplies the default cookie domain.
	BaseURL string

	// Cookies are applied to the browser before any navigation.
	Cookies []Cookie

	// Headless starts the browser without a window.
	Headless bool

	// PageTimeout bounds every navigation and DOM query. If zero,
	// DefaultPageTimeout is used.
	PageTimeout time.Duration
}

// Session owns one live headless browser for the duration of a run. It is
// not safe for concurrent navigation; callers sequence all page operations.
// Close must be called on every exit path and is idempotent.
type Session struct {
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	closeOnce     sync.Once

	baseHost    string
	pageTimeout time.Duration
}

// New launches a browser, applies the session cookies and returns the live
// session. The returned session must be closed by the caller.
func New(parent context.Context, opts Options) (*Session, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("session: invalid base URL %q", opts.BaseURL)
	}
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = DefaultPageTimeout
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	s := &Session{
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
		baseHost:      base.Host,
		pageTimeout:   opts.PageTimeout,
	}

	if err := s.setCookies(opts.Cookies); err != nil {
		s.Close()
		return nil, err
	}

	log.WithFields(log.Fields{
		"base":     base.Host,
		"cookies":  len(opts.Cookies),
		"headless": opts.Headless,
	}).Debug("browser session started")

	return s, nil
}

// setCookies starts the browser and installs the cookie set before the
// first navigation.
func (s *Session) setCookies(cookies []Cookie) error {
	startCtx, cancel := context.WithTimeout(s.browserCtx, s.pageTimeout)
	defer cancel()

	defaultDomain := "." + strings.TrimPrefix(s.baseHost, "www.")

	return chromedp.Run(startCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			domain := c.Domain
			if domain == "" {
				domain = defaultDomain
			}
			path := c.Path
			if path == "" {
				path = "/"
			}
			err := network.SetCookie(c.Name, c.Value).
				WithDomain(domain).
				WithPath(path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly).
				Do(ctx)
			if err != nil {
				return fmt.Errorf("session: set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
}

// Open navigates to the given URL, waits for the document to become ready
// and returns a Page handle. It returns *AuthError when the site answers
// with a login redirect.
func (s *Session) Open(ctx context.Context, rawURL string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(s.browserCtx, s.pageTimeout)
	defer cancel()

	var loc string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&loc),
	)
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", rawURL, err)
	}

	if isLoginRedirect(loc) {
		return nil, &AuthError{URL: loc}
	}

	return &browserPage{sess: s, url: loc}, nil
}

// Close releases the browser. Safe to call multiple times; only the first
// call has an effect.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancelBrowser()
		s.cancelAlloc()
		log.Debug("browser session closed")
	})
}

// isLoginRedirect recognizes the site's login and checkpoint pages.
func isLoginRedirect(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	return strings.HasPrefix(p, "/login") ||
		strings.Contains(p, "login.php") ||
		strings.HasPrefix(p, "/checkpoint")
}
