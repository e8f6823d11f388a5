package scrape

import (
	"fmt"
	"net/url"
	"regexp"
)

var eventPathRe = regexp.MustCompile(`^/events/([^/?#]+)`)

// NormalizeEventURL reduces an event link to its canonical form on the
// configured base host and returns the stable event identifier (the path
// segment after /events/). Links that do not point at an event page are
// rejected, which is how listing noise gets filtered out.
func NormalizeEventURL(base *url.URL, href string) (eventURL, id string, err error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", "", fmt.Errorf("scrape: parse link %q: %w", href, err)
	}
	m := eventPathRe.FindStringSubmatch(u.Path)
	if m == nil {
		return "", "", fmt.Errorf("scrape: %q is not an event link", href)
	}
	canonical := &url.URL{Scheme: base.Scheme, Host: base.Host, Path: m[0]}
	return canonical.String(), m[1], nil
}
