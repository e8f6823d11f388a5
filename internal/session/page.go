package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// Page is the DOM-query surface handed to the scraping layer. All structural
// knowledge about the site (selectors, attribute names) stays with the
// caller; Page only answers queries against the currently loaded document.
type Page interface {
	// URL returns the page's resolved location after redirects.
	URL() string

	// Text returns the trimmed visible text of the first match, or "" when
	// the selector matches nothing.
	Text(ctx context.Context, sel string) (string, error)

	// Texts returns the visible text of every match, in document order.
	Texts(ctx context.Context, sel string) ([]string, error)

	// Attr returns the named attribute of the first match. ok is false when
	// the node or the attribute is absent.
	Attr(ctx context.Context, sel, name string) (value string, ok bool, err error)

	// Links returns the resolved href of every match, in document order.
	Links(ctx context.Context, sel string) ([]string, error)

	// Click clicks the first match if present and reports whether a node
	// was found.
	Click(ctx context.Context, sel string) (bool, error)

	// ScrollBottom scrolls the window to the bottom of the document,
	// triggering incremental loading on infinite-scroll listings.
	ScrollBottom(ctx context.Context) error
}

// browserPage implements Page against the session's live browser tab.
type browserPage struct {
	sess *Session
	url  string
}

func (p *browserPage) URL() string { return p.url }

// run executes chromedp actions against the session tab, bounded by the
// session page timeout. The caller context only gates entry; the browser
// context owns the actual work so a cancelled caller never leaves the tab
// mid-action.
func (p *browserPage) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(p.sess.browserCtx, p.sess.pageTimeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (p *browserPage) Text(ctx context.Context, sel string) (string, error) {
	texts, err := p.Texts(ctx, sel)
	if err != nil || len(texts) == 0 {
		return "", err
	}
	return texts[0], nil
}

func (p *browserPage) Texts(ctx context.Context, sel string) ([]string, error) {
	js := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q)).map(function(el){return el.innerText})`, sel)
	var out []string
	if err := p.run(ctx, chromedp.Evaluate(js, &out)); err != nil {
		return nil, fmt.Errorf("session: query %q on %s: %w", sel, p.url, err)
	}
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out, nil
}

func (p *browserPage) Attr(ctx context.Context, sel, name string) (string, bool, error) {
	var value string
	var ok bool
	err := p.run(ctx, chromedp.AttributeValue(sel, name, &value, &ok, chromedp.ByQuery, chromedp.AtLeast(0)))
	if err != nil {
		return "", false, fmt.Errorf("session: attribute %s of %q on %s: %w", name, sel, p.url, err)
	}
	return value, ok, nil
}

func (p *browserPage) Links(ctx context.Context, sel string) ([]string, error) {
	// el.href resolves relative hrefs against the document base.
	js := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q)).map(function(el){return el.href})`, sel)
	var out []string
	if err := p.run(ctx, chromedp.Evaluate(js, &out)); err != nil {
		return nil, fmt.Errorf("session: links %q on %s: %w", sel, p.url, err)
	}
	return out, nil
}

func (p *browserPage) Click(ctx context.Context, sel string) (bool, error) {
	var nodes []*cdp.Node
	err := p.run(ctx, chromedp.Nodes(sel, &nodes, chromedp.ByQuery, chromedp.AtLeast(0)))
	if err != nil {
		return false, fmt.Errorf("session: find %q on %s: %w", sel, p.url, err)
	}
	if len(nodes) == 0 {
		return false, nil
	}
	if err := p.run(ctx, chromedp.MouseClickNode(nodes[0])); err != nil {
		return false, fmt.Errorf("session: click %q on %s: %w", sel, p.url, err)
	}
	return true, nil
}

func (p *browserPage) ScrollBottom(ctx context.Context) error {
	err := p.run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
	if err != nil {
		return fmt.Errorf("session: scroll %s: %w", p.url, err)
	}
	return nil
}
