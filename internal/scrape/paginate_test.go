package scrape

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeListing simulates an infinite-scroll listing: every scroll reveals the
// next batch of links, and Links always returns everything revealed so far.
type fakeListing struct {
	batches   [][]string
	revealed  int
	scrolls   int
	scrollErr error
}

func (f *fakeListing) URL() string { return "https://example.test/listing" }

func (f *fakeListing) Links(ctx context.Context, sel string) ([]string, error) {
	var out []string
	for i := 0; i <= f.revealed && i < len(f.batches); i++ {
		out = append(out, f.batches[i]...)
	}
	return out, nil
}

func (f *fakeListing) ScrollBottom(ctx context.Context) error {
	f.scrolls++
	if f.scrollErr != nil {
		return f.scrollErr
	}
	if f.revealed < len(f.batches)-1 {
		f.revealed++
	}
	return nil
}

func (f *fakeListing) Text(ctx context.Context, sel string) (string, error)    { return "", nil }
func (f *fakeListing) Texts(ctx context.Context, sel string) ([]string, error) { return nil, nil }
func (f *fakeListing) Attr(ctx context.Context, sel, name string) (string, bool, error) {
	return "", false, nil
}
func (f *fakeListing) Click(ctx context.Context, sel string) (bool, error) { return false, nil }

func fastPaginator() *Paginator {
	return &Paginator{
		LinkSelector: "a",
		MaxRounds:    10,
		Wait:         5 * time.Millisecond,
		Poll:         time.Millisecond,
		Retries:      2,
	}
}

func TestDiscoverTerminatesWhenListingSettles(t *testing.T) {
	page := &fakeListing{batches: [][]string{
		{"/events/1", "/events/2"},
		{"/events/2", "/events/3"}, // overlap from pagination
		{"/events/4"},
	}}

	d, err := fastPaginator().Discover(context.Background(), page)
	require.NoError(t, err)

	// Three rounds with new links, a fourth that finds nothing new.
	assert.Equal(t, 4, d.Rounds)
	assert.Equal(t, 3, page.scrolls)
	assert.Equal(t, []string{"/events/1", "/events/2", "/events/3", "/events/4"}, d.URLs)
}

func TestDiscoverEmptyListing(t *testing.T) {
	page := &fakeListing{batches: [][]string{{}}}

	d, err := fastPaginator().Discover(context.Background(), page)
	require.NoError(t, err)
	assert.Empty(t, d.URLs)
	assert.Equal(t, 1, d.Rounds)
	assert.Zero(t, page.scrolls)
}

func TestDiscoverNormalizeFiltersAndDedupes(t *testing.T) {
	page := &fakeListing{batches: [][]string{
		{"/events/1?ref=a", "/events/1?ref=b", "/about", "/events/2"},
	}}

	p := fastPaginator()
	p.Normalize = func(href string) (string, bool) {
		switch {
		case href == "/about":
			return "", false
		case href == "/events/1?ref=a", href == "/events/1?ref=b":
			return "/events/1", true
		default:
			return href, true
		}
	}

	d, err := p.Discover(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, []string{"/events/1", "/events/2"}, d.URLs)
}

func TestDiscoverRoundCeiling(t *testing.T) {
	// A listing that never stops producing new links.
	batches := make([][]string, 50)
	for i := range batches {
		batches[i] = []string{string(rune('a'+i%26)) + "/events/x"}
	}
	// Make each batch unique.
	for i := range batches {
		batches[i] = []string{batches[i][0] + string(rune('0' + i/26))}
	}
	page := &fakeListing{batches: batches}

	p := fastPaginator()
	p.MaxRounds = 3

	d, err := p.Discover(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Rounds)
	assert.Len(t, d.URLs, 3)
}

func TestDiscoverStallReturnsPartialResults(t *testing.T) {
	page := &fakeListing{
		batches:   [][]string{{"/events/1"}},
		scrollErr: errors.New("tab crashed"),
	}

	d, err := fastPaginator().Discover(context.Background(), page)

	var stall *StalledError
	require.ErrorAs(t, err, &stall)
	assert.Equal(t, []string{"/events/1"}, d.URLs)
	// Retried before giving up: 1 attempt + 2 retries.
	assert.Equal(t, 3, page.scrolls)
}

func TestDiscoverZeroValueRetriesUseDefault(t *testing.T) {
	page := &fakeListing{
		batches:   [][]string{{"/events/1"}},
		scrollErr: errors.New("tab crashed"),
	}

	p := fastPaginator()
	p.Retries = 0

	_, err := p.Discover(context.Background(), page)

	var stall *StalledError
	require.ErrorAs(t, err, &stall)
	assert.Equal(t, 1+DefaultRetries, page.scrolls)
}

func TestDiscoverHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page := &fakeListing{batches: [][]string{{"/events/1"}}}
	_, err := fastPaginator().Discover(ctx, page)
	assert.ErrorIs(t, err, context.Canceled)
}
