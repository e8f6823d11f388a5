package scrape

// Selectors concentrates every structural assumption about the scraped
// pages in one place. The site has no stable API, so when its markup
// shifts, this table is the only thing that needs updating.
type Selectors struct {
	// EventLink matches event anchors on a listing page.
	EventLink string

	// Consent matches the cookie-consent accept button, when present.
	Consent string

	// Title matches the event name on a detail page.
	Title string

	// InfoRows matches the summary rows of a detail page; the first row
	// holds the time text, the second the location.
	InfoRows string

	// Description matches the free-text details section.
	Description string

	// Image matches the event header image.
	Image string

	// StartEpoch / EndEpoch match nodes carrying machine-readable epoch
	// timestamps in a data-utime attribute. Preferred over visible text.
	StartEpoch string
	EndEpoch   string

	// StartMeta / EndMeta match microdata nodes whose content attribute
	// holds an ISO timestamp. Second structured fallback.
	StartMeta string
	EndMeta   string
}

// DefaultSelectors returns the selector table for the mobile-basic site
// layout.
func DefaultSelectors() Selectors {
	return Selectors{
		EventLink:   `table a[href][aria-label]`,
		Consent:     `form button[name="accept_consent"], form[action*="consent"] button[type="submit"]`,
		Title:       `h1`,
		InfoRows:    `#event_summary dt div`,
		Description: `#event_summary ~ section`,
		Image:       `#event_header img`,
		StartEpoch:  `#event_summary [data-utime]`,
		EndEpoch:    `#event_summary [data-utime-end]`,
		StartMeta:   `meta[itemprop="startDate"]`,
		EndMeta:     `meta[itemprop="endDate"]`,
	}
}
