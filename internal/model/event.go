package model

import "time"

// EventRecord is the normalized event produced by extraction and consumed by
// serialization. A record is created once per unique event and never mutated
// afterwards; deduplication keys on ID.
type EventRecord struct {
	// ID is the stable external identifier, taken from the event page's
	// /events/<id> path segment. It is non-empty, unique within one run and
	// becomes the iCalendar UID.
	ID string

	Title       string
	Location    string
	Description string

	// Start is always present; a record without a resolvable start time is
	// never constructed. AllDay marks date-only events, for which only the
	// date portion of Start is meaningful.
	Start  time.Time
	AllDay bool

	// End is optional. A zero End means the duration is unknown and the
	// serializer applies its default-duration policy.
	End time.Time

	// URL is the canonical event page. ImageURL points at the event header
	// image, if one was found; it is supplementary metadata only.
	URL      string
	ImageURL string
}

// HasEnd reports whether the record carries an explicit end time.
func (e *EventRecord) HasEnd() bool {
	return !e.End.IsZero()
}
