package ics

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"fbcal/internal/model"
)

const (
	// foldLimit is the maximum content-line length in octets (RFC 5545
	// §3.1); longer lines are folded with CRLF plus a leading space.
	foldLimit = 75

	crlf = "\r\n"

	layoutUTC  = "20060102T150405Z"
	layoutDate = "20060102"
)

// DefaultProdID identifies this generator in the calendar preamble.
const DefaultProdID = "-//fbcal//EN"

// DefaultDuration is the documented fallback applied when a record carries
// no end time: DTEND = DTSTART + one hour. Omitting DTEND would be valid
// per the format but makes imported events useless in most clients.
const DefaultDuration = time.Hour

// Serializer converts event records into a single RFC 5545 VCALENDAR
// document. Output is deterministic: for a pinned clock, identical input
// yields byte-identical output, with VEVENT blocks in input order.
type Serializer struct {
	ProdID string

	// Duration substitutes for a missing end time. Zero means
	// DefaultDuration.
	Duration time.Duration

	// Now supplies DTSTAMP; injectable so runs and tests can pin it.
	Now func() time.Time
}

// NewSerializer returns a serializer with the default policies.
func NewSerializer() *Serializer {
	return &Serializer{ProdID: DefaultProdID, Duration: DefaultDuration, Now: time.Now}
}

// Serialize writes the records as one VCALENDAR and returns how many VEVENT
// blocks were emitted. A record violating the upstream invariant of a
// non-empty ID is dropped and logged; it never aborts the document.
func (s *Serializer) Serialize(w io.Writer, records []model.EventRecord) (int, error) {
	prodID := s.ProdID
	if prodID == "" {
		prodID = DefaultProdID
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	stamp := now().UTC()

	bw := bufio.NewWriter(w)
	writeFolded(bw, "BEGIN:VCALENDAR")
	writeFolded(bw, "VERSION:2.0")
	writeFolded(bw, "PRODID:"+prodID)
	writeFolded(bw, "METHOD:PUBLISH")
	writeFolded(bw, "CALSCALE:GREGORIAN")

	written := 0
	for _, rec := range records {
		if rec.ID == "" {
			log.WithFields(log.Fields{
				"title": rec.Title,
				"url":   rec.URL,
			}).Error("dropping event without id")
			continue
		}
		s.writeEvent(bw, rec, stamp)
		written++
	}

	writeFolded(bw, "END:VCALENDAR")
	if err := bw.Flush(); err != nil {
		return written, fmt.Errorf("ics: write calendar: %w", err)
	}
	return written, nil
}

func (s *Serializer) writeEvent(bw *bufio.Writer, rec model.EventRecord, stamp time.Time) {
	duration := s.Duration
	if duration <= 0 {
		duration = DefaultDuration
	}

	writeFolded(bw, "BEGIN:VEVENT")
	writeFolded(bw, "UID:"+EscapeText(rec.ID))
	writeFolded(bw, "DTSTAMP:"+stamp.Format(layoutUTC))

	if rec.AllDay {
		end := rec.End
		if end.IsZero() {
			end = rec.Start.AddDate(0, 0, 1)
		}
		writeFolded(bw, "DTSTART;VALUE=DATE:"+rec.Start.Format(layoutDate))
		writeFolded(bw, "DTEND;VALUE=DATE:"+end.Format(layoutDate))
	} else {
		end := rec.End
		if end.IsZero() {
			end = rec.Start.Add(duration)
		}
		writeFolded(bw, "DTSTART:"+rec.Start.UTC().Format(layoutUTC))
		writeFolded(bw, "DTEND:"+end.UTC().Format(layoutUTC))
	}

	writeFolded(bw, "SUMMARY:"+EscapeText(rec.Title))
	if rec.Location != "" {
		writeFolded(bw, "LOCATION:"+EscapeText(rec.Location))
	}
	if rec.Description != "" {
		writeFolded(bw, "DESCRIPTION:"+EscapeText(rec.Description))
	}
	if rec.URL != "" {
		writeFolded(bw, "URL:"+rec.URL)
	}
	writeFolded(bw, "END:VEVENT")
}

// writeFolded emits one content line, folding at foldLimit octets without
// ever splitting a UTF-8 sequence. Unfolding reconstructs the line exactly.
func writeFolded(bw *bufio.Writer, line string) {
	limit := foldLimit
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		bw.WriteString(line[:cut])
		bw.WriteString(crlf)
		bw.WriteString(" ")
		line = line[cut:]
		// Continuation lines lose one octet to the leading space.
		limit = foldLimit - 1
	}
	bw.WriteString(line)
	bw.WriteString(crlf)
}

var escaper = strings.NewReplacer(
	`\`, `\\`,
	"\r\n", `\n`,
	"\n", `\n`,
	"\r", `\n`,
	";", `\;`,
	",", `\,`,
)

// EscapeText escapes a TEXT property value per RFC 5545 §3.3.11: backslash,
// semicolon, comma and line breaks. Skipping this corrupts the document in
// clients that parse delimiters before unescaping.
func EscapeText(s string) string {
	return escaper.Replace(s)
}

// UnescapeText is the inverse of EscapeText.
func UnescapeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Unfold reverses line folding: a line break followed by a space or tab is
// a soft break and is removed. Bare LF breaks are tolerated on input.
func Unfold(s string) string {
	s = strings.ReplaceAll(s, crlf+" ", "")
	s = strings.ReplaceAll(s, crlf+"\t", "")
	s = strings.ReplaceAll(s, "\n ", "")
	s = strings.ReplaceAll(s, "\n\t", "")
	return s
}
