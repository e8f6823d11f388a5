package ics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fbcal/internal/model"
)

var fixedStamp = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestSerializer() *Serializer {
	s := NewSerializer()
	s.Now = func() time.Time { return fixedStamp }
	return s
}

func serializeOne(t *testing.T, rec model.EventRecord) string {
	t.Helper()
	var buf bytes.Buffer
	n, err := newTestSerializer().Serialize(&buf, []model.EventRecord{rec})
	require.NoError(t, err)
	require.Equal(t, 1, n)
	return buf.String()
}

// propertyValue returns the raw (still escaped) value of the named property
// after unfolding.
func propertyValue(t *testing.T, doc, name string) string {
	t.Helper()
	for _, line := range strings.Split(Unfold(doc), crlf) {
		if strings.HasPrefix(line, name+":") {
			return strings.TrimPrefix(line, name+":")
		}
	}
	t.Fatalf("property %s not found", name)
	return ""
}

func TestSerializeEscapesDelimiters(t *testing.T) {
	out := serializeOne(t, model.EventRecord{
		ID:    "events-1",
		Title: "Rock, Paper; Scissors\nLive",
		Start: time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC),
	})

	summary := propertyValue(t, out, "SUMMARY")
	assert.Equal(t, `Rock\, Paper\; Scissors\nLive`, summary)
	assert.NotContains(t, summary, "\n")
	assert.Equal(t, "Rock, Paper; Scissors\nLive", UnescapeText(summary))
}

func TestSerializeFoldsLongLines(t *testing.T) {
	desc := strings.Repeat("Tür auf, Musik an; ", 30) // well past one line, non-ASCII
	out := serializeOne(t, model.EventRecord{
		ID:          "events-2",
		Title:       "Lange Nacht",
		Description: desc,
		Start:       time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC),
	})

	for _, line := range strings.Split(strings.TrimSuffix(out, crlf), crlf) {
		assert.LessOrEqual(t, len(line), foldLimit, "folded line too long: %q", line)
	}

	// Unfold + unescape reproduces the original text exactly.
	assert.Equal(t, desc, UnescapeText(propertyValue(t, out, "DESCRIPTION")))
}

func TestSerializeDefaultDuration(t *testing.T) {
	out := serializeOne(t, model.EventRecord{
		ID:    "events-3",
		Title: "Open End",
		Start: time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, "20240601T180000Z", propertyValue(t, out, "DTSTART"))
	assert.Equal(t, "20240601T190000Z", propertyValue(t, out, "DTEND"))
}

func TestSerializeExplicitEnd(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	out := serializeOne(t, model.EventRecord{
		ID:    "events-4",
		Title: "Konzert",
		Start: time.Date(2024, 6, 1, 20, 0, 0, 0, berlin),
		End:   time.Date(2024, 6, 1, 23, 30, 0, 0, berlin),
	})

	// Zoned times are emitted in UTC.
	assert.Equal(t, "20240601T180000Z", propertyValue(t, out, "DTSTART"))
	assert.Equal(t, "20240601T213000Z", propertyValue(t, out, "DTEND"))
}

func TestSerializeAllDay(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	out := serializeOne(t, model.EventRecord{
		ID:     "events-5",
		Title:  "Stadtfest",
		Start:  time.Date(2024, 6, 1, 0, 0, 0, 0, berlin),
		AllDay: true,
	})

	assert.Contains(t, out, "DTSTART;VALUE=DATE:20240601"+crlf)
	assert.Contains(t, out, "DTEND;VALUE=DATE:20240602"+crlf)
}

func TestSerializeDeterministic(t *testing.T) {
	records := []model.EventRecord{
		{ID: "a", Title: "First", Start: time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)},
		{ID: "b", Title: "Second", Start: time.Date(2024, 6, 2, 18, 0, 0, 0, time.UTC)},
	}

	s := newTestSerializer()
	var one, two bytes.Buffer
	_, err := s.Serialize(&one, records)
	require.NoError(t, err)
	_, err = s.Serialize(&two, records)
	require.NoError(t, err)

	assert.Equal(t, one.Bytes(), two.Bytes())

	// VEVENT order matches input order.
	out := one.String()
	assert.Less(t, strings.Index(out, "UID:a"), strings.Index(out, "UID:b"))
}

func TestSerializeDropsRecordWithoutID(t *testing.T) {
	var buf bytes.Buffer
	n, err := newTestSerializer().Serialize(&buf, []model.EventRecord{
		{ID: "", Title: "Broken", Start: time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)},
		{ID: "ok", Title: "Fine", Start: time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, strings.Count(buf.String(), "BEGIN:VEVENT"))
}

func TestSerializeEmptyCalendarIsValid(t *testing.T) {
	var buf bytes.Buffer
	n, err := newTestSerializer().Serialize(&buf, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = ical.ParseCalendar(bytes.NewReader(buf.Bytes()))
	assert.NoError(t, err)
}

func TestSerializeCRLFLineEndings(t *testing.T) {
	out := serializeOne(t, model.EventRecord{
		ID:    "events-6",
		Title: "Linientreu",
		Start: time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC),
	})

	assert.True(t, strings.HasSuffix(out, crlf))
	for _, line := range strings.Split(strings.TrimSuffix(out, crlf), crlf) {
		assert.False(t, strings.ContainsAny(line, "\r\n"), "stray line break in %q", line)
	}
}

// The document round-trips through an independent iCalendar parser, the
// same library the extraction side of the corpus reads feeds with.
func TestSerializeParsesBack(t *testing.T) {
	records := []model.EventRecord{
		{
			ID:       "events-100",
			Title:    "Sommerfest, Hof; Bühne",
			Location: "Hinterhof",
			Start:    time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC),
			End:      time.Date(2024, 6, 1, 22, 0, 0, 0, time.UTC),
			URL:      "https://mbasic.facebook.com/events/100",
		},
		{
			ID:    "events-101",
			Title: "Kinoabend",
			Start: time.Date(2024, 6, 2, 19, 0, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	_, err := newTestSerializer().Serialize(&buf, records)
	require.NoError(t, err)

	cal, err := ical.ParseCalendar(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	events := cal.Events()
	require.Len(t, events, 2)

	assert.Equal(t, "events-100", events[0].GetProperty(ical.ComponentPropertyUniqueId).Value)
	start, err := events[0].GetStartAt()
	require.NoError(t, err)
	assert.True(t, start.Equal(records[0].Start))

	end, err := events[1].GetEndAt()
	require.NoError(t, err)
	assert.True(t, end.Equal(records[1].Start.Add(DefaultDuration)))
}
