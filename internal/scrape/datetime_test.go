package scrape

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParser(t *testing.T) *DateParser {
	t.Helper()
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	p := NewDateParser(berlin)
	// A Tuesday, so weekday offsets are predictable.
	p.Now = func() time.Time { return time.Date(2021, 6, 1, 12, 0, 0, 0, berlin) }
	return p
}

func TestParseDateText(t *testing.T) {
	p := testParser(t)
	berlin := p.Loc
	cest := time.FixedZone("UTC+0200", 2*3600)

	tests := []struct {
		name      string
		text      string
		wantStart time.Time
		wantEnd   time.Time
		wantAll   bool
	}{
		{
			name:      "absolute date with range and offset",
			text:      "Samstag, 5. Juni 2021 von 19:00 bis 23:00 UTC+02",
			wantStart: time.Date(2021, 6, 5, 19, 0, 0, 0, berlin),
			wantEnd:   time.Date(2021, 6, 5, 23, 0, 0, 0, cest),
		},
		{
			name:      "range crossing midnight",
			text:      "Samstag, 5. Juni 2021 von 23:00 bis 01:00 UTC+02",
			wantStart: time.Date(2021, 6, 5, 23, 0, 0, 0, cest),
			wantEnd:   time.Date(2021, 6, 6, 1, 0, 0, 0, cest),
		},
		{
			name:      "today with single time",
			text:      "Heute um 20:00",
			wantStart: time.Date(2021, 6, 1, 20, 0, 0, 0, berlin),
		},
		{
			name:      "tomorrow with single time",
			text:      "Morgen um 20:30",
			wantStart: time.Date(2021, 6, 2, 20, 30, 0, 0, berlin),
		},
		{
			name:      "upcoming weekday",
			text:      "Freitag um 21:30",
			wantStart: time.Date(2021, 6, 4, 21, 30, 0, 0, berlin),
		},
		{
			name:      "same weekday means next week",
			text:      "Dienstag um 10:00",
			wantStart: time.Date(2021, 6, 8, 10, 0, 0, 0, berlin),
		},
		{
			name:      "offset with minutes",
			text:      "Heute um 20:00 UTC+02:00",
			wantStart: time.Date(2021, 6, 1, 20, 0, 0, 0, cest),
		},
		{
			name:      "bare date is all-day",
			text:      "5. Juni 2021",
			wantStart: time.Date(2021, 6, 5, 0, 0, 0, 0, berlin),
			wantAll:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, allDay, err := p.Parse(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAll, allDay)
			assert.True(t, start.Equal(tt.wantStart), "start = %v, want %v", start, tt.wantStart)
			if tt.wantEnd.IsZero() {
				assert.True(t, end.IsZero(), "end = %v, want zero", end)
			} else {
				assert.True(t, end.Equal(tt.wantEnd), "end = %v, want %v", end, tt.wantEnd)
			}
		})
	}
}

func TestParseDateTextEnglishFallback(t *testing.T) {
	p := testParser(t)

	start, end, allDay, err := p.Parse("tomorrow at 8pm")
	require.NoError(t, err)
	assert.False(t, allDay)
	assert.True(t, end.IsZero())
	assert.Equal(t, 2021, start.Year())
	assert.Equal(t, time.June, start.Month())
	assert.Equal(t, 2, start.Day())
	assert.Equal(t, 20, start.Hour())
}

func TestParseDateTextFailures(t *testing.T) {
	p := testParser(t)

	for _, text := range []string{"", "???", "Blursday um 99:99"} {
		_, _, _, err := p.Parse(text)
		assert.Error(t, err, "text %q", text)
	}
}
