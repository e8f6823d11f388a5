package pipeline

import (
	"encoding/json"
	"fmt"
	"io"

	"fbcal/internal/model"
)

// jsonEvent is the JSON output shape. Timestamps are epoch seconds; a
// missing end time stays the serializer's concern and is emitted as null
// here so consumers can tell "unknown" from a real value.
type jsonEvent struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title"`
	Start       int64  `json:"start"`
	End         *int64 `json:"end"`
	AllDay      bool   `json:"all_day,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}

// writeJSON emits the records as a JSON array, in input order.
func writeJSON(w io.Writer, records []model.EventRecord) error {
	out := make([]jsonEvent, 0, len(records))
	for _, rec := range records {
		ev := jsonEvent{
			ID:          rec.ID,
			URL:         rec.URL,
			Title:       rec.Title,
			Start:       rec.Start.Unix(),
			AllDay:      rec.AllDay,
			Location:    rec.Location,
			Description: rec.Description,
			Image:       rec.ImageURL,
		}
		if rec.HasEnd() {
			end := rec.End.Unix()
			ev.End = &end
		}
		out = append(out, ev)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("pipeline: write JSON: %w", err)
	}
	return nil
}
