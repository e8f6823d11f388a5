package ics

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"fbcal/internal/model"
)

// Directory stores one calendar file per event, named <uid>.ics, in a
// single directory. When an event's content is unchanged from what is
// already on disk, the previous DTSTAMP is carried over so the file bytes
// stay identical and downstream change tracking stays quiet.
type Directory struct {
	Dir string

	// Serializer supplies the PRODID, the default duration and the clock.
	// Nil means NewSerializer().
	Serializer *Serializer
}

// NewDirectory returns a per-event directory store rooted at dir.
func NewDirectory(dir string, ser *Serializer) *Directory {
	if ser == nil {
		ser = NewSerializer()
	}
	return &Directory{Dir: dir, Serializer: ser}
}

// WriteAll stores every record and returns how many files were written.
// Records violating the non-empty-ID invariant are dropped and logged, the
// same as in stream serialization.
func (d *Directory) WriteAll(records []model.EventRecord) (int, error) {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return 0, fmt.Errorf("ics: create directory %s: %w", d.Dir, err)
	}

	now := time.Now
	if d.Serializer.Now != nil {
		now = d.Serializer.Now
	}
	stamp := now().UTC()

	written := 0
	for _, rec := range records {
		if rec.ID == "" {
			log.WithFields(log.Fields{
				"title": rec.Title,
				"url":   rec.URL,
			}).Error("dropping event without id")
			continue
		}
		if err := d.write(rec, stamp); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

var fileNameSanitizer = strings.NewReplacer("/", "-", `\`, "-")

// EventPath returns the file the given event id is stored under.
func (d *Directory) EventPath(id string) string {
	return filepath.Join(d.Dir, fileNameSanitizer.Replace(id)+".ics")
}

func (d *Directory) write(rec model.EventRecord, stamp time.Time) error {
	path := d.EventPath(rec.ID)
	doc := d.render(rec, stamp)

	if old, err := os.ReadFile(path); err == nil {
		oldBody, oldStamp := splitDTStamp(string(old))
		newBody, _ := splitDTStamp(string(doc))
		if oldBody == newBody && oldStamp != "" {
			if prev, perr := time.Parse(layoutUTC, oldStamp); perr == nil {
				log.WithField("id", rec.ID).Debug("event unchanged, keeping previous DTSTAMP")
				doc = d.render(rec, prev)
			}
		} else {
			log.WithField("id", rec.ID).Info("event changed")
		}
	} else {
		log.WithField("id", rec.ID).Info("new event")
	}

	return writeFileAtomic(path, doc)
}

// render produces the per-event document: the calendar preamble around
// exactly one VEVENT, stamped with the given time.
func (d *Directory) render(rec model.EventRecord, stamp time.Time) []byte {
	prodID := d.Serializer.ProdID
	if prodID == "" {
		prodID = DefaultProdID
	}

	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	writeFolded(bw, "BEGIN:VCALENDAR")
	writeFolded(bw, "VERSION:2.0")
	writeFolded(bw, "PRODID:"+prodID)
	writeFolded(bw, "CALSCALE:GREGORIAN")
	d.Serializer.writeEvent(bw, rec, stamp)
	writeFolded(bw, "END:VCALENDAR")
	bw.Flush()
	return buf.Bytes()
}

// splitDTStamp unfolds a document and separates the DTSTAMP value from the
// rest, so two renderings can be compared modulo the timestamp.
func splitDTStamp(doc string) (body, stamp string) {
	var b strings.Builder
	for _, line := range strings.Split(Unfold(doc), crlf) {
		if v, ok := strings.CutPrefix(line, "DTSTAMP:"); ok {
			stamp = v
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String(), stamp
}

// writeFileAtomic replaces path via a temp file in the same directory, so
// a reader never observes a half-written event.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".fbcal-event-*.tmp")
	if err != nil {
		return fmt.Errorf("ics: write %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("ics: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ics: write %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("ics: write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("ics: write %s: %w", path, err)
	}
	return nil
}
