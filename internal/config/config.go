package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	// BaseURL is the root of the scraped site. Relative listing paths and
	// discovered event links are resolved against it.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Timezone is the IANA timezone the site renders its localized time text
	// in (e.g. "Europe/Berlin"). It is the policy zone applied whenever a
	// page's time text carries no explicit UTC offset; ambiguity is never
	// resolved per event.
	Timezone string `yaml:"timezone" json:"timezone"`

	// CookieFile is the path to the JSON cookie file holding the
	// pre-authenticated session (array of {name, value} objects).
	CookieFile string `yaml:"cookie_file" json:"cookie_file"`

	// Output is the calendar output path. Empty means standard output.
	Output string `yaml:"output" json:"output"`

	// OutputDir, when set, selects directory storage instead: one .ics file
	// per event id, overwritten in place across runs.
	OutputDir string `yaml:"output_dir" json:"output_dir"`

	// Headless starts the browser without a window. Off by default so a
	// fresh login can be watched when cookies are being produced.
	Headless bool `yaml:"headless" json:"headless"`

	// Pages maps short page aliases to listing paths. CLI page arguments
	// are resolved through this table; unknown names pass through verbatim.
	Pages map[string]string `yaml:"pages" json:"pages"`

	// PageTimeoutSec bounds a single page load.
	PageTimeoutSec int `yaml:"page_timeout_sec" json:"page_timeout_sec"`

	// ScrollWaitSec bounds the wait for new links after one load-more
	// interaction.
	ScrollWaitSec int `yaml:"scroll_wait_sec" json:"scroll_wait_sec"`

	// MaxScrollRounds caps pagination iterations on listings that never
	// stabilize (rotating ads, recycled items).
	MaxScrollRounds int `yaml:"max_scroll_rounds" json:"max_scroll_rounds"`

	// LoadMoreRetries is the number of times a failed load-more interaction
	// is retried before the listing is treated as exhausted.
	LoadMoreRetries int `yaml:"load_more_retries" json:"load_more_retries"`

	// DefaultEventDurationMin is applied as DTEND = DTSTART + duration when
	// an event page exposes no end time.
	DefaultEventDurationMin int `yaml:"default_event_duration_min" json:"default_event_duration_min"`

	// WatchCron, if set, re-runs the scrape on this cron schedule instead of
	// exiting after one pass (e.g. "0 */6 * * *").
	WatchCron string `yaml:"watch_cron" json:"watch_cron"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:  "https://mbasic.facebook.com/",
		Timezone: "Europe/Berlin",
		Pages: map[string]string{
			"aqua":                "/AquaDD/events/",
			"bärenzwinger":        "/clubbaerenzwinger/events/",
			"borsi":               "/Borsi34/events/",
			"club11":              "/clubelf.de/events/",
			"count down":          "/countdowndd/events/",
			"heinrich-cotta-club": "/HeinrichCottaClub/events/",
			"gag18":               "/KellerklubGAG18eV/events/",
			"gutzkowclub":         "/Gutzkow/events/",
			"hängemathe":          "/clubhaengemathe/events/",
			"novitatis":           "/novitatis/events/",
			"traumtänzer":         "/club.traumtaenzer/events/",
			"wu5":                 "/clubwu5/events/",
		},
		PageTimeoutSec:          30,
		ScrollWaitSec:           10,
		MaxScrollRounds:         20,
		LoadMoreRetries:         2,
		DefaultEventDurationMin: 60,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.Pages == nil {
		c.Pages = def.Pages
	}
	if c.PageTimeoutSec <= 0 {
		c.PageTimeoutSec = def.PageTimeoutSec
	}
	if c.ScrollWaitSec <= 0 {
		c.ScrollWaitSec = def.ScrollWaitSec
	}
	if c.MaxScrollRounds <= 0 {
		c.MaxScrollRounds = def.MaxScrollRounds
	}
	if c.LoadMoreRetries < 0 {
		c.LoadMoreRetries = def.LoadMoreRetries
	}
	if c.DefaultEventDurationMin <= 0 {
		c.DefaultEventDurationMin = def.DefaultEventDurationMin
	}
}

// Location resolves the configured site timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// PageTimeout returns PageTimeoutSec as a duration.
func (c *Config) PageTimeout() time.Duration {
	return time.Duration(c.PageTimeoutSec) * time.Second
}

// ScrollWait returns ScrollWaitSec as a duration.
func (c *Config) ScrollWait() time.Duration {
	return time.Duration(c.ScrollWaitSec) * time.Second
}

// DefaultEventDuration returns DefaultEventDurationMin as a duration.
func (c *Config) DefaultEventDuration() time.Duration {
	return time.Duration(c.DefaultEventDurationMin) * time.Minute
}

// ResolvePage maps a page alias to its listing path. Names not present in
// the alias table are returned unchanged so full paths and URLs keep working.
func (c *Config) ResolvePage(name string) string {
	if path, ok := c.Pages[name]; ok {
		return path
	}
	return name
}

// ListingPages returns the full alias table's listing paths in a stable
// order, used when no pages are given on the command line.
func (c *Config) ListingPages() []string {
	names := make([]string, 0, len(c.Pages))
	for name := range c.Pages {
		names = append(names, name)
	}
	// Map iteration order is random; pagination discovery order must be
	// reproducible across runs.
	sort.Strings(names)
	pages := make([]string, 0, len(names))
	for _, name := range names {
		pages = append(pages, c.Pages[name])
	}
	return pages
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If path is empty, an in-memory default config is returned.
//   - If the file does not exist, a default config is written there with
//     0600 perms and returned.
//   - Otherwise the YAML is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path, atomically via
// a temp file + rename, with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".fbcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
