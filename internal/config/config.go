// Package config provides the YAML configuration model with first-run
// creation, normalization of partial files, and atomic saves.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tasknotes/internal/recur"
)

// ICSConfig describes a single read-only calendar feed subscription.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown alongside feed entries.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// NotesDir is the directory walked for task notes with YAML
	// frontmatter.
	NotesDir string `yaml:"notes_dir" json:"notes_dir"`

	// Timezone is the IANA zone used to resolve "today" and wall-clock
	// date-times (e.g. "Asia/Seoul"). Empty means the host local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday is presented first in week-shaped
	// output. Supported: "monday" (default), "sunday". Presentation only;
	// recurrence phase arithmetic is unaffected.
	WeekStart string `yaml:"week_start" json:"week_start"`

	// WorkWeek lists the weekdays the "weekdays only" recurrence preset
	// fires on. Defaults to monday-friday; set e.g. [sunday, monday,
	// tuesday, wednesday, thursday] for a Sun-Thu work week.
	WorkWeek []string `yaml:"work_week" json:"work_week"`

	// DoneStatuses lists custom task statuses that count as completed, in
	// addition to the built-in "done".
	DoneStatuses []string `yaml:"done_statuses" json:"done_statuses"`

	// HorizonDays is the number of future days an agenda covers.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// RefreshCron is a cron-style schedule (e.g. "*/15 * * * *") for
	// periodic ICS feed refresh in serve mode.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheDir is where ICS feed bodies and HTTP validators are cached.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// ICS is the list of subscribed feed sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       "127.0.0.1:8086",
		NotesDir:     "./notes",
		Timezone:     "",
		WeekStart:    "monday",
		WorkWeek:     []string{"monday", "tuesday", "wednesday", "thursday", "friday"},
		DoneStatuses: []string{},
		HorizonDays:  7,
		RefreshCron:  "*/15 * * * *",
		CacheDir:     "./var/ics-cache",
		ICS:          []ICSConfig{},
		BasicAuth:    nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8086"
	}
	if c.NotesDir == "" {
		c.NotesDir = "./notes"
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = "monday"
	}
	if len(c.WorkWeek) == 0 {
		c.WorkWeek = []string{"monday", "tuesday", "wednesday", "thursday", "friday"}
	}
	if c.DoneStatuses == nil {
		c.DoneStatuses = []string{}
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 7
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.CacheDir == "" {
		c.CacheDir = "./var/ics-cache"
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// Location resolves the configured timezone, falling back to the host local
// zone when unset or unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// WorkWeekSet parses the configured work-week day names into a weekday set.
func (c *Config) WorkWeekSet() (recur.WeekdaySet, error) {
	var set recur.WeekdaySet
	for _, name := range c.WorkWeek {
		wd, err := parseWeekdayName(name)
		if err != nil {
			return 0, err
		}
		set |= recur.NewWeekdaySet(wd)
	}
	return set, nil
}

func parseWeekdayName(name string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	default:
		return 0, fmt.Errorf("unknown weekday name %q", name)
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist: create the parent directory, write a
//     default config with 0600 perms, and return the defaults.
//   - If the file exists: unmarshal and normalize.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Return cfg with the error so the caller can decide.
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

// Save writes the configuration atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
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

	tmp, err := os.CreateTemp(dir, ".tasknotes-config-*.tmp")
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

// Save delegates to the package-level Save for call sites holding a *Config.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
