package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"calagg/internal/apperr"
	appLog "calagg/internal/log"
)

const (
	envPrefix = "CALAGG_"

	// legacyScannerEnv is the variable the URL scanner key was historically
	// read from; it still works when CALAGG_SCANNER_KEY is unset.
	legacyScannerEnv = "SCANNER_KEY"

	defaultSheetURL = "https://docs.google.com/spreadsheets/d/e/2PACX-1vSAxuTnQhiCVDdiHJScy8KKNWo6pnmnI1WVGQpPJKAtiPUnHsqMX81FJIDAx7RL6i8c9vsNyUUTpbcv/pub?output=tsv"
)

// Settings is the run configuration. Category metadata and the feed
// registry live in their own YAML data files under DataDir.
type Settings struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// DataDir holds calendar.yaml and feeds.yaml.
	DataDir      string `koanf:"data_dir"`
	CalendarFile string `koanf:"calendar_file"`
	FeedsFile    string `koanf:"feeds_file"`

	// SheetURL is the TSV export of the primary spreadsheet.
	SheetURL string `koanf:"sheet_url"`

	// ScannerKey enables URL vetting against the reputation API when set.
	ScannerKey string `koanf:"scanner_key"`
	// ScannerMaxQueries caps reputation API calls in one run. The API quota
	// is a few thousand lookups per month.
	ScannerMaxQueries int `koanf:"scanner_max_queries"`
	// ScannedURLsFile is the newline-delimited cache of URLs already cleared.
	ScannedURLsFile string `koanf:"scanned_urls_file"`

	// HorizonDays bounds recurrence expansion into the future.
	HorizonDays int `koanf:"horizon_days"`

	// HTTPTimeoutSeconds is zero to keep the transport default.
	HTTPTimeoutSeconds int `koanf:"http_timeout_seconds"`

	ProductID string `koanf:"product_id"`

	// Incremental seeds each calendar with the events of its previously
	// written file, so "new" counts only events not seen in earlier runs.
	Incremental bool `koanf:"incremental"`

	// MetricsFile, if set, receives a Prometheus textfile after each run.
	MetricsFile string `koanf:"metrics_file"`

	// Schedule is the cron expression used by the watch command.
	Schedule string `koanf:"schedule"`

	// FeedCacheDir stores ETag / Last-Modified validators per URL. Empty
	// disables conditional requests.
	FeedCacheDir string `koanf:"feed_cache_dir"`

	// Listen, when set, makes the watch command serve the output directory
	// over HTTP.
	Listen string `koanf:"listen"`

	// BasicAuthUsername / BasicAuthPassword enable HTTP Basic Auth on every
	// endpoint except /health. Both must be set.
	BasicAuthUsername string `koanf:"basic_auth_username"`
	BasicAuthPassword string `koanf:"basic_auth_password"`
}

// DefaultSettings returns an in-memory default configuration.
func DefaultSettings() *Settings {
	return &Settings{
		LogLevel:          "info",
		DataDir:           "_data",
		CalendarFile:      "calendar.yaml",
		FeedsFile:         "feeds.yaml",
		SheetURL:          defaultSheetURL,
		ScannerMaxQueries: 5000,
		ScannedURLsFile:   "scanned-urls.txt",
		HorizonDays:       360,
		ProductID:         "-//HPC Social//Calendar//",
		Schedule:          "0 */6 * * *",
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled files still behave.
func (s *Settings) Normalize() {
	def := DefaultSettings()
	if s.LogLevel == "" {
		s.LogLevel = def.LogLevel
	}
	if s.DataDir == "" {
		s.DataDir = def.DataDir
	}
	if s.CalendarFile == "" {
		s.CalendarFile = def.CalendarFile
	}
	if s.FeedsFile == "" {
		s.FeedsFile = def.FeedsFile
	}
	if s.SheetURL == "" {
		s.SheetURL = def.SheetURL
	}
	if s.ScannerMaxQueries <= 0 {
		s.ScannerMaxQueries = def.ScannerMaxQueries
	}
	if s.ScannedURLsFile == "" {
		s.ScannedURLsFile = def.ScannedURLsFile
	}
	if s.HorizonDays <= 0 {
		s.HorizonDays = def.HorizonDays
	}
	if s.HTTPTimeoutSeconds < 0 {
		s.HTTPTimeoutSeconds = 0
	}
	if s.ProductID == "" {
		s.ProductID = def.ProductID
	}
	if s.Schedule == "" {
		s.Schedule = def.Schedule
	}
}

// HTTPTimeout returns the client timeout; zero keeps the transport default.
func (s *Settings) HTTPTimeout() time.Duration {
	return time.Duration(s.HTTPTimeoutSeconds) * time.Second
}

// CalendarPath returns the category metadata file path.
func (s *Settings) CalendarPath() string {
	return resolvePath(s.DataDir, s.CalendarFile)
}

// FeedsPath returns the feed registry file path.
func (s *Settings) FeedsPath() string {
	return resolvePath(s.DataDir, s.FeedsFile)
}

// ScannedURLsPath returns the vetted-URL cache path.
func (s *Settings) ScannedURLsPath() string {
	return resolvePath(s.DataDir, s.ScannedURLsFile)
}

func resolvePath(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// Load builds Settings by layering, from low to high precedence:
//  1. defaults
//  2. the YAML file at path, or $CALAGG_CONFIG when path is empty
//  3. environment variables with the CALAGG_ prefix
//
// A .env file in the working directory is loaded into the environment
// first, if one exists.
func Load(path string) (*Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, apperr.Config("load .env", err)
	}

	k := koanf.New(".")

	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, apperr.Config("load settings file", err)
		}
		appLog.Debug("settings file loaded", "path", path)
	}

	// CALAGG_SHEET_URL -> sheet_url
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, apperr.Config("load settings env", err)
	}

	s := *DefaultSettings()
	if err := k.UnmarshalWithConf("", &s, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, apperr.Config("decode settings", err)
	}
	if s.ScannerKey == "" {
		s.ScannerKey = os.Getenv(legacyScannerEnv)
	}
	s.Normalize()

	return &s, nil
}
