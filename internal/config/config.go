// Package config implements the typed configuration record backed by
// config.json. Loads fill in defaults for missing keys and write the file
// back once; saves are atomic (tmp + rename) and serialized by a single
// process-wide mutex. Unknown keys found in the file survive a rewrite.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Language is one of the four audio/subtitle variants both sites offer.
type Language string

const (
	GermanDub  Language = "German Dub"
	GermanSub  Language = "German Sub"
	EnglishDub Language = "English Dub"
	EnglishSub Language = "English Sub"
)

// ParseLanguage returns the Language for a display name.
func ParseLanguage(s string) (Language, bool) {
	switch Language(strings.TrimSpace(s)) {
	case GermanDub, GermanSub, EnglishDub, EnglishSub:
		return Language(strings.TrimSpace(s)), true
	}
	return "", false
}

// Suffix returns the filename language marker. German Dub carries none.
func (l Language) Suffix() string {
	switch l {
	case GermanSub:
		return "[Sub]"
	case EnglishDub:
		return "[English Dub]"
	case EnglishSub:
		return "[English Sub]"
	default:
		return ""
	}
}

// StorageMode selects between a single download root and per-content-type roots.
type StorageMode string

const (
	StorageStandard StorageMode = "standard"
	StorageSeparate StorageMode = "separate"
)

// Config is the full configuration record.
type Config struct {
	Languages            []Language  `json:"languages" mapstructure:"languages"`
	MinFreeGB            float64     `json:"min_free_gb" mapstructure:"min_free_gb"`
	DownloadPath         string      `json:"download_path" mapstructure:"download_path"`
	StorageMode          StorageMode `json:"storage_mode" mapstructure:"storage_mode"`
	AnimePath            string      `json:"anime_path" mapstructure:"anime_path"`
	SerienPath           string      `json:"serien_path" mapstructure:"serien_path"`
	AnimeMoviesPath      string      `json:"anime_movies_path" mapstructure:"anime_movies_path"`
	SerienMoviesPath     string      `json:"serien_movies_path" mapstructure:"serien_movies_path"`
	AnimeSeparateMovies  bool        `json:"anime_separate_movies" mapstructure:"anime_separate_movies"`
	SerienSeparateMovies bool        `json:"serien_separate_movies" mapstructure:"serien_separate_movies"`
	// Legacy keys kept so old config files keep working.
	MoviesPath     string `json:"movies_path" mapstructure:"movies_path"`
	SeriesPath     string `json:"series_path" mapstructure:"series_path"`
	AutostartMode  string `json:"autostart_mode" mapstructure:"autostart_mode"`
	RefreshTitles  bool   `json:"refresh_titles" mapstructure:"refresh_titles"`
	Port           int    `json:"port" mapstructure:"port"`
	DataFolderPath string `json:"data_folder_path" mapstructure:"data_folder_path"`
}

// ErrInvalid is returned when a config record fails validation.
var ErrInvalid = errors.New("invalid config")

// Default returns a Config with default values.
func Default() Config {
	return Config{
		Languages:      []Language{GermanDub, GermanSub, EnglishDub, EnglishSub},
		MinFreeGB:      2.0,
		DownloadPath:   "./downloads",
		StorageMode:    StorageStandard,
		AutostartMode:  "none",
		Port:           5050,
		DataFolderPath: "./data",
	}
}

// Validate checks enum-valued fields and ranges.
func (c *Config) Validate() error {
	switch c.StorageMode {
	case StorageStandard, StorageSeparate:
	default:
		return fmt.Errorf("%w: storage_mode %q", ErrInvalid, c.StorageMode)
	}
	switch c.AutostartMode {
	case "none", "default", "german", "new", "check-missing":
	default:
		return fmt.Errorf("%w: autostart_mode %q", ErrInvalid, c.AutostartMode)
	}
	if c.MinFreeGB < 0 {
		return fmt.Errorf("%w: min_free_gb must be >= 0", ErrInvalid)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalid, c.Port)
	}
	if len(c.Languages) == 0 {
		return fmt.Errorf("%w: languages must not be empty", ErrInvalid)
	}
	for _, l := range c.Languages {
		if _, ok := ParseLanguage(string(l)); !ok {
			return fmt.Errorf("%w: unknown language %q", ErrInvalid, l)
		}
	}
	return nil
}

// DBPath returns the catalog database location under the data folder.
func (c Config) DBPath() string {
	return filepath.Join(c.DataFolderPath, "AniLoader.db")
}

// LastRunPath returns the per-run log file location.
func (c Config) LastRunPath() string {
	return filepath.Join(c.DataFolderPath, "last_run.txt")
}

// AllLogsPath returns the append-forever log file location.
func (c Config) AllLogsPath() string {
	return filepath.Join(c.DataFolderPath, "all_logs.txt")
}

// Store owns the on-disk config file and hands out read-only snapshots.
type Store struct {
	path string

	mu      sync.RWMutex
	current Config
	extras  map[string]any // unknown keys from the file, preserved on save

	writeMu sync.Mutex // serializes all writers of the file
}

// knownKeys are the mapstructure keys the Config struct owns.
var knownKeys = map[string]struct{}{
	"languages": {}, "min_free_gb": {}, "download_path": {}, "storage_mode": {},
	"anime_path": {}, "serien_path": {}, "anime_movies_path": {}, "serien_movies_path": {},
	"anime_separate_movies": {}, "serien_separate_movies": {},
	"movies_path": {}, "series_path": {}, "autostart_mode": {}, "refresh_titles": {},
	"port": {}, "data_folder_path": {},
}

// Load reads the config file at path, filling defaults for any missing key,
// and writes the completed record back once. A missing file yields defaults;
// an unparseable file is reported but the store still starts with defaults.
func Load(path string) (*Store, error) {
	s := &Store{path: path, current: Default(), extras: map[string]any{}}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !errors.Is(err, os.ErrNotExist) {
			// Unparseable file: proceed with defaults, surface the error.
			if saveErr := s.save(s.current, nil); saveErr != nil {
				return s, fmt.Errorf("config file unparseable and rewrite failed: %w", saveErr)
			}
			return s, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return s, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.AutostartMode == "" {
		cfg.AutostartMode = "none"
	}

	extras := map[string]any{}
	for key, val := range v.AllSettings() {
		if _, known := knownKeys[key]; !known {
			extras[key] = val
		}
	}

	s.current = cfg
	s.extras = extras

	// Write back once so missing keys get their defaults on disk.
	if err := s.save(cfg, extras); err != nil {
		return s, fmt.Errorf("write back config: %w", err)
	}
	return s, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	langs := make([]string, len(d.Languages))
	for i, l := range d.Languages {
		langs[i] = string(l)
	}
	v.SetDefault("languages", langs)
	v.SetDefault("min_free_gb", d.MinFreeGB)
	v.SetDefault("download_path", d.DownloadPath)
	v.SetDefault("storage_mode", string(d.StorageMode))
	v.SetDefault("anime_path", "")
	v.SetDefault("serien_path", "")
	v.SetDefault("anime_movies_path", "")
	v.SetDefault("serien_movies_path", "")
	v.SetDefault("anime_separate_movies", false)
	v.SetDefault("serien_separate_movies", false)
	v.SetDefault("movies_path", "")
	v.SetDefault("series_path", "")
	v.SetDefault("autostart_mode", d.AutostartMode)
	v.SetDefault("refresh_titles", false)
	v.SetDefault("port", d.Port)
	v.SetDefault("data_folder_path", d.DataFolderPath)
}

// Snapshot returns a copy of the current configuration.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.current
	cfg.Languages = append([]Language(nil), s.current.Languages...)
	return cfg
}

// Update validates, persists and publishes a new configuration.
func (s *Store) Update(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.RLock()
	extras := s.extras
	s.mu.RUnlock()

	if err := s.save(cfg, extras); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()
	return nil
}

// save writes the merged record atomically: marshal to <path>.tmp, then
// rename over the target. Transient errors back off 0.3·n s for up to five
// attempts; the final fallback is a plain direct write.
func (s *Store) save(cfg Config, extras map[string]any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	merged := map[string]any{}
	for k, v := range extras {
		merged[k] = v
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	var own map[string]any
	if err := json.Unmarshal(raw, &own); err != nil {
		return fmt.Errorf("remarshal config: %w", err)
	}
	for k, v := range own {
		merged[k] = v
	}

	data, err := marshalStable(merged)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp := s.path + ".tmp"
	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			lastErr = err
		} else if err := os.Rename(tmp, s.path); err != nil {
			lastErr = err
		} else {
			return nil
		}
		time.Sleep(time.Duration(float64(attempt) * 0.3 * float64(time.Second)))
	}

	// Atomic path kept failing (seen with AV scanners holding the target on
	// Windows); last resort is a direct write.
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("direct config write after rename failures (%v): %w", lastErr, err)
	}
	return nil
}

// marshalStable renders the map with sorted keys and indentation so the file
// diffs cleanly between saves.
func marshalStable(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("{\n")
	for i, k := range keys {
		kj, _ := json.Marshal(k)
		vj, err := json.MarshalIndent(m[k], "  ", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal config key %q: %w", k, err)
		}
		b.WriteString("  ")
		b.Write(kj)
		b.WriteString(": ")
		b.Write(vj)
		if i < len(keys)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}\n")
	return []byte(b.String()), nil
}
