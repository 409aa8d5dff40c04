// Package config loads ghgcalc settings from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const appDir = "ghgcalc"

// Duration is a time.Duration written as a string ("5s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	LibraryPath string   `toml:"library_path"`
	Precision   int      `toml:"precision"`
	LogLevel    string   `toml:"log_level"`
	LogFormat   string   `toml:"log_format"`
	LogFile     string   `toml:"log_file"`
	LockTimeout Duration `toml:"lock_timeout"`
	Splash      bool     `toml:"splash"`
}

// Default returns the settings used when no config file exists.
func Default() Config {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		cfgDir = "."
	}
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = os.TempDir()
	}
	return Config{
		LibraryPath: filepath.Join(cfgDir, appDir, "formulas.json"),
		Precision:   6,
		LogLevel:    "info",
		LogFormat:   "text",
		LogFile:     filepath.Join(cacheDir, appDir, "ghgcalc.log"),
		LockTimeout: Duration{5 * time.Second},
		Splash:      true,
	}
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", appDir+".toml")
	}
	return filepath.Join(dir, appDir, "config.toml")
}

// Load reads path over the defaults. An empty path means DefaultPath, which
// may be absent; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return cfg, fmt.Errorf("parsing %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	cfg.LibraryPath = expandHome(cfg.LibraryPath)
	cfg.LogFile = expandHome(cfg.LogFile)
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.LibraryPath == "" {
		return errors.New("library_path is empty")
	}
	if c.Precision < 0 || c.Precision > 15 {
		return fmt.Errorf("precision must be between 0 and 15, got %d", c.Precision)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format %q is not one of text, json", c.LogFormat)
	}
	if c.LockTimeout.Duration < 0 {
		return fmt.Errorf("lock_timeout must not be negative")
	}
	return nil
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
