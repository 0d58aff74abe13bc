package searchexec

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/aipp-workbench/engine/internal/engineerr"
	"gopkg.in/yaml.v3"
)

// FingerprintConfig is the browser identity composed on first use and then
// persisted unchanged across subsequent launches.
type FingerprintConfig struct {
	TimezoneOffsetMinutes int    `yaml:"timezone_offset_minutes"`
	Platform              string `yaml:"platform"` // Win32 | MacIntel | Linux x86_64
	Locale                string `yaml:"locale"`
	UserAgent             string `yaml:"user_agent"`
	ViewportWidth         int    `yaml:"viewport_width"`
	ViewportHeight        int    `yaml:"viewport_height"`
}

type desktopTemplate struct {
	platform       string
	userAgent      string
	viewportWidth  int
	viewportHeight int
}

var desktopTemplates = []desktopTemplate{
	{
		platform:       "Win32",
		userAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		viewportWidth:  1920,
		viewportHeight: 1080,
	},
	{
		platform:       "MacIntel",
		userAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		viewportWidth:  1728,
		viewportHeight: 1117,
	},
	{
		// high-DPI macOS
		platform:       "MacIntel",
		userAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		viewportWidth:  3024,
		viewportHeight: 1964,
	},
}

// fingerprintPath is the file a FingerprintStore persists to within an
// app-data directory.
func fingerprintPath(appDataDir string) string {
	return filepath.Join(appDataDir, "search_fingerprint.yaml")
}

// LoadOrCreateFingerprint returns the fingerprint persisted at appDataDir,
// composing and saving a fresh one on first use. rng, if nil, defaults to a
// time-seeded source; tests pass a deterministic one.
func LoadOrCreateFingerprint(appDataDir string, rng *rand.Rand) (FingerprintConfig, error) {
	path := fingerprintPath(appDataDir)
	if raw, err := os.ReadFile(path); err == nil {
		var cfg FingerprintConfig
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return FingerprintConfig{}, engineerr.Wrap(engineerr.KindParse, fmt.Sprintf("parse fingerprint at %s", path), err)
		}
		return cfg, nil
	}

	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	cfg := composeFingerprint(rng, time.Now())

	if err := os.MkdirAll(appDataDir, 0o755); err != nil {
		return FingerprintConfig{}, engineerr.Wrap(engineerr.KindInternal, "create app data directory", err)
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return FingerprintConfig{}, engineerr.Wrap(engineerr.KindInternal, "marshal fingerprint", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return FingerprintConfig{}, engineerr.Wrap(engineerr.KindInternal, fmt.Sprintf("write fingerprint to %s", path), err)
	}
	return cfg, nil
}

func composeFingerprint(rng *rand.Rand, now time.Time) FingerprintConfig {
	_, offsetSeconds := now.Zone()
	tmpl := desktopTemplates[rng.Intn(len(desktopTemplates))]

	jitter := func(v int) int {
		delta := (rng.Float64()*0.2 - 0.1) * float64(v) // +-10%
		return v + int(delta)
	}

	return FingerprintConfig{
		TimezoneOffsetMinutes: offsetSeconds / 60,
		Platform:              tmpl.platform,
		Locale:                "zh-CN",
		UserAgent:             tmpl.userAgent,
		ViewportWidth:         jitter(tmpl.viewportWidth),
		ViewportHeight:        jitter(tmpl.viewportHeight),
	}
}

// PreferDarkColorScheme reports whether the engine should request the dark
// color scheme for the given local hour: dark iff hour in [19,7).
func PreferDarkColorScheme(localHour int) bool {
	return localHour >= 19 || localHour < 7
}
