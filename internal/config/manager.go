// Package config persists nexa's rate profiles and preferences in
// ~/.nexa/config.yaml and layers flags and NEXA_* environment variables on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	envPrefix      = "NEXA"
	DefaultProfile = "medium"

	DefaultAnalysisCommand = `/usr/bin/gemini-cli -p ""`
)

// Errors returned by Manager lookups and Set.
var (
	ErrUnknownProfile = errors.New("unknown rate profile")
	ErrUnknownKey     = errors.New("unknown configuration key")
	ErrInvalidValue   = errors.New("invalid configuration value")
)

// RateProfile is a speed preset for the prober
type RateProfile struct {
	Name          string        `mapstructure:"name"`
	Description   string        `mapstructure:"description"`
	Concurrency   int           `mapstructure:"concurrency"`
	Timeout       time.Duration `mapstructure:"timeout"`
	BannerTimeout time.Duration `mapstructure:"banner_timeout"`
}

// MarshalYAML renders durations as strings so the file stays hand-editable
func (p RateProfile) MarshalYAML() (interface{}, error) {
	return struct {
		Name          string `yaml:"name"`
		Description   string `yaml:"description"`
		Concurrency   int    `yaml:"concurrency"`
		Timeout       string `yaml:"timeout"`
		BannerTimeout string `yaml:"banner_timeout"`
	}{p.Name, p.Description, p.Concurrency, p.Timeout.String(), p.BannerTimeout.String()}, nil
}

// DefaultRateProfiles are always available, whatever the file says
var DefaultRateProfiles = map[string]RateProfile{
	"slow": {
		Name:          "slow",
		Description:   "Conservative scanning for fragile networks",
		Concurrency:   50,
		Timeout:       3 * time.Second,
		BannerTimeout: 1500 * time.Millisecond,
	},
	"medium": {
		Name:          "medium",
		Description:   "Balanced scanning for general use",
		Concurrency:   200,
		Timeout:       2 * time.Second,
		BannerTimeout: 900 * time.Millisecond,
	},
	"fast": {
		Name:          "fast",
		Description:   "Aggressive scanning for speed",
		Concurrency:   500,
		Timeout:       time.Second,
		BannerTimeout: 600 * time.Millisecond,
	},
	"ludicrous": {
		Name:          "ludicrous",
		Description:   "Maximum speed on networks you control",
		Concurrency:   1000,
		Timeout:       500 * time.Millisecond,
		BannerTimeout: 300 * time.Millisecond,
	},
}

// Preferences are user choices that outlive a single run
type Preferences struct {
	OutputFormat    string `yaml:"output_format" mapstructure:"output_format"`
	ColorOutput     bool   `yaml:"color_output" mapstructure:"color_output"`
	ShowBanners     bool   `yaml:"show_banners" mapstructure:"show_banners"`
	NmapPath        string `yaml:"nmap_path" mapstructure:"nmap_path"`
	AnalysisCommand string `yaml:"analysis_command" mapstructure:"analysis_command"`
}

// File is the on-disk layout of config.yaml
type File struct {
	Profile     string                 `yaml:"profile"`
	Preferences Preferences            `yaml:"preferences"`
	Profiles    map[string]RateProfile `yaml:"profiles,omitempty"`
}

// ScanSettings are the effective prober parameters for one run
type ScanSettings struct {
	Profile       string
	Concurrency   int
	Timeout       time.Duration
	BannerTimeout time.Duration
}

// Manager resolves configuration from flags, environment, file and defaults
type Manager struct {
	path string
	v    *viper.Viper
}

// DefaultPath returns ~/.nexa/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".nexa", "config.yaml")
	}
	return filepath.Join(home, ".nexa", "config.yaml")
}

// NewManager loads path, or DefaultPath when empty. A missing file is not an error.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("profile", DefaultProfile)
	v.SetDefault("preferences.output_format", "table")
	v.SetDefault("preferences.color_output", true)
	v.SetDefault("preferences.show_banners", true)
	v.SetDefault("preferences.nmap_path", "")
	v.SetDefault("preferences.analysis_command", DefaultAnalysisCommand)

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	return &Manager{path: path, v: v}, nil
}

// Path returns the file the manager reads and saves
func (m *Manager) Path() string {
	return m.path
}

// BindFlags lets changed command-line flags override every other source
func (m *Manager) BindFlags(fs *pflag.FlagSet) error {
	bindings := map[string]string{
		"concurrency":    "concurrency",
		"timeout":        "timeout",
		"banner_timeout": "banner-timeout",
		"profile":        "profile",
	}
	for key, name := range bindings {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := m.v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Profiles returns the built-in profiles overlaid with any defined in the file
func (m *Manager) Profiles() (map[string]RateProfile, error) {
	profiles := make(map[string]RateProfile, len(DefaultRateProfiles))
	for name, p := range DefaultRateProfiles {
		profiles[name] = p
	}

	var custom map[string]RateProfile
	if err := m.v.UnmarshalKey("profiles", &custom); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	for name, p := range custom {
		p.Name = name
		profiles[name] = p
	}
	return profiles, nil
}

// ProfileNames lists available profiles alphabetically
func (m *Manager) ProfileNames() ([]string, error) {
	profiles, err := m.Profiles()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CurrentProfile returns the name of the active rate profile
func (m *Manager) CurrentProfile() string {
	return m.v.GetString("profile")
}

// UseProfile makes name the active profile. Call Save to persist it.
func (m *Manager) UseProfile(name string) error {
	profiles, err := m.Profiles()
	if err != nil {
		return err
	}
	if _, ok := profiles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	m.v.Set("profile", name)
	return nil
}

// ScanSettings resolves concurrency and timeouts. Values set explicitly by
// flag, environment or file win; anything else comes from the active profile.
func (m *Manager) ScanSettings() (ScanSettings, error) {
	profiles, err := m.Profiles()
	if err != nil {
		return ScanSettings{}, err
	}
	name := m.CurrentProfile()
	profile, ok := profiles[name]
	if !ok {
		return ScanSettings{}, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}

	s := ScanSettings{
		Profile:       name,
		Concurrency:   profile.Concurrency,
		Timeout:       profile.Timeout,
		BannerTimeout: profile.BannerTimeout,
	}

	if m.v.IsSet("concurrency") {
		n, err := cast.ToIntE(m.v.Get("concurrency"))
		if err != nil {
			return ScanSettings{}, fmt.Errorf("%w: concurrency: %v", ErrInvalidValue, err)
		}
		s.Concurrency = n
	}
	if m.v.IsSet("timeout") {
		secs, err := cast.ToFloat64E(m.v.Get("timeout"))
		if err != nil {
			return ScanSettings{}, fmt.Errorf("%w: timeout: %v", ErrInvalidValue, err)
		}
		s.Timeout = time.Duration(secs * float64(time.Second))
	}
	if m.v.IsSet("banner_timeout") {
		d, err := cast.ToDurationE(m.v.Get("banner_timeout"))
		if err != nil {
			return ScanSettings{}, fmt.Errorf("%w: banner_timeout: %v", ErrInvalidValue, err)
		}
		s.BannerTimeout = d
	}

	if s.Concurrency < 1 {
		return ScanSettings{}, fmt.Errorf("%w: concurrency must be at least 1", ErrInvalidValue)
	}
	if s.Timeout <= 0 {
		return ScanSettings{}, fmt.Errorf("%w: timeout must be positive", ErrInvalidValue)
	}
	return s, nil
}

// Preferences returns the effective preferences
func (m *Manager) Preferences() Preferences {
	return Preferences{
		OutputFormat:    m.v.GetString("preferences.output_format"),
		ColorOutput:     m.v.GetBool("preferences.color_output"),
		ShowBanners:     m.v.GetBool("preferences.show_banners"),
		NmapPath:        m.v.GetString("preferences.nmap_path"),
		AnalysisCommand: m.v.GetString("preferences.analysis_command"),
	}
}

// Keys lists what Set accepts
func Keys() []string {
	return []string{"analysis_command", "color_output", "nmap_path", "output_format", "profile", "show_banners"}
}

// Set updates a single key from its string form. Call Save to persist it.
func (m *Manager) Set(key, value string) error {
	switch key {
	case "profile":
		return m.UseProfile(value)
	case "output_format":
		switch value {
		case "table", "json", "yaml", "html":
		default:
			return fmt.Errorf("%w: output_format must be table, json, yaml or html", ErrInvalidValue)
		}
		m.v.Set("preferences.output_format", value)
	case "color_output", "show_banners":
		b, err := cast.ToBoolE(value)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidValue, key, err)
		}
		m.v.Set("preferences."+key, b)
	case "nmap_path", "analysis_command":
		m.v.Set("preferences."+key, cast.ToString(value))
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}

// Snapshot returns what Save would write
func (m *Manager) Snapshot() (File, error) {
	var custom map[string]RateProfile
	if err := m.v.UnmarshalKey("profiles", &custom); err != nil {
		return File{}, fmt.Errorf("decode profiles: %w", err)
	}
	return File{
		Profile:     m.CurrentProfile(),
		Preferences: m.Preferences(),
		Profiles:    custom,
	}, nil
}

// Save writes the current profile and preferences to disk
func (m *Manager) Save() error {
	snap, err := m.Snapshot()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
