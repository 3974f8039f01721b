package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amalfiblue/amalfiResults-sub000/internal/swing"
	"github.com/amalfiblue/amalfiResults-sub000/internal/tally"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Election  Election  `yaml:"election"`
	Layout    Layout    `yaml:"layout"`
	Analysis  Analysis  `yaml:"analysis"`
	Reference Reference `yaml:"reference"`
	Output    Output    `yaml:"output"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
}

// Election describes the division this deployment is counting.
type Election struct {
	Electorate string `yaml:"electorate"`
	// TCPLabels are used until TCP candidates are assigned with 'amalfi tcp set'.
	TCPLabels       []string `yaml:"tcp_labels"`
	AnchorParty     string   `yaml:"anchor_party"`
	CoalitionLabel  string   `yaml:"coalition_label"`
	LaborLabel      string   `yaml:"labor_label"`
	DefaultInformal int      `yaml:"default_informal"`
	DefaultBooth    string   `yaml:"default_booth"`
}

// Layout locates vote columns among the numeric tokens of a tally row.
type Layout struct {
	Primary int   `yaml:"primary"`
	TCP     []int `yaml:"tcp"`
}

type Analysis struct {
	Provider       string `yaml:"provider"`
	Region         string `yaml:"region"`
	Endpoint       string `yaml:"endpoint"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type Reference struct {
	CandidatesURL    string `yaml:"candidates_url"`
	PollingPlacesURL string `yaml:"polling_places_url"`
	HistoricalURL    string `yaml:"historical_url"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// CORSOrigins lists browser origins allowed to call the JSON API.
	CORSOrigins []string `yaml:"cors_origins"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for amalfi.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "amalfi")
}

// DataDir returns the XDG data directory for amalfi.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "amalfi")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/amalfi/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'amalfi init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Election: Election{
			TCPLabels:       []string{"TCP 1", "TCP 2"},
			AnchorParty:     "Liberal",
			CoalitionLabel:  "Liberal/National Coalition",
			LaborLabel:      "Australian Labor Party",
			DefaultInformal: tally.DefaultInformal,
			DefaultBooth:    tally.DefaultBooth,
		},
		Layout: Layout{Primary: 0, TCP: []int{1, 2}},
		Analysis: Analysis{
			Provider:       "textract",
			Region:         "ap-southeast-2",
			APIKeyEnv:      "AMALFI_ANALYZER_KEY",
			TimeoutSeconds: 60,
		},
		Reference: Reference{TimeoutSeconds: 30},
		Server:    Server{Host: "127.0.0.1", Port: 8000},
		Logging:   Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if len(cfg.Election.TCPLabels) > 2 {
		return nil, fmt.Errorf("parsing config: election.tcp_labels takes at most 2 labels, got %d", len(cfg.Election.TCPLabels))
	}
	if len(cfg.Layout.TCP) != 2 {
		return nil, fmt.Errorf("parsing config: layout.tcp needs exactly 2 positions, got %d", len(cfg.Layout.TCP))
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// FallbackTCPLabels returns the configured TCP labels as a pair.
func (c *Config) FallbackTCPLabels() [2]string {
	var labels [2]string
	copy(labels[:], c.Election.TCPLabels)
	return labels
}

// TallyConfig builds the extractor configuration for the configured electorate.
func (c *Config) TallyConfig() tally.Config {
	layout := tally.Layout{Primary: c.Layout.Primary}
	copy(layout.TCP[:], c.Layout.TCP)
	return tally.Config{
		Electorate:      c.Election.Electorate,
		TCPLabels:       c.FallbackTCPLabels(),
		Layout:          layout,
		InformalDefault: c.Election.DefaultInformal,
		BoothDefault:    c.Election.DefaultBooth,
	}
}

// SwingConfig builds the reconciler configuration.
func (c *Config) SwingConfig() swing.Config {
	return swing.Config{AnchorParty: c.Election.AnchorParty}
}

// AnalysisTimeout returns the document analysis timeout.
func (c *Config) AnalysisTimeout() time.Duration {
	return seconds(c.Analysis.TimeoutSeconds, 60)
}

// ReferenceTimeout returns the reference feed download timeout.
func (c *Config) ReferenceTimeout() time.Duration {
	return seconds(c.Reference.TimeoutSeconds, 30)
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
