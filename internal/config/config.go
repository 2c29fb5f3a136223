package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vango-dev/vtree/internal/errors"
	"github.com/vango-dev/vtree/pkg/server"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "vtree.json"

	// DefaultAddress is the default listen address of vtree serve.
	DefaultAddress = ":8080"

	// DefaultNamespace is the default Prometheus namespace.
	DefaultNamespace = "vtree"
)

// Journal kinds.
const (
	JournalNone   = "none"
	JournalMemory = "memory"
	JournalS3     = "s3"
)

// Config represents the complete vtree.json configuration.
type Config struct {
	// Name is the project name.
	Name string `json:"name,omitempty"`

	Server  ServerConfig  `json:"server"`
	Journal JournalConfig `json:"journal"`
	Metrics MetricsConfig `json:"metrics"`

	// Debug validates every rendered tree before diffing it.
	Debug bool `json:"debug,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig configures the live server. Durations use Go syntax
// ("30s", "1m").
type ServerConfig struct {
	Address           string `json:"address,omitempty"`
	LivePath          string `json:"livePath,omitempty"`
	MetricsPath       string `json:"metricsPath,omitempty"`
	ReadTimeout       string `json:"readTimeout,omitempty"`
	WriteTimeout      string `json:"writeTimeout,omitempty"`
	HeartbeatInterval string `json:"heartbeatInterval,omitempty"`
	ResumeWindow      string `json:"resumeWindow,omitempty"`
	MaxMessageSize    int64  `json:"maxMessageSize,omitempty"`
	MaxPatchHistory   int    `json:"maxPatchHistory,omitempty"`
	MaxSessions       int    `json:"maxSessions,omitempty"`
}

// JournalConfig selects where session journals go.
type JournalConfig struct {
	// Kind is "none", "memory" or "s3".
	Kind   string `json:"kind,omitempty"`
	Bucket string `json:"bucket,omitempty"`
	Prefix string `json:"prefix,omitempty"`
	Region string `json:"region,omitempty"`

	// Endpoint overrides the S3 endpoint, for S3-compatible stores.
	Endpoint     string `json:"endpoint,omitempty"`
	UsePathStyle bool   `json:"usePathStyle,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads vtree.json from dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads configuration from the specified file path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E121").
				WithDetail("No " + ConfigFileName + " found in " + filepath.Dir(path)).
				WithSuggestion("Create " + ConfigFileName + " or run without --config")
		}
		return nil, errors.New("E120").Wrap(err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E120").
			WithDetail("Failed to parse " + ConfigFileName + ": " + err.Error()).
			WithSuggestion("Check that " + ConfigFileName + " is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.New("E120").Wrap(err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E120").Wrap(err)
	}
	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	d := server.DefaultServerConfig()
	s := &c.Server
	if s.Address == "" {
		s.Address = DefaultAddress
	}
	if s.LivePath == "" {
		s.LivePath = d.LivePath
	}
	if s.MetricsPath == "" {
		s.MetricsPath = d.MetricsPath
	}
	if s.ReadTimeout == "" {
		s.ReadTimeout = d.SessionConfig.ReadTimeout.String()
	}
	if s.WriteTimeout == "" {
		s.WriteTimeout = d.SessionConfig.WriteTimeout.String()
	}
	if s.HeartbeatInterval == "" {
		s.HeartbeatInterval = d.SessionConfig.HeartbeatInterval.String()
	}
	if s.ResumeWindow == "" {
		s.ResumeWindow = d.SessionConfig.ResumeWindow.String()
	}
	if s.MaxMessageSize == 0 {
		s.MaxMessageSize = d.SessionConfig.MaxMessageSize
	}
	if s.MaxPatchHistory == 0 {
		s.MaxPatchHistory = d.SessionConfig.MaxPatchHistory
	}

	if c.Journal.Kind == "" {
		c.Journal.Kind = JournalNone
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	_, err := c.ServerConfig()
	if err != nil {
		return err
	}

	switch c.Journal.Kind {
	case JournalNone, JournalMemory:
	case JournalS3:
		if c.Journal.Bucket == "" {
			return errors.New("E122").
				WithDetail("journal.bucket is required when journal.kind is \"s3\"")
		}
	default:
		return errors.New("E122").
			WithDetail(fmt.Sprintf("journal.kind %q is not one of none, memory, s3", c.Journal.Kind))
	}
	return nil
}

// ServerConfig converts the server section into a server.ServerConfig.
func (c *Config) ServerConfig() (*server.ServerConfig, error) {
	out := server.DefaultServerConfig()
	s := c.Server
	out.Address = s.Address
	out.LivePath = s.LivePath
	out.MetricsPath = s.MetricsPath
	out.MaxSessions = s.MaxSessions

	sc := out.SessionConfig
	sc.MaxMessageSize = s.MaxMessageSize
	sc.MaxPatchHistory = s.MaxPatchHistory
	sc.Debug = c.Debug

	durations := []struct {
		field string
		value string
		dst   *time.Duration
	}{
		{"server.readTimeout", s.ReadTimeout, &sc.ReadTimeout},
		{"server.writeTimeout", s.WriteTimeout, &sc.WriteTimeout},
		{"server.heartbeatInterval", s.HeartbeatInterval, &sc.HeartbeatInterval},
		{"server.resumeWindow", s.ResumeWindow, &sc.ResumeWindow},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(d.value)
		if err != nil || v < 0 {
			return nil, errors.New("E122").
				WithDetail(fmt.Sprintf("%s: %q is not a duration", d.field, d.value)).
				WithSuggestion(`Use Go duration syntax such as "30s" or "2m"`)
		}
		*d.dst = v
	}

	if err := out.Validate(); err != nil {
		return nil, errors.New("E122").Wrap(err)
	}
	return out, nil
}

// Exists checks if a config file exists in the given directory.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindProjectRoot walks up from startDir to the directory holding
// vtree.json.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("E121").
				WithDetail("No " + ConfigFileName + " found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}

// LoadFromWorkingDir loads the nearest vtree.json above the working
// directory.
func LoadFromWorkingDir() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root, err := FindProjectRoot(wd)
	if err != nil {
		return nil, err
	}
	return Load(root)
}
