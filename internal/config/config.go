// YAML config loader with CUE validation integration
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backoff tunes the adaptive retry delay of one upstream operation.
type Backoff struct {
	InitialDelay      time.Duration `yaml:"initial_delay"`
	IncreaseFactor    float64       `yaml:"increase_factor"`
	DecreaseFactor    float64       `yaml:"decrease_factor"`
	DecreaseThreshold int           `yaml:"decrease_threshold"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	MaxFails          int           `yaml:"max_fails"`
}

// Client configures an upstream HTTP endpoint.
type Client struct {
	URL          string        `yaml:"url"`
	Timeout      time.Duration `yaml:"timeout"`
	StallWarning time.Duration `yaml:"stall_warning"`
	Backoff      Backoff       `yaml:"backoff"`
}

// Zone places the nest and sizes the no-fly zone, in millimetres.
type Zone struct {
	NestX  float64 `yaml:"nest_x"`
	NestY  float64 `yaml:"nest_y"`
	Radius float64 `yaml:"radius"`
}

// Monitor tunes the refresh loop.
type Monitor struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	MaxPositions      int           `yaml:"max_positions"`
	ViolationTTL      time.Duration `yaml:"violation_ttl"`
	DegradedThreshold int           `yaml:"degraded_threshold"`
	DegradedDelay     time.Duration `yaml:"degraded_delay"`
}

// Watchdog tunes stall detection.
type Watchdog struct {
	Interval         time.Duration `yaml:"interval"`
	CycleLogInterval time.Duration `yaml:"cycle_log_interval"`
	Disabled         bool          `yaml:"disabled"`
}

// Admin configures the HTTP front end.
type Admin struct {
	Addr string `yaml:"addr"`
}

// Greptime configures the optional GreptimeDB event export. An empty
// endpoint disables it.
type Greptime struct {
	Endpoint string `yaml:"endpoint"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
}

// Logging selects level and output format.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the root configuration.
type Config struct {
	Feed     Client   `yaml:"feed"`
	Pilots   Client   `yaml:"pilots"`
	Zone     Zone     `yaml:"zone"`
	Monitor  Monitor  `yaml:"monitor"`
	Watchdog Watchdog `yaml:"watchdog"`
	Admin    Admin    `yaml:"admin"`
	Greptime Greptime `yaml:"greptime"`
	Logging  Logging  `yaml:"logging"`
}

// DefaultBackoff returns the standard retry tuning.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay:      500 * time.Millisecond,
		IncreaseFactor:    1.5,
		DecreaseFactor:    1.25,
		DecreaseThreshold: 10,
	}
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Feed: Client{
			URL:          "https://assignments.reaktor.com/birdnest/drones",
			Timeout:      5 * time.Second,
			StallWarning: 10 * time.Second,
			Backoff:      DefaultBackoff(),
		},
		Pilots: Client{
			URL:          "https://assignments.reaktor.com/birdnest/pilots",
			Timeout:      5 * time.Second,
			StallWarning: 10 * time.Second,
			Backoff:      DefaultBackoff(),
		},
		Zone: Zone{NestX: 250000, NestY: 250000, Radius: 100000},
		Monitor: Monitor{
			PollInterval:      2 * time.Second,
			MaxPositions:      50,
			ViolationTTL:      10 * time.Minute,
			DegradedThreshold: 5,
			DegradedDelay:     5 * time.Second,
		},
		Watchdog: Watchdog{Interval: time.Minute, CycleLogInterval: time.Minute},
		Admin:    Admin{Addr: ":3000"},
		Greptime: Greptime{Database: "public", Table: "ndz_violations"},
		Logging:  Logging{Level: "info", Format: "text"},
	}
}

// LoadDotEnv loads variables from .env files that exist. Variables already
// set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load builds the configuration from defaults, the optional YAML file at
// configPath (validated against the CUE schema at cueSchemaPath, or the
// built-in one) and environment overrides.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	cfg := Default()
	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		expanded := []byte(os.ExpandEnv(string(raw)))

		schema, err := ReadSchema(cueSchemaPath)
		if err != nil {
			return nil, err
		}
		if err := ValidateWithCue(configPath, expanded, schema); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(expanded, cfg); err != nil {
			return nil, fmt.Errorf("cannot unmarshal YAML config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies the environment overrides understood by the service.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("DRONE_API_URL"); ok && v != "" {
		c.Feed.URL = v
	}
	if v, ok := lookup("PILOT_API_URL"); ok && v != "" {
		c.Pilots.URL = v
	}
	if v, ok := lookup("API_REQUEST_TIMEOUT"); ok && v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid API_REQUEST_TIMEOUT: %w", err)
		}
		c.Feed.Timeout = time.Duration(ms) * time.Millisecond
		c.Pilots.Timeout = c.Feed.Timeout
	}
	if v, ok := lookup("MAX_BACKOFF_DELAY_MS"); ok && v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_BACKOFF_DELAY_MS: %w", err)
		}
		c.Feed.Backoff.MaxDelay = time.Duration(ms) * time.Millisecond
		c.Pilots.Backoff.MaxDelay = c.Feed.Backoff.MaxDelay
	}
	if v, ok := lookup("MAX_POSITIONS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAX_POSITIONS: %w", err)
		}
		c.Monitor.MaxPositions = n
	}
	if v, ok := lookup("LOGGING_LEVEL"); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		c.Admin.Addr = ":" + v
	}
	if v, ok := lookup("GREPTIMEDB_ENDPOINT"); ok {
		c.Greptime.Endpoint = v
	}
	if v, ok := lookup("GREPTIMEDB_DATABASE"); ok && v != "" {
		c.Greptime.Database = v
	}
	if v, ok := lookup("GREPTIMEDB_TABLE"); ok && v != "" {
		c.Greptime.Table = v
	}
	return nil
}

// Validate checks values the schema cannot see, including env overrides.
func (c *Config) Validate() error {
	var errs []error
	if c.Feed.URL == "" {
		errs = append(errs, errors.New("feed.url is required"))
	}
	if c.Pilots.URL == "" {
		errs = append(errs, errors.New("pilots.url is required"))
	}
	for name, b := range map[string]Backoff{"feed": c.Feed.Backoff, "pilots": c.Pilots.Backoff} {
		if b.InitialDelay < 0 || b.MaxDelay < 0 {
			errs = append(errs, fmt.Errorf("%s.backoff delays must not be negative", name))
		}
		if b.IncreaseFactor < 1 || b.DecreaseFactor < 1 {
			errs = append(errs, fmt.Errorf("%s.backoff factors must be >= 1", name))
		}
		if b.DecreaseThreshold < 0 || b.MaxFails < 0 {
			errs = append(errs, fmt.Errorf("%s.backoff counts must not be negative", name))
		}
	}
	if c.Zone.Radius <= 0 {
		errs = append(errs, errors.New("zone.radius must be positive"))
	}
	if c.Monitor.PollInterval <= 0 {
		errs = append(errs, errors.New("monitor.poll_interval must be positive"))
	}
	if c.Monitor.MaxPositions < 1 {
		errs = append(errs, errors.New("monitor.max_positions must be at least 1"))
	}
	if c.Monitor.ViolationTTL <= 0 {
		errs = append(errs, errors.New("monitor.violation_ttl must be positive"))
	}
	if c.Monitor.DegradedThreshold < 0 || c.Monitor.DegradedDelay < 0 {
		errs = append(errs, errors.New("monitor degraded settings must not be negative"))
	}
	if !c.Watchdog.Disabled && c.Watchdog.Interval <= 0 {
		errs = append(errs, errors.New("watchdog.interval must be positive unless disabled"))
	}
	return errors.Join(errs...)
}
