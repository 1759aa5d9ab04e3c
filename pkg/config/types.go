package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts either a Go duration string ("30s") or a number of
// nanoseconds in JSON and YAML configuration files.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		// parse numeric as nanoseconds
		*d = Duration(time.Duration(value))

		return nil
	case string:
		return d.parse(value)
	default:
		return errInvalidDuration
	}
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return errInvalidDuration
	}

	if node.Tag == "!!int" {
		var n int64
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}

		*d = Duration(time.Duration(n))

		return nil
	}

	return d.parse(node.Value)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) parse(s string) error {
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidDuration, err)
	}

	*d = Duration(dur)

	return nil
}

const (
	defaultTimeoutsFile        = "config.txt"
	defaultStorePath           = "statustracker.db"
	defaultConcurrency         = 8
	defaultICMPCount           = 4
	defaultPollInterval        = Duration(time.Second)
	defaultTerminalConcurrency = 64
	defaultListenAddr          = ":8090"
	defaultEndpointsColl       = "endpoints"
	defaultBridgesColl         = "bridges"
	defaultHeartbeatsColl      = "heartbeats"
	defaultLogLevel            = "info"
	defaultLogFormat           = "json"
	maxTCPPort                 = 65535
	storeDriverSQLite          = "sqlite"
	storeDriverMemory          = "memory"
	logFormatJSON              = "json"
	logFormatConsole           = "console"
)

// StoreConfig selects the document store.
type StoreConfig struct {
	Driver string `json:"driver" yaml:"driver"` // sqlite or memory
	Path   string `json:"path" yaml:"path"`
}

// CollectionsConfig names the collections the engines read and write.
type CollectionsConfig struct {
	Endpoints  string `json:"endpoints" yaml:"endpoints"`
	Bridges    string `json:"bridges" yaml:"bridges"`
	Heartbeats string `json:"heartbeats" yaml:"heartbeats"`
}

// ProberConfig tunes the reachability prober and its pinger.
type ProberConfig struct {
	Concurrency      int   `json:"concurrency" yaml:"concurrency"`
	ICMPCount        int   `json:"icmp_count" yaml:"icmp_count"`
	RateLimit        int   `json:"rate_limit" yaml:"rate_limit"` // echo requests per second, 0 = unlimited
	TCPFallbackPorts []int `json:"tcp_fallback_ports,omitempty" yaml:"tcp_fallback_ports"`
	AlwaysWrite      bool  `json:"always_write" yaml:"always_write"`
}

// WatchdogConfig tunes the freshness watchdog.
type WatchdogConfig struct {
	PollInterval        Duration `json:"poll_interval" yaml:"poll_interval"`
	// TerminalConcurrency caps the terminals of one bridge confirmed at once.
	TerminalConcurrency int      `json:"terminal_concurrency" yaml:"terminal_concurrency"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`
	Format      string `json:"format" yaml:"format"` // json or console
	Development bool   `json:"development" yaml:"development"`
}

// TrackerConfig represents the configuration for the tracker process.
type TrackerConfig struct {
	Store        StoreConfig       `json:"store" yaml:"store"`
	Collections  CollectionsConfig `json:"collections" yaml:"collections"`
	TimeoutsFile string            `json:"timeouts_file" yaml:"timeouts_file"` // key=value file, re-read on every access
	Prober       ProberConfig      `json:"prober" yaml:"prober"`
	Watchdog     WatchdogConfig    `json:"watchdog" yaml:"watchdog"`
	Logging      LoggingConfig     `json:"logging" yaml:"logging"`
	ListenAddr   string            `json:"listen_addr" yaml:"listen_addr"`
	GrpcAddr     string            `json:"grpc_addr,omitempty" yaml:"grpc_addr"`
	TickHistory  int               `json:"tick_history" yaml:"tick_history"` // summaries kept per engine
}

// ApplyDefaults fills every unset field with its default.
func (c *TrackerConfig) ApplyDefaults() {
	if c.Store.Driver == "" {
		c.Store.Driver = storeDriverSQLite
	}

	if c.Store.Path == "" && c.Store.Driver == storeDriverSQLite {
		c.Store.Path = defaultStorePath
	}

	if c.Collections.Endpoints == "" {
		c.Collections.Endpoints = defaultEndpointsColl
	}

	if c.Collections.Bridges == "" {
		c.Collections.Bridges = defaultBridgesColl
	}

	if c.Collections.Heartbeats == "" {
		c.Collections.Heartbeats = defaultHeartbeatsColl
	}

	if c.TimeoutsFile == "" {
		c.TimeoutsFile = defaultTimeoutsFile
	}

	if c.Prober.Concurrency == 0 {
		c.Prober.Concurrency = defaultConcurrency
	}

	if c.Prober.ICMPCount == 0 {
		c.Prober.ICMPCount = defaultICMPCount
	}

	if c.Watchdog.PollInterval == 0 {
		c.Watchdog.PollInterval = defaultPollInterval
	}

	if c.Watchdog.TerminalConcurrency == 0 {
		c.Watchdog.TerminalConcurrency = defaultTerminalConcurrency
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}

	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
}

// Validate applies defaults and checks the configuration.
func (c *TrackerConfig) Validate() error {
	c.ApplyDefaults()

	var problems []string

	switch c.Store.Driver {
	case storeDriverSQLite, storeDriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown store driver %q", c.Store.Driver))
	}

	if c.Prober.Concurrency < 0 {
		problems = append(problems, "prober.concurrency must be positive")
	}

	if c.Prober.ICMPCount < 0 {
		problems = append(problems, "prober.icmp_count must be positive")
	}

	if c.Prober.RateLimit < 0 {
		problems = append(problems, "prober.rate_limit must not be negative")
	}

	for _, port := range c.Prober.TCPFallbackPorts {
		if port <= 0 || port > maxTCPPort {
			problems = append(problems, fmt.Sprintf("invalid tcp fallback port %d", port))
		}
	}

	if c.TickHistory < 0 {
		problems = append(problems, "tick_history must not be negative")
	}

	if c.Watchdog.PollInterval < 0 {
		problems = append(problems, "watchdog.poll_interval must be positive")
	}

	if c.Watchdog.TerminalConcurrency < 0 {
		problems = append(problems, "watchdog.terminal_concurrency must be positive")
	}

	switch c.Logging.Format {
	case logFormatJSON, logFormatConsole:
	default:
		problems = append(problems, fmt.Sprintf("unknown log format %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", errInvalidConfig, strings.Join(problems, "; "))
	}

	return nil
}
