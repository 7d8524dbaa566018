// Package config implements the closed, YAML-backed configuration
// schema described in spec.md §9's Design Note: unknown keys are
// rejected, validation produces structured field-path errors, and the
// loaded document is immutable for the life of a run.
//
// Shape and Default()/Validate() conventions follow the teacher's
// scheduler.Config, adapted from JSON to YAML per go.yaml.in/yaml/v3
// (the only YAML library anywhere in the retrieved pack).
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.yaml.in/yaml/v3"
)

// FieldError reports a validation failure against a specific
// dotted field path (spec.md §9: "structured errors with field
// paths, e.g. modbus.ip").
type FieldError struct {
	Path    string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationError aggregates every FieldError found during Validate.
type ValidationError struct {
	Errors []*FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := fmt.Sprintf("%d configuration errors:", len(e.Errors))
	for _, fe := range e.Errors {
		msg += "\n  - " + fe.Error()
	}
	return msg
}

// ModbusConfig describes how to reach the charger.
type ModbusConfig struct {
	IP             string        `yaml:"ip"`
	Port           int           `yaml:"port"`
	SocketSlaveID  int           `yaml:"socket_slave_id"`
	StationSlaveID int           `yaml:"station_slave_id"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
}

// ScheduleItemConfig is the YAML shape of one SCHEDULED-mode window.
type ScheduleItemConfig struct {
	Active      bool   `yaml:"active"`
	DaysOfWeek  []int  `yaml:"days_of_week"` // 0 = Sunday, per time.Weekday
	Start       string `yaml:"start"`        // "HH:MM"
	End         string `yaml:"end"`          // "HH:MM"
	CurrentAmps float64 `yaml:"current_amps"`
}

// PriceFeedConfig configures the optional dynamic-price strategy.
type PriceFeedConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Strategy      string        `yaml:"strategy"` // level | threshold | percentile
	AbsoluteLimit float64       `yaml:"absolute_limit"`
	Tolerance     float64       `yaml:"tolerance"`
	Percentile    float64       `yaml:"percentile"`
	EndpointURL   string        `yaml:"endpoint_url"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`

	// ChargeAmps is the current applied to the virtual schedule items
	// the price strategy expands its chosen hours into (spec.md §4.5:
	// "chosen hours are expanded into virtual schedule items").
	ChargeAmps float64 `yaml:"charge_amps"`
}

// Config is the complete, closed configuration schema.
type Config struct {
	Mode      string  `yaml:"mode"` // MANUAL | AUTO | SCHEDULED
	StartStop bool    `yaml:"start_stop"`
	Intended  float64 `yaml:"intended_current"`

	MaxSetCurrent    float64 `yaml:"max_set_current"`
	SinglePhaseMax   float64 `yaml:"single_phase_max"`
	PhaseHysteresis  float64 `yaml:"phase_hysteresis"`
	EnableThreshold  float64 `yaml:"enable_threshold"`
	EnableHoldSeconds  float64 `yaml:"enable_hold_seconds"`
	DisableHoldSeconds float64 `yaml:"disable_hold_seconds"`
	MinSOC             float64 `yaml:"min_soc"`

	ActiveIntervalMS int `yaml:"active_interval_ms"`
	IdleIntervalMS   int `yaml:"idle_interval_ms"`

	CurrentTolerance      float64       `yaml:"current_tolerance"`
	CurrentUpdateInterval time.Duration `yaml:"current_update_interval"`
	VerifyDelay           time.Duration `yaml:"verify_delay"`
	MaxRetries            int           `yaml:"max_retries"`

	Timezone string               `yaml:"timezone"`
	Schedule []ScheduleItemConfig `yaml:"schedule"`
	PriceFeed PriceFeedConfig     `yaml:"price_feed"`

	// Latitude/Longitude locate the installation for AUTO mode's
	// daylight gating (spec.md §4.5 excess-solar tracking only makes
	// sense between sunrise and sunset).
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`

	Modbus ModbusConfig `yaml:"modbus"`

	StatePath  string `yaml:"state_path"`
	HTTPListen string `yaml:"http_listen"`

	StartStopOnExit string `yaml:"start_stop_on_exit"` // "safe" | "keep"

	LogLevel string `yaml:"log_level"`
}

// Default returns a Config populated with spec.md's documented
// defaults.
func Default() *Config {
	return &Config{
		Mode:               "MANUAL",
		StartStop:          true,
		Intended:           6,
		MaxSetCurrent:      32,
		SinglePhaseMax:     16,
		PhaseHysteresis:    2,
		EnableThreshold:    6.0,
		EnableHoldSeconds:  30,
		DisableHoldSeconds: 60,
		MinSOC:             0,
		ActiveIntervalMS:   1000,
		IdleIntervalMS:     5000,
		CurrentTolerance:      0.5,
		CurrentUpdateInterval: 30 * time.Second,
		VerifyDelay:           100 * time.Millisecond,
		MaxRetries:            3,
		Timezone:              "UTC",
		Modbus: ModbusConfig{
			IP:             "192.168.1.50",
			Port:           502,
			SocketSlaveID:  1,
			StationSlaveID: 200,
			ConnectTimeout: 5 * time.Second,
			RequestTimeout: 3 * time.Second,
			KeepAlive:      30 * time.Second,
		},
		StatePath:       "/var/lib/evcharged/state.json",
		HTTPListen:      ":8080",
		StartStopOnExit: "safe",
		LogLevel:        "info",
	}
}

// Load reads, strictly decodes (unknown keys rejected), and validates
// a YAML configuration document from path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader is Load's io.Reader-based core, used directly by
// tests and by the HTTP config-replace endpoint.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to w as YAML.
func (c *Config) Save(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(c)
}

var validModes = map[string]bool{"MANUAL": true, "AUTO": true, "SCHEDULED": true}
var validExitPolicies = map[string]bool{"safe": true, "keep": true}
var validStrategies = map[string]bool{"": true, "level": true, "threshold": true, "percentile": true}

// Validate checks every field and returns a *ValidationError
// aggregating every problem found, with a dotted field path per
// problem (spec.md §9).
func (c *Config) Validate() error {
	var errs []*FieldError
	add := func(path, format string, args ...any) {
		errs = append(errs, &FieldError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if !validModes[c.Mode] {
		add("mode", "must be one of MANUAL, AUTO, SCHEDULED, got %q", c.Mode)
	}
	if c.Intended < 0 {
		add("intended_current", "must be >= 0")
	}
	if c.MaxSetCurrent <= 0 {
		add("max_set_current", "must be > 0")
	}
	if c.SinglePhaseMax <= 0 {
		add("single_phase_max", "must be > 0")
	}
	if c.EnableThreshold < 0 {
		add("enable_threshold", "must be >= 0")
	}
	if c.EnableHoldSeconds < 0 {
		add("enable_hold_seconds", "must be >= 0")
	}
	if c.DisableHoldSeconds < 0 {
		add("disable_hold_seconds", "must be >= 0")
	}
	if c.MinSOC < 0 || c.MinSOC > 100 {
		add("min_soc", "must be in [0, 100]")
	}
	if c.ActiveIntervalMS <= 0 {
		add("active_interval_ms", "must be > 0")
	}
	if c.IdleIntervalMS <= 0 {
		add("idle_interval_ms", "must be > 0")
	}
	if c.CurrentTolerance < 0 {
		add("current_tolerance", "must be >= 0")
	}
	if c.CurrentUpdateInterval <= 0 {
		add("current_update_interval", "must be > 0")
	}
	if c.MaxRetries < 0 {
		add("max_retries", "must be >= 0")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		add("timezone", "unknown timezone %q: %v", c.Timezone, err)
	}
	if !validExitPolicies[c.StartStopOnExit] {
		add("start_stop_on_exit", "must be one of safe, keep, got %q", c.StartStopOnExit)
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		add("latitude", "must be in [-90, 90]")
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		add("longitude", "must be in [-180, 180]")
	}
	if c.Modbus.IP == "" {
		add("modbus.ip", "must not be empty")
	}
	if c.Modbus.Port <= 0 || c.Modbus.Port > 65535 {
		add("modbus.port", "must be in (0, 65535]")
	}
	if c.Modbus.ConnectTimeout <= 0 {
		add("modbus.connect_timeout", "must be > 0")
	}
	if c.Modbus.RequestTimeout <= 0 {
		add("modbus.request_timeout", "must be > 0")
	}
	if c.StatePath == "" {
		add("state_path", "must not be empty")
	}
	if !validStrategies[c.PriceFeed.Strategy] {
		add("price_feed.strategy", "must be one of level, threshold, percentile, got %q", c.PriceFeed.Strategy)
	}
	if c.PriceFeed.Enabled && c.PriceFeed.Strategy == "" {
		add("price_feed.strategy", "must be set when price_feed.enabled is true")
	}
	for i, item := range c.Schedule {
		path := fmt.Sprintf("schedule[%d]", i)
		if _, err := parseMinuteOfDay(item.Start); err != nil {
			add(path+".start", "%v", err)
		}
		if _, err := parseMinuteOfDay(item.End); err != nil {
			add(path+".end", "%v", err)
		}
		for _, d := range item.DaysOfWeek {
			if d < 0 || d > 6 {
				add(path+".days_of_week", "day %d out of range [0,6]", d)
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Errors: errs}
}

func parseMinuteOfDay(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid HH:MM time %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return h*60 + m, nil
}
