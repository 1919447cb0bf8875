package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/canoncap/internal/edsdk"
)

// Camera types.
const (
	CameraEDSDK      = "edsdk"             // Canon body on USB through EDSDK
	CameraRemoteGPIO = "canon_remote_gpio" // Canon wired remote (N3/E3) on GPIO
)

// CameraConfig describes how to communicate with the camera.
// Type selects a concrete implementation.
type CameraConfig struct {
	Type            string `yaml:"type"`              // "edsdk" or "canon_remote_gpio"
	Index           int    `yaml:"index"`             // position in the EDSDK camera list
	SaveTo          string `yaml:"save_to"`           // "host", "camera" or "both"
	DownloadDir     string `yaml:"download_dir"`      // where downloaded files go
	FileName        string `yaml:"file_name"`         // name template: {seq} {id} {time} {camera} {camera_file} {ext}
	TimeoutMs       int    `yaml:"timeout_ms"`        // wait for the transfer event (ms)
	PumpIntervalMs  int    `yaml:"pump_interval_ms"`  // EdsGetEvent period (ms)
	Retries         int    `yaml:"retries"`           // retries on busy / no camera
	RetryIntervalMs int    `yaml:"retry_interval_ms"` // first retry delay (ms)

	// canon_remote_gpio only
	FocusPin       int `yaml:"focus_pin"`        // GPIO pin for FOCUS line
	ShutterPin     int `yaml:"shutter_pin"`      // GPIO pin for SHUTTER line
	FocusDelayMs   int `yaml:"focus_delay_ms"`   // autofocus delay (ms)
	ShutterDelayMs int `yaml:"shutter_delay_ms"` // shutter hold time (ms)
}

// TriggerConfig describes the optional hardware shutter button.
type TriggerConfig struct {
	ButtonPin  int  `yaml:"button_pin"`  // BCM pin, 0 = no button
	ActiveLow  bool `yaml:"active_low"`  // button pulls the pin to ground
	DebounceMs int  `yaml:"debounce_ms"` // stable time before a press counts (ms)
	PollMs     int  `yaml:"poll_ms"`     // sampling period (ms)
}

// DefaultsConfig contains generic run parameters.
type DefaultsConfig struct {
	Shots      int  `yaml:"shots"`       // shots per run
	IntervalMs int  `yaml:"interval_ms"` // delay between shots (ms)
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockSDK    bool `yaml:"mock_sdk"`    // simulated camera instead of EDSDK
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Trigger  TriggerConfig  `yaml:"trigger"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// Default returns the configuration used when no file is present: one shot
// from the first EDSDK camera saved as captured_image.jpg in the working
// directory.
func Default() *Config {
	cfg := &Config{
		Camera:  CameraConfig{Type: CameraEDSDK},
		Trigger: TriggerConfig{ActiveLow: true},
	}
	if err := cfg.normalize(); err != nil {
		panic(err)
	}
	return cfg
}

// MaxConfigFileBytes bounds the size of a config file.
const MaxConfigFileBytes = 64 << 10

// ValidateConfigPath accepts only *.yaml files directly inside a directory
// named "configs".
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q: extension must be .yaml", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q: file must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, MaxConfigFileBytes)
	}
	return Parse(data)
}

// LoadOptional is Load, except that a missing file yields Default.
func LoadOptional(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Parse decodes YAML, fills defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Config{Trigger: TriggerConfig{ActiveLow: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) normalize() error {
	c := &cfg.Camera
	switch c.Type {
	case "":
		c.Type = CameraEDSDK
	case CameraEDSDK, CameraRemoteGPIO:
	default:
		return fmt.Errorf("camera.type must be %q or %q, got %q", CameraEDSDK, CameraRemoteGPIO, c.Type)
	}
	if c.Index < 0 {
		return fmt.Errorf("camera.index must be >= 0, got %d", c.Index)
	}
	if _, ok := edsdk.ParseSaveTo(c.SaveTo); !ok {
		return fmt.Errorf("camera.save_to must be host, camera or both, got %q", c.SaveTo)
	}
	if c.SaveTo == "" {
		c.SaveTo = "host"
	}
	if c.DownloadDir == "" {
		c.DownloadDir = "."
	}
	if c.FileName == "" {
		c.FileName = "captured_image.jpg"
	}
	if c.TimeoutMs <= 0 {
		c.TimeoutMs = 6000 // a few seconds is enough for a JPEG on USB 2
	}
	if c.PumpIntervalMs <= 0 {
		c.PumpIntervalMs = 50
	}
	if c.Retries < 0 {
		return fmt.Errorf("camera.retries must be >= 0, got %d", c.Retries)
	}
	if c.RetryIntervalMs <= 0 {
		c.RetryIntervalMs = 250
	}
	if c.Type == CameraRemoteGPIO {
		if c.FocusPin <= 0 || c.ShutterPin <= 0 {
			return fmt.Errorf("camera.focus_pin and camera.shutter_pin are required for %s", CameraRemoteGPIO)
		}
		if c.FocusPin == c.ShutterPin {
			return fmt.Errorf("camera.focus_pin and camera.shutter_pin must differ, both are %d", c.FocusPin)
		}
	}
	// Default values for remote delays
	if c.FocusDelayMs <= 0 {
		c.FocusDelayMs = 500 // 500ms for autofocus
	}
	if c.ShutterDelayMs <= 0 {
		c.ShutterDelayMs = 200 // 200ms shutter hold
	}

	t := &cfg.Trigger
	if t.ButtonPin < 0 {
		return fmt.Errorf("trigger.button_pin must be >= 0, got %d", t.ButtonPin)
	}
	if t.DebounceMs <= 0 {
		t.DebounceMs = 30
	}
	if t.PollMs <= 0 {
		t.PollMs = 5
	}

	d := &cfg.Defaults
	if d.Shots == 0 {
		d.Shots = 1
	}
	if d.Shots < 0 {
		return fmt.Errorf("defaults.shots must be >= 1, got %d", d.Shots)
	}
	if d.IntervalMs < 0 {
		return fmt.Errorf("defaults.interval_ms must be >= 0, got %d", d.IntervalMs)
	}
	if d.DebugLevel < 0 || d.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", d.DebugLevel)
	}
	return nil
}

// SaveTo returns the parsed camera.save_to value.
func (c *Config) SaveTo() edsdk.SaveTo {
	s, _ := edsdk.ParseSaveTo(c.Camera.SaveTo)
	return s
}

// Timeout returns how long a shot waits for the camera to announce the file.
func (c *Config) Timeout() time.Duration {
	return ms(c.Camera.TimeoutMs)
}

// PumpInterval returns the EdsGetEvent period.
func (c *Config) PumpInterval() time.Duration {
	return ms(c.Camera.PumpIntervalMs)
}

// RetryInterval returns the first retry delay.
func (c *Config) RetryInterval() time.Duration {
	return ms(c.Camera.RetryIntervalMs)
}

// FocusDelay returns the autofocus delay duration.
func (c *Config) FocusDelay() time.Duration {
	return ms(c.Camera.FocusDelayMs)
}

// ShutterDelay returns the shutter hold duration.
func (c *Config) ShutterDelay() time.Duration {
	return ms(c.Camera.ShutterDelayMs)
}

// Interval returns the delay between shots of a run.
func (c *Config) Interval() time.Duration {
	return ms(c.Defaults.IntervalMs)
}

// Debounce returns the button debounce time.
func (c *Config) Debounce() time.Duration {
	return ms(c.Trigger.DebounceMs)
}

// Poll returns the button sampling period.
func (c *Config) Poll() time.Duration {
	return ms(c.Trigger.PollMs)
}

// NeedsGPIO reports whether the configuration drives any GPIO pin.
func (c *Config) NeedsGPIO() bool {
	return c.Camera.Type == CameraRemoteGPIO || c.Trigger.ButtonPin > 0
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
