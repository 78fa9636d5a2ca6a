package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/snapcam/internal/hw/camera"
)

// MaxConfigFileBytes bounds the size of a configuration file.
const MaxConfigFileBytes = 1 << 20

// SessionConfig holds the initial state of the capture session.
type SessionConfig struct {
	InitialMode     string `yaml:"initial_mode"`     // "photo" (default) or "video"
	InitialPosition string `yaml:"initial_position"` // "back" (default) or "front"
	PhotoPreset     string `yaml:"photo_preset"`     // preset used in photo mode (default "photo")
	VideoPreset     string `yaml:"video_preset"`     // preset used in video mode (default "high")
	MediaDir        string `yaml:"media_dir"`        // where captured media is kept (default "media")
	TempDir         string `yaml:"temp_dir"`         // where recordings are written first (default: OS temp dir)
}

// DeviceConfig describes one capture device exposed by the backend.
type DeviceConfig struct {
	ID       string `yaml:"id"`
	Position string `yaml:"position"` // "back", "front" or "unspecified"
	Type     string `yaml:"type"`     // "dual", "wide_angle", "telephoto" or "microphone"
	HasTorch bool   `yaml:"has_torch"`
}

// BackendConfig selects and tunes the capture backend.
// Type selects a concrete implementation (only "sim" for now).
type BackendConfig struct {
	Type           string   `yaml:"type"`
	Authorize      string   `yaml:"authorize"`        // "granted" (default), "denied" or "prompt"
	PhotoLatencyMs float64  `yaml:"photo_latency_ms"` // delay before a photo is delivered; whole milliseconds
	FailOutputs    []string `yaml:"fail_outputs"`     // outputs the session refuses ("photo", "movie")
}

// LampConfig wires the torch and flash LEDs.
type LampConfig struct {
	TorchPin     int `yaml:"torch_pin"` // BCM pin. 0 = not wired.
	FlashPin     int `yaml:"flash_pin"` // BCM pin. 0 = not wired.
	FlashPulseMs int `yaml:"flash_pulse_ms"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Session  SessionConfig  `yaml:"session"`
	Devices  []DeviceConfig `yaml:"devices"`
	Backend  BackendConfig  `yaml:"backend"`
	Lamp     LampConfig     `yaml:"lamp"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// defaultDevices is the rig used when the file lists none: a phone-like
// back dual camera, a back wide-angle camera, a front camera and a
// microphone.
var defaultDevices = []DeviceConfig{
	{ID: "back-dual", Position: "back", Type: "dual", HasTorch: true},
	{ID: "back-wide", Position: "back", Type: "wide_angle", HasTorch: true},
	{ID: "front-wide", Position: "front", Type: "wide_angle"},
	{ID: "mic", Position: "unspecified", Type: "microphone"},
}

// ValidateConfigPath checks that path names a .yaml file directly inside a
// configs/ directory, without any ".." component.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q must end in .yaml", path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
// ${VAR} references are expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file is %d bytes, limit is %d", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Session.InitialMode == "" {
		c.Session.InitialMode = "photo"
	}
	if c.Session.InitialPosition == "" {
		c.Session.InitialPosition = "back"
	}
	if c.Session.PhotoPreset == "" {
		c.Session.PhotoPreset = string(camera.PresetPhoto)
	}
	if c.Session.VideoPreset == "" {
		c.Session.VideoPreset = string(camera.PresetHigh)
	}
	if c.Session.MediaDir == "" {
		c.Session.MediaDir = "media"
	}
	if c.Session.TempDir == "" {
		c.Session.TempDir = os.TempDir()
	}
	if len(c.Devices) == 0 {
		c.Devices = append([]DeviceConfig(nil), defaultDevices...)
	}
	for i := range c.Devices {
		if c.Devices[i].Position == "" {
			c.Devices[i].Position = "unspecified"
		}
	}
	if c.Backend.Authorize == "" {
		c.Backend.Authorize = "granted"
	}
	if c.Backend.PhotoLatencyMs == 0 {
		c.Backend.PhotoLatencyMs = 50 // 50ms shutter-to-delivery
	}
	if c.Lamp.FlashPulseMs == 0 {
		c.Lamp.FlashPulseMs = 80 // 80ms flash pulse
	}
}

func (c *Config) validate() error {
	if c.Backend.Type == "" {
		return errors.New("backend.type is required")
	}
	if c.Backend.Type != "sim" {
		return fmt.Errorf("backend.type %q is not supported (want \"sim\")", c.Backend.Type)
	}
	if _, err := camera.ParseAuthorizeMode(c.Backend.Authorize); err != nil {
		return fmt.Errorf("backend.authorize: %w", err)
	}
	if ms := c.Backend.PhotoLatencyMs; ms < 0 || ms != math.Trunc(ms) {
		return fmt.Errorf("backend.photo_latency_ms must be a whole number >= 0, got %g", ms)
	}
	for _, o := range c.Backend.FailOutputs {
		if _, err := camera.ParseOutputKind(o); err != nil {
			return fmt.Errorf("backend.fail_outputs: %w", err)
		}
	}

	if _, err := camera.ParseCaptureMode(c.Session.InitialMode); err != nil {
		return fmt.Errorf("session.initial_mode: %w", err)
	}
	pos, err := camera.ParsePosition(c.Session.InitialPosition)
	if err != nil {
		return fmt.Errorf("session.initial_position: %w", err)
	}
	if pos == camera.PositionUnspecified {
		return errors.New("session.initial_position must be back or front")
	}
	if !camera.Preset(c.Session.PhotoPreset).Valid() {
		return fmt.Errorf("session.photo_preset %q is not a known preset", c.Session.PhotoPreset)
	}
	if !camera.Preset(c.Session.VideoPreset).Valid() {
		return fmt.Errorf("session.video_preset %q is not a known preset", c.Session.VideoPreset)
	}

	seen := make(map[string]bool, len(c.Devices))
	cameras := 0
	for i, d := range c.Devices {
		if d.ID == "" {
			return fmt.Errorf("devices[%d].id is required", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("devices[%d].id %q is duplicated", i, d.ID)
		}
		seen[d.ID] = true
		if _, err := camera.ParsePosition(d.Position); err != nil {
			return fmt.Errorf("devices[%d].position: %w", i, err)
		}
		typ, err := camera.ParseDeviceType(d.Type)
		if err != nil {
			return fmt.Errorf("devices[%d].type: %w", i, err)
		}
		if typ != camera.Microphone {
			cameras++
		}
	}
	if cameras == 0 {
		return errors.New("devices must include at least one camera")
	}

	if c.Lamp.TorchPin < 0 || c.Lamp.FlashPin < 0 {
		return errors.New("lamp pins must be >= 0")
	}
	if c.Lamp.TorchPin != 0 && c.Lamp.TorchPin == c.Lamp.FlashPin {
		return fmt.Errorf("lamp.torch_pin and lamp.flash_pin both use GPIO %d", c.Lamp.TorchPin)
	}
	if c.Lamp.FlashPulseMs <= 0 {
		return fmt.Errorf("lamp.flash_pulse_ms must be > 0, got %d", c.Lamp.FlashPulseMs)
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// Mode returns the capture mode configured at first start.
func (c *Config) Mode() camera.CaptureMode {
	m, _ := camera.ParseCaptureMode(c.Session.InitialMode)
	return m
}

// Position returns the camera position bound at first start.
func (c *Config) Position() camera.Position {
	p, _ := camera.ParsePosition(c.Session.InitialPosition)
	return p
}

// PhotoPreset returns the session preset for photo mode.
func (c *Config) PhotoPreset() camera.Preset {
	return camera.Preset(c.Session.PhotoPreset)
}

// VideoPreset returns the session preset for video mode.
func (c *Config) VideoPreset() camera.Preset {
	return camera.Preset(c.Session.VideoPreset)
}

// CameraDevices converts the device list for the backend.
func (c *Config) CameraDevices() []camera.Device {
	out := make([]camera.Device, 0, len(c.Devices))
	for _, d := range c.Devices {
		pos, _ := camera.ParsePosition(d.Position)
		typ, _ := camera.ParseDeviceType(d.Type)
		out = append(out, camera.Device{ID: d.ID, Position: pos, Type: typ, HasTorch: d.HasTorch})
	}
	return out
}

// AuthorizeMode returns how the simulated backend answers authorization.
func (c *Config) AuthorizeMode() camera.AuthorizeMode {
	m, _ := camera.ParseAuthorizeMode(c.Backend.Authorize)
	return m
}

// FailOutputs returns the outputs the simulated backend refuses.
func (c *Config) FailOutputs() []camera.OutputKind {
	var out []camera.OutputKind
	for _, s := range c.Backend.FailOutputs {
		k, _ := camera.ParseOutputKind(s)
		out = append(out, k)
	}
	return out
}

// PhotoLatency returns the delay between shutter and photo delivery.
func (c *Config) PhotoLatency() time.Duration {
	return time.Duration(c.Backend.PhotoLatencyMs) * time.Millisecond
}

// FlashPulse returns how long the flash LED stays lit.
func (c *Config) FlashPulse() time.Duration {
	return time.Duration(c.Lamp.FlashPulseMs) * time.Millisecond
}
