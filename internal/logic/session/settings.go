package session

import (
	"os"

	"github.com/cjeanneret/snapcam/internal/hw/camera"
)

// State is the lifecycle of the capture session.
type State int

const (
	StateUnconfigured State = iota
	StateStopped            // configured, not running
	StateRunning            // configured and running
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Settings is the immutable snapshot returned after every transition.
type Settings struct {
	Position camera.Position    `json:"position"`
	Flash    camera.FlashMode   `json:"flash"`
	Torch    camera.TorchMode   `json:"torch"`
	Mode     camera.CaptureMode `json:"mode"`
}

// ConfigurationState describes what is bound to the session.
// At most one of the photo/movie outputs is attached, matching the mode.
type ConfigurationState struct {
	Configured  bool                `json:"configured"`
	Running     bool                `json:"running"`
	ActiveInput string              `json:"active_input,omitempty"` // empty only before first configuration
	AudioInput  string              `json:"audio_input,omitempty"`
	Outputs     []camera.OutputKind `json:"outputs"`
}

// HasOutput reports whether k is attached.
func (c ConfigurationState) HasOutput(k camera.OutputKind) bool {
	for _, o := range c.Outputs {
		if o == k {
			return true
		}
	}
	return false
}

// Options configures a Controller.
type Options struct {
	Mode        camera.CaptureMode // mode configured at first start
	Position    camera.Position    // camera bound at first start; unspecified means back
	PhotoPreset camera.Preset      // default "photo"
	VideoPreset camera.Preset      // default "high"
	TempDir     string             // where recordings are created; default os.TempDir()
}

func (o Options) withDefaults() Options {
	if o.Position == camera.PositionUnspecified {
		o.Position = camera.PositionBack
	}
	if o.PhotoPreset == "" {
		o.PhotoPreset = camera.PresetPhoto
	}
	if o.VideoPreset == "" {
		o.VideoPreset = camera.PresetHigh
	}
	if o.TempDir == "" {
		o.TempDir = os.TempDir()
	}
	return o
}

func (o Options) presetFor(m camera.CaptureMode) camera.Preset {
	if m == camera.ModeVideo {
		return o.VideoPreset
	}
	return o.PhotoPreset
}
