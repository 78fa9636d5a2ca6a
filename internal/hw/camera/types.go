package camera

import "fmt"

// Position is the side of the device a camera faces.
// PositionUnspecified is a degraded/unknown state (external or unknown
// cameras), never a request target.
type Position int

const (
	PositionUnspecified Position = iota
	PositionFront
	PositionBack
)

var positionNames = [...]string{"unspecified", "front", "back"}

func (p Position) String() string {
	if p < PositionUnspecified || p > PositionBack {
		return "unknown"
	}
	return positionNames[p]
}

// ParsePosition converts a config/API string into a Position.
func ParsePosition(s string) (Position, error) {
	for i, name := range positionNames {
		if s == name {
			return Position(i), nil
		}
	}
	return PositionUnspecified, fmt.Errorf("unknown position %q", s)
}

func (p Position) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Position) UnmarshalText(b []byte) error {
	v, err := ParsePosition(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// CaptureMode determines which output is attached and which light
// settings are legal.
type CaptureMode int

const (
	ModePhoto CaptureMode = iota
	ModeVideo
)

func (m CaptureMode) String() string {
	switch m {
	case ModePhoto:
		return "photo"
	case ModeVideo:
		return "video"
	default:
		return "unknown"
	}
}

// ParseCaptureMode converts a config/API string into a CaptureMode.
func ParseCaptureMode(s string) (CaptureMode, error) {
	switch s {
	case "photo":
		return ModePhoto, nil
	case "video":
		return ModeVideo, nil
	default:
		return ModePhoto, fmt.Errorf("unknown capture mode %q", s)
	}
}

func (m CaptureMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *CaptureMode) UnmarshalText(b []byte) error {
	v, err := ParseCaptureMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Output returns the session output that belongs to the mode.
func (m CaptureMode) Output() OutputKind {
	if m == ModeVideo {
		return MovieOutput
	}
	return PhotoOutput
}

// FlashMode is the flash intent applied at shutter time.
type FlashMode int

const (
	FlashOff FlashMode = iota
	FlashOn
	FlashAuto
	FlashNotApplicable
)

var flashNames = [...]string{"off", "on", "auto", "n/a"}

func (f FlashMode) String() string {
	if f < FlashOff || f > FlashNotApplicable {
		return "unknown"
	}
	return flashNames[f]
}

func (f FlashMode) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// TorchMode is the state of the continuous light.
type TorchMode int

const (
	TorchOff TorchMode = iota
	TorchOn
	TorchNotApplicable
)

var torchNames = [...]string{"off", "on", "n/a"}

func (t TorchMode) String() string {
	if t < TorchOff || t > TorchNotApplicable {
		return "unknown"
	}
	return torchNames[t]
}

func (t TorchMode) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// DeviceType distinguishes physical capture devices.
type DeviceType int

const (
	WideAngleCamera DeviceType = iota
	DualCamera
	TelephotoCamera
	Microphone
)

var deviceTypeNames = [...]string{"wide_angle", "dual", "telephoto", "microphone"}

func (d DeviceType) String() string {
	if d < WideAngleCamera || d > Microphone {
		return "unknown"
	}
	return deviceTypeNames[d]
}

func (d DeviceType) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// ParseDeviceType converts a config string into a DeviceType.
func ParseDeviceType(s string) (DeviceType, error) {
	for i, name := range deviceTypeNames {
		if s == name {
			return DeviceType(i), nil
		}
	}
	return WideAngleCamera, fmt.Errorf("unknown device type %q", s)
}

// OutputKind identifies a sink attached to the session.
type OutputKind int

const (
	PhotoOutput OutputKind = iota
	MovieOutput
)

func (o OutputKind) String() string {
	switch o {
	case PhotoOutput:
		return "photo"
	case MovieOutput:
		return "movie"
	default:
		return "unknown"
	}
}

func (o OutputKind) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// ParseOutputKind converts a config string into an OutputKind.
func ParseOutputKind(s string) (OutputKind, error) {
	switch s {
	case "photo":
		return PhotoOutput, nil
	case "movie":
		return MovieOutput, nil
	default:
		return PhotoOutput, fmt.Errorf("unknown output %q", s)
	}
}

// Preset is a quality/format profile applied to the whole session.
type Preset string

const (
	PresetPhoto  Preset = "photo"
	PresetHigh   Preset = "high"
	PresetMedium Preset = "medium"
	PresetLow    Preset = "low"
)

// Valid reports whether p is a known preset.
func (p Preset) Valid() bool {
	switch p {
	case PresetPhoto, PresetHigh, PresetMedium, PresetLow:
		return true
	}
	return false
}

// Device describes a capture device (camera or microphone).
type Device struct {
	ID       string     `json:"id"`
	Position Position   `json:"position"`
	Type     DeviceType `json:"type"`
	HasTorch bool       `json:"has_torch"`
}

// IsAudio reports whether the device captures sound rather than video.
func (d Device) IsAudio() bool {
	return d.Type == Microphone
}
