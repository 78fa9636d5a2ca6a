package catalog

import (
	"errors"

	"github.com/cjeanneret/snapcam/internal/debug"
	"github.com/cjeanneret/snapcam/internal/hw/camera"
)

// ErrNoDevice is returned when no device matches a lookup.
var ErrNoDevice = errors.New("no matching capture device")

// Source enumerates devices; camera.Backend satisfies it.
type Source interface {
	Devices() []camera.Device
}

// Catalog answers device lookups by position and type. It keeps no state:
// every call re-enumerates the source, so hot-plugged devices show up.
type Catalog struct {
	src Source
}

func New(src Source) *Catalog {
	return &Catalog{src: src}
}

// Devices returns every device the source reports.
func (c *Catalog) Devices() []camera.Device {
	return c.src.Devices()
}

// Video returns the cameras at a position, in enumeration order.
func (c *Catalog) Video(pos camera.Position) []camera.Device {
	var out []camera.Device
	for _, d := range c.src.Devices() {
		if !d.IsAudio() && d.Position == pos {
			out = append(out, d)
		}
	}
	return out
}

// Select picks the camera for a position: an exact match on
// (position, preferred type) first, then the first camera at that position.
func (c *Catalog) Select(pos camera.Position, preferred camera.DeviceType) (camera.Device, error) {
	candidates := c.Video(pos)
	for _, d := range candidates {
		if d.Type == preferred {
			debug.Verbose("Catalog: %s matches (%s, %s)", d.ID, pos, preferred)
			return d, nil
		}
	}
	if len(candidates) > 0 {
		debug.Verbose("Catalog: no %s at %s, falling back to %s", preferred, pos, candidates[0].ID)
		return candidates[0], nil
	}
	return camera.Device{}, ErrNoDevice
}

// DefaultVideo returns the camera bound at first configuration: the
// preferred back camera if any, otherwise the first camera enumerated.
func (c *Catalog) DefaultVideo() (camera.Device, error) {
	if d, err := c.Select(camera.PositionBack, PreferredType(camera.PositionBack)); err == nil {
		return d, nil
	}
	for _, d := range c.src.Devices() {
		if !d.IsAudio() {
			return d, nil
		}
	}
	return camera.Device{}, ErrNoDevice
}

// DefaultAudio returns the first microphone.
func (c *Catalog) DefaultAudio() (camera.Device, error) {
	for _, d := range c.src.Devices() {
		if d.IsAudio() {
			return d, nil
		}
	}
	return camera.Device{}, ErrNoDevice
}

// PreferredType is the device type tried first for a position.
func PreferredType(pos camera.Position) camera.DeviceType {
	if pos == camera.PositionBack {
		return camera.DualCamera
	}
	return camera.WideAngleCamera
}

// ToggleTarget returns the opposite position. Toggling alternates strictly
// between back and front; unspecified has no target.
func ToggleTarget(current camera.Position) (camera.Position, bool) {
	switch current {
	case camera.PositionBack:
		return camera.PositionFront, true
	case camera.PositionFront:
		return camera.PositionBack, true
	default:
		return camera.PositionUnspecified, false
	}
}
