package policy

import (
	"fmt"

	"github.com/cjeanneret/snapcam/internal/hw/camera"
)

// LightsApply reports whether flash/torch make sense at a position.
// Front and unspecified cameras have no usable light.
func LightsApply(pos camera.Position) bool {
	return pos == camera.PositionBack
}

// AllowedFlash returns the flash setting to reset to after a mode or
// position change.
func AllowedFlash(mode camera.CaptureMode, pos camera.Position) camera.FlashMode {
	if !LightsApply(pos) {
		return camera.FlashNotApplicable
	}
	return camera.FlashOff
}

// AllowedTorch returns the torch setting to reset to after a mode or
// position change.
func AllowedTorch(mode camera.CaptureMode, pos camera.Position) camera.TorchMode {
	if !LightsApply(pos) {
		return camera.TorchNotApplicable
	}
	return camera.TorchOff
}

// flashCycle is the toggle order: off -> on -> auto -> off.
var flashCycle = map[camera.FlashMode]camera.FlashMode{
	camera.FlashOff:           camera.FlashOn,
	camera.FlashOn:            camera.FlashAuto,
	camera.FlashAuto:          camera.FlashOff,
	camera.FlashNotApplicable: camera.FlashOff,
}

// torchCycle is the toggle order: off -> on -> off.
var torchCycle = map[camera.TorchMode]camera.TorchMode{
	camera.TorchOff:           camera.TorchOn,
	camera.TorchOn:            camera.TorchOff,
	camera.TorchNotApplicable: camera.TorchOff,
}

// NextFlash returns the flash mode after one toggle.
func NextFlash(f camera.FlashMode) camera.FlashMode {
	next, ok := flashCycle[f]
	if !ok {
		panic(fmt.Sprintf("policy: no flash transition from %d", f))
	}
	return next
}

// NextTorch returns the torch mode after one toggle.
func NextTorch(t camera.TorchMode) camera.TorchMode {
	next, ok := torchCycle[t]
	if !ok {
		panic(fmt.Sprintf("policy: no torch transition from %d", t))
	}
	return next
}

// ShutterFlash maps the recorded intent to what the backend fires with.
func ShutterFlash(f camera.FlashMode) camera.FlashMode {
	if f == camera.FlashNotApplicable {
		return camera.FlashOff
	}
	return f
}
