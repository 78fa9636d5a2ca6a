package camera

import (
	"context"
	"errors"
	"fmt"
)

// Backend is the platform capture session used by the rest of the
// application: inputs, outputs, preset, lights and the actual captures.
// It represents an abstract "camera stack", regardless of how it's driven
// (OS media framework, V4L2, a simulator, etc.).
//
// Structural calls (Add/Remove Input/Output, SetPreset) are issued between
// BeginConfiguration and CommitConfiguration by a single caller at a time.
type Backend interface {
	// Devices enumerates the capture devices currently available.
	Devices() []Device

	// Authorize asks for permission to use the devices. It may block until
	// the user answers or ctx is cancelled.
	Authorize(ctx context.Context) (bool, error)

	BeginConfiguration()
	CommitConfiguration()

	// AddInput binds a device to the session. It fails when the device
	// input cannot be constructed or the session refuses it.
	AddInput(d Device) error
	RemoveInput(d Device) bool

	CanAddOutput(k OutputKind) bool
	AddOutput(k OutputKind) bool
	RemoveOutput(k OutputKind) bool
	HasOutput(k OutputKind) bool

	SetPreset(p Preset)

	// SetTorch locks the device for configuration and sets its torch.
	// Lock failures are reported as *DeviceLockError.
	SetTorch(d Device, mode TorchMode) error

	// CapturePhoto fires the shutter. done is called exactly once, from a
	// backend goroutine, with the encoded image or an error.
	CapturePhoto(flash FlashMode, done PhotoDone) error

	// StartRecording writes a movie to dest until StopRecording. done is
	// called exactly once, from a backend goroutine, with the final path.
	StartRecording(dest string, done RecordingDone) error
	StopRecording()
	IsRecording() bool

	IsRunning() bool
	Start()
	Stop()
}

// PhotoDone receives the outcome of CapturePhoto.
type PhotoDone func(data []byte, err error)

// RecordingDone receives the outcome of StartRecording.
type RecordingDone func(path string, err error)

var (
	// ErrInputRejected is returned by AddInput when the session cannot take the input.
	ErrInputRejected = errors.New("session rejected input")
	// ErrNoOutput is returned when a capture is issued without its output attached.
	ErrNoOutput = errors.New("output not attached")
	// ErrNotRunning is returned when a capture is issued on a stopped session.
	ErrNotRunning = errors.New("session not running")
	// ErrRecordingInterrupted is delivered when the session stops mid-recording.
	ErrRecordingInterrupted = errors.New("recording interrupted")
)

// DeviceLockError reports a failure to lock a device for configuration.
type DeviceLockError struct {
	DeviceID string
	Err      error
}

func (e *DeviceLockError) Error() string {
	return fmt.Sprintf("lock device %s: %v", e.DeviceID, e.Err)
}

func (e *DeviceLockError) Unwrap() error { return e.Err }
