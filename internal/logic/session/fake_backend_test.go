package session

import (
	"context"
	"errors"
	"sync"

	"github.com/cjeanneret/snapcam/internal/hw/camera"
)

// fakeBackend records every call and lets the test decide when captures
// complete.
type fakeBackend struct {
	mu sync.Mutex

	devices   []camera.Device
	authorize func(ctx context.Context) (bool, error)

	inputs      map[string]camera.Device
	outputs     map[camera.OutputKind]bool
	cannotAdd   map[camera.OutputKind]bool // CanAddOutput false
	rejectAdd   map[camera.OutputKind]bool // CanAddOutput true, AddOutput false
	failInputs  map[string]bool
	torchErr    error
	torch       map[string]camera.TorchMode
	preset      camera.Preset
	running     bool
	depth       int
	overlap     bool // a BeginConfiguration nested inside another
	commits     int
	begins      int
	onBegin     func(n int) // runs after the n-th BeginConfiguration, outside mu
	maxOutputs  int // most outputs attached at any commit
	authorizeN  int
	flashes     []camera.FlashMode
	photoDone   []camera.PhotoDone
	recording   bool
	recDest     string
	recDone     camera.RecordingDone
	startedRecs int
}

func defaultDevices() []camera.Device {
	return []camera.Device{
		{ID: "back-dual", Position: camera.PositionBack, Type: camera.DualCamera, HasTorch: true},
		{ID: "back-wide", Position: camera.PositionBack, Type: camera.WideAngleCamera, HasTorch: true},
		{ID: "front-wide", Position: camera.PositionFront, Type: camera.WideAngleCamera},
		{ID: "mic", Position: camera.PositionUnspecified, Type: camera.Microphone},
	}
}

func newFakeBackend(devices ...camera.Device) *fakeBackend {
	if len(devices) == 0 {
		devices = defaultDevices()
	}
	return &fakeBackend{
		devices:    devices,
		inputs:     make(map[string]camera.Device),
		outputs:    make(map[camera.OutputKind]bool),
		cannotAdd:  make(map[camera.OutputKind]bool),
		rejectAdd:  make(map[camera.OutputKind]bool),
		failInputs: make(map[string]bool),
		torch:      make(map[string]camera.TorchMode),
	}
}

func (f *fakeBackend) Devices() []camera.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]camera.Device(nil), f.devices...)
}

func (f *fakeBackend) Authorize(ctx context.Context) (bool, error) {
	f.mu.Lock()
	fn := f.authorize
	f.authorizeN++
	f.mu.Unlock()
	if fn == nil {
		return true, nil
	}
	return fn(ctx)
}

func (f *fakeBackend) BeginConfiguration() {
	f.mu.Lock()
	if f.depth > 0 {
		f.overlap = true
	}
	f.depth++
	f.begins++
	hook, n := f.onBegin, f.begins
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
}

func (f *fakeBackend) CommitConfiguration() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.depth--
	f.commits++
	if n := len(f.outputs); n > f.maxOutputs {
		f.maxOutputs = n
	}
}

func (f *fakeBackend) AddInput(d camera.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInputs[d.ID] {
		return errors.New("device busy")
	}
	if _, ok := f.inputs[d.ID]; ok {
		return camera.ErrInputRejected
	}
	f.inputs[d.ID] = d
	return nil
}

func (f *fakeBackend) RemoveInput(d camera.Device) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.inputs[d.ID]; !ok {
		return false
	}
	delete(f.inputs, d.ID)
	return true
}

func (f *fakeBackend) CanAddOutput(k camera.OutputKind) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.cannotAdd[k] && !f.outputs[k]
}

func (f *fakeBackend) AddOutput(k camera.OutputKind) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cannotAdd[k] || f.rejectAdd[k] || f.outputs[k] {
		return false
	}
	f.outputs[k] = true
	return true
}

func (f *fakeBackend) RemoveOutput(k camera.OutputKind) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.outputs[k] {
		return false
	}
	delete(f.outputs, k)
	return true
}

func (f *fakeBackend) HasOutput(k camera.OutputKind) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outputs[k]
}

func (f *fakeBackend) SetPreset(p camera.Preset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preset = p
}

func (f *fakeBackend) SetTorch(d camera.Device, mode camera.TorchMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.torchErr != nil {
		return f.torchErr
	}
	f.torch[d.ID] = mode
	return nil
}

func (f *fakeBackend) CapturePhoto(flash camera.FlashMode, done camera.PhotoDone) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.outputs[camera.PhotoOutput] {
		return camera.ErrNoOutput
	}
	if !f.running {
		return camera.ErrNotRunning
	}
	f.flashes = append(f.flashes, flash)
	f.photoDone = append(f.photoDone, done)
	return nil
}

// completePhoto delivers the completion of the i-th photo capture from a
// backend goroutine, as a real backend would.
func (f *fakeBackend) completePhoto(i int, data []byte, err error) {
	f.mu.Lock()
	done := f.photoDone[i]
	f.mu.Unlock()
	go done(data, err)
}

func (f *fakeBackend) StartRecording(dest string, done camera.RecordingDone) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.outputs[camera.MovieOutput] {
		return camera.ErrNoOutput
	}
	if !f.running {
		return camera.ErrNotRunning
	}
	f.recording, f.recDest, f.recDone = true, dest, done
	f.startedRecs++
	return nil
}

func (f *fakeBackend) StopRecording() {
	f.mu.Lock()
	if !f.recording {
		f.mu.Unlock()
		return
	}
	f.recording = false
	dest, done := f.recDest, f.recDone
	f.mu.Unlock()
	go done(dest, nil)
}

func (f *fakeBackend) IsRecording() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recording
}

func (f *fakeBackend) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeBackend) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
}

func (f *fakeBackend) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
}

// ---------- inspection helpers ----------

func (f *fakeBackend) inputIDs() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make(map[string]bool, len(f.inputs))
	for id := range f.inputs {
		ids[id] = true
	}
	return ids
}

func (f *fakeBackend) outputCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.outputs)
}

func (f *fakeBackend) hasOutput(k camera.OutputKind) bool {
	return f.HasOutput(k)
}

func (f *fakeBackend) torchOf(id string) camera.TorchMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.torch[id]
}

func (f *fakeBackend) snapshot() (commits, maxOutputs int, overlap bool, preset camera.Preset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits, f.maxOutputs, f.overlap, f.preset
}

func (f *fakeBackend) photoCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.photoDone)
}

func (f *fakeBackend) lastFlash() camera.FlashMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flashes[len(f.flashes)-1]
}
