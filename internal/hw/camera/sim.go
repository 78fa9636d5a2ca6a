package camera

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/cjeanneret/snapcam/internal/debug"
	"github.com/cjeanneret/snapcam/internal/hw/lamp"
)

// AuthorizeMode selects how the simulator answers Authorize.
type AuthorizeMode int

const (
	AuthorizeGranted AuthorizeMode = iota
	AuthorizeDenied
	AuthorizePrompt // block until Answer is called
)

// ParseAuthorizeMode converts a config string into an AuthorizeMode.
func ParseAuthorizeMode(s string) (AuthorizeMode, error) {
	switch s {
	case "", "granted":
		return AuthorizeGranted, nil
	case "denied":
		return AuthorizeDenied, nil
	case "prompt":
		return AuthorizePrompt, nil
	default:
		return AuthorizeGranted, fmt.Errorf("unknown authorize mode %q", s)
	}
}

// SimConfig configures the simulated backend.
type SimConfig struct {
	Devices      []Device
	Authorize    AuthorizeMode
	PhotoLatency time.Duration // delay before a photo completion is delivered
	FailOutputs  []OutputKind  // outputs the session refuses to add
	Torch        *lamp.Lamp    // optional, lit while a torch is on
	Flash        *lamp.Lamp    // optional, pulsed when the flash fires
	Fs           afero.Fs      // where recordings are written; nil = OS filesystem
}

// recordingHeader is written at the start of every simulated movie file.
const recordingHeader = "SNAPCAM-SIM-MOVIE\n"

type simRecording struct {
	dest    string
	file    afero.File
	done    RecordingDone
	started time.Time
}

// Sim is an in-memory Backend. Inputs, outputs and preset are plain
// bookkeeping; photos are small generated JPEGs delivered after
// PhotoLatency; recordings are placeholder files on cfg.Fs. Torch and
// flash drive the optional GPIO lamps, so the simulator doubles as a
// bench rig on a Raspberry Pi.
type Sim struct {
	cfg SimConfig

	mu        sync.Mutex
	inputs    map[string]Device
	outputs   map[OutputKind]bool
	preset    Preset
	running   bool
	depth     int // BeginConfiguration nesting
	commits   int
	torch     map[string]TorchMode
	recording *simRecording
	answers   chan bool

	wg sync.WaitGroup
}

// NewSim creates a simulated backend.
func NewSim(cfg SimConfig) *Sim {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	return &Sim{
		cfg:     cfg,
		inputs:  make(map[string]Device),
		outputs: make(map[OutputKind]bool),
		torch:   make(map[string]TorchMode),
		answers: make(chan bool, 1),
	}
}

func (s *Sim) Devices() []Device {
	out := make([]Device, len(s.cfg.Devices))
	copy(out, s.cfg.Devices)
	return out
}

func (s *Sim) Authorize(ctx context.Context) (bool, error) {
	switch s.cfg.Authorize {
	case AuthorizeGranted:
		return true, nil
	case AuthorizeDenied:
		return false, nil
	}
	debug.Backend("Authorize", "waiting for answer")
	select {
	case ok := <-s.answers:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Answer responds to a pending (or the next) authorization prompt.
func (s *Sim) Answer(granted bool) {
	select {
	case s.answers <- granted:
	default:
	}
}

func (s *Sim) BeginConfiguration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depth++
	debug.Backend("BeginConfiguration", s.depth)
}

func (s *Sim) CommitConfiguration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.depth > 0 {
		s.depth--
	}
	s.commits++
	debug.Backend("CommitConfiguration", s.depth)
}

func (s *Sim) AddInput(d Device) error {
	if !s.known(d) {
		return fmt.Errorf("device %s not available", d.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inputs[d.ID]; ok {
		return ErrInputRejected
	}
	if !d.IsAudio() {
		for _, in := range s.inputs {
			if !in.IsAudio() {
				return ErrInputRejected
			}
		}
	}
	s.inputs[d.ID] = d
	debug.Backend("AddInput", d.ID)
	return nil
}

func (s *Sim) known(d Device) bool {
	for _, c := range s.cfg.Devices {
		if c.ID == d.ID {
			return true
		}
	}
	return false
}

func (s *Sim) RemoveInput(d Device) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inputs[d.ID]; !ok {
		return false
	}
	delete(s.inputs, d.ID)
	if s.torch[d.ID] == TorchOn {
		s.torch[d.ID] = TorchOff
		s.light(s.cfg.Torch, false)
	}
	debug.Backend("RemoveInput", d.ID)
	return true
}

func (s *Sim) CanAddOutput(k OutputKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canAddOutput(k)
}

func (s *Sim) canAddOutput(k OutputKind) bool {
	for _, f := range s.cfg.FailOutputs {
		if f == k {
			return false
		}
	}
	return !s.outputs[k]
}

func (s *Sim) AddOutput(k OutputKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.canAddOutput(k) {
		return false
	}
	s.outputs[k] = true
	debug.Backend("AddOutput", k)
	return true
}

func (s *Sim) RemoveOutput(k OutputKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.outputs[k] {
		return false
	}
	delete(s.outputs, k)
	debug.Backend("RemoveOutput", k)
	return true
}

func (s *Sim) HasOutput(k OutputKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputs[k]
}

// Outputs returns the attached outputs.
func (s *Sim) Outputs() []OutputKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OutputKind
	for _, k := range []OutputKind{PhotoOutput, MovieOutput} {
		if s.outputs[k] {
			out = append(out, k)
		}
	}
	return out
}

// Inputs returns the bound devices.
func (s *Sim) Inputs() []Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Device, 0, len(s.inputs))
	for _, d := range s.inputs {
		out = append(out, d)
	}
	return out
}

func (s *Sim) SetPreset(p Preset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preset = p
	debug.Backend("SetPreset", p)
}

// Preset returns the session preset.
func (s *Sim) Preset() Preset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preset
}

func (s *Sim) SetTorch(d Device, mode TorchMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !d.HasTorch {
		return &DeviceLockError{DeviceID: d.ID, Err: errors.New("no torch")}
	}
	if _, ok := s.inputs[d.ID]; !ok {
		return &DeviceLockError{DeviceID: d.ID, Err: errors.New("device not bound")}
	}
	s.torch[d.ID] = mode
	s.light(s.cfg.Torch, mode == TorchOn)
	debug.Backend("SetTorch", d.ID, " ", mode)
	return nil
}

// Torch returns the torch state recorded for a device.
func (s *Sim) Torch(deviceID string) TorchMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.torch[deviceID]
}

func (s *Sim) light(l *lamp.Lamp, on bool) {
	if l == nil {
		return
	}
	var err error
	if on {
		err = l.On()
	} else {
		err = l.Off()
	}
	if err != nil {
		debug.Error(fmt.Errorf("torch lamp: %w", err))
	}
}

func (s *Sim) CapturePhoto(flash FlashMode, done PhotoDone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.outputs[PhotoOutput] {
		return ErrNoOutput
	}
	if !s.running {
		return ErrNotRunning
	}
	debug.Backend("CapturePhoto", flash)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		time.Sleep(s.cfg.PhotoLatency)
		if (flash == FlashOn || flash == FlashAuto) && s.cfg.Flash != nil {
			if err := s.cfg.Flash.Pulse(); err != nil {
				done(nil, fmt.Errorf("fire flash: %w", err))
				return
			}
		}
		data, err := encodeFrame(flash)
		done(data, err)
	}()
	return nil
}

// encodeFrame produces a small grey JPEG; brighter when the flash fired.
func encodeFrame(flash FlashMode) ([]byte, error) {
	img := image.NewGray(image.Rect(0, 0, 64, 48))
	shade := uint8(96)
	if flash == FlashOn || flash == FlashAuto {
		shade = 200
	}
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	img.SetGray(0, 0, color.Gray{Y: 255})

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Sim) StartRecording(dest string, done RecordingDone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.outputs[MovieOutput] {
		return ErrNoOutput
	}
	if !s.running {
		return ErrNotRunning
	}
	if s.recording != nil {
		return fmt.Errorf("already recording to %s", s.recording.dest)
	}

	if err := s.cfg.Fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create recording dir: %w", err)
	}
	f, err := s.cfg.Fs.Create(dest)
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}
	if _, err := f.WriteString(recordingHeader); err != nil {
		_ = f.Close()
		return fmt.Errorf("write recording: %w", err)
	}
	s.recording = &simRecording{dest: dest, file: f, done: done, started: time.Now()}
	debug.Backend("StartRecording", dest)
	return nil
}

func (s *Sim) StopRecording() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishRecording(nil)
}

// finishRecording closes the active movie and delivers its completion
// asynchronously. Callers hold s.mu.
func (s *Sim) finishRecording(cause error) {
	rec := s.recording
	if rec == nil {
		return
	}
	s.recording = nil
	debug.Backend("StopRecording", rec.dest)

	_, werr := fmt.Fprintf(rec.file, "duration=%s\n", time.Since(rec.started).Round(time.Millisecond))
	cerr := rec.file.Close()
	err := cause
	if err == nil {
		err = errors.Join(werr, cerr)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err != nil {
			rec.done("", err)
			return
		}
		rec.done(rec.dest, nil)
	}()
}

func (s *Sim) IsRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording != nil
}

func (s *Sim) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sim) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	debug.Backend("Start")
}

func (s *Sim) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishRecording(ErrRecordingInterrupted)
	s.running = false
	debug.Backend("Stop")
}

// Wait blocks until every pending completion has been delivered.
func (s *Sim) Wait() {
	s.wg.Wait()
}
