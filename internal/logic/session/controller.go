package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/cjeanneret/snapcam/internal/debug"
	"github.com/cjeanneret/snapcam/internal/hw/camera"
	"github.com/cjeanneret/snapcam/internal/logic/capture"
	"github.com/cjeanneret/snapcam/internal/logic/catalog"
	"github.com/cjeanneret/snapcam/internal/logic/policy"
)

// Controller owns the capture session configuration. Structural changes
// (start, stop, mode, position, torch, capture requests) run one at a time
// on a single worker goroutine in FIFO order; flash cycling and the
// accessors only take the settings lock.
type Controller struct {
	backend camera.Backend
	catalog *catalog.Catalog
	coord   *capture.Coordinator
	opts    Options

	jobs      chan func()
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	mu        sync.RWMutex
	state     State
	settings  Settings
	active    camera.Device
	hasActive bool
	audio     camera.Device
	hasAudio  bool
	outputs   map[camera.OutputKind]bool
}

// New creates a controller over backend and starts its worker. The session
// stays unconfigured until Start.
func New(backend camera.Backend, opts Options) *Controller {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backend: backend,
		catalog: catalog.New(backend),
		coord:   capture.NewCoordinator(),
		opts:    opts,
		jobs:    make(chan func()),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		outputs: make(map[camera.OutputKind]bool),
		settings: Settings{
			Position: opts.Position,
			Flash:    policy.AllowedFlash(opts.Mode, opts.Position),
			Torch:    policy.AllowedTorch(opts.Mode, opts.Position),
			Mode:     opts.Mode,
		},
	}
	go c.run()
	return c
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case job := <-c.jobs:
			job()
		case <-c.ctx.Done():
			return
		}
	}
}

// do runs fn on the worker and waits for it. If ctx ends first the caller
// gets ctx.Err(); a job already handed to the worker still runs to the end.
func (c *Controller) do(ctx context.Context, fn func(wctx context.Context) error) error {
	errCh := make(chan error, 1)
	job := func() { errCh <- fn(c.ctx) }

	select {
	case c.jobs <- job:
	case <-c.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errCh:
		return err
	case <-c.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears the controller down. A Start waiting for authorization
// returns ErrClosed, pending captures are resolved with ErrClosed and the
// backend session is stopped.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.done

		c.coord.CancelAll(ErrClosed)
		if c.backend.IsRecording() {
			c.backend.StopRecording()
		}
		if c.backend.IsRunning() {
			c.backend.Stop()
		}
		debug.Info("Session controller closed")
	})
	return nil
}

// ---------- accessors ----------

// Settings returns the current settings snapshot.
func (c *Controller) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// State returns the session lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Configuration returns what is currently bound to the session.
func (c *Controller) Configuration() ConfigurationState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cs := ConfigurationState{
		Configured: c.state != StateUnconfigured,
		Running:    c.state == StateRunning,
		Outputs:    []camera.OutputKind{},
	}
	if c.hasActive {
		cs.ActiveInput = c.active.ID
	}
	if c.hasAudio {
		cs.AudioInput = c.audio.ID
	}
	for _, k := range []camera.OutputKind{camera.PhotoOutput, camera.MovieOutput} {
		if c.outputs[k] {
			cs.Outputs = append(cs.Outputs, k)
		}
	}
	return cs
}

// IsRecording reports whether a movie is being written.
func (c *Controller) IsRecording() bool {
	return c.backend.IsRecording()
}

// Devices lists the devices the backend enumerates.
func (c *Controller) Devices() []camera.Device {
	return c.catalog.Devices()
}

func (c *Controller) activeDevice() (camera.Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active, c.hasActive
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	from := c.state
	c.state = s
	c.mu.Unlock()
	if from != s {
		debug.Transition("session", from, s)
	}
}

// ---------- lifecycle ----------

// Start authorizes, configures and runs the session. It is a no-op when
// already running and resumes a stopped session. A refused authorization
// leaves the session unconfigured; the caller decides whether to retry.
func (c *Controller) Start(ctx context.Context) (Settings, error) {
	err := c.do(ctx, func(wctx context.Context) error {
		switch c.State() {
		case StateRunning:
			return nil
		case StateStopped:
			c.backend.Start()
			c.setState(StateRunning)
			return nil
		}

		granted, err := c.backend.Authorize(wctx)
		if wctx.Err() != nil {
			return ErrClosed
		}
		if err != nil {
			return opErr(OpStart, fmt.Errorf("%w: %v", ErrUnauthorized, err))
		}
		if !granted {
			debug.Info("Camera access denied")
			return opErr(OpStart, ErrUnauthorized)
		}

		if err := c.configure(); err != nil {
			return opErr(OpStart, err)
		}
		c.backend.Start()
		c.setState(StateRunning)
		return nil
	})
	return c.Settings(), err
}

// configure binds the default inputs and the output for the current mode.
// On failure everything added so far is removed again.
func (c *Controller) configure() error {
	debug.Section("Session configuration")
	mode := c.Settings().Mode

	video, err := c.initialVideo()
	if err != nil {
		return ErrNoActiveInput
	}

	c.backend.BeginConfiguration()
	defer c.backend.CommitConfiguration()

	c.backend.SetPreset(c.opts.presetFor(mode))
	debug.Step(1, "preset "+string(c.opts.presetFor(mode)))

	var added []camera.Device
	rollback := func() {
		for _, d := range added {
			c.backend.RemoveInput(d)
		}
	}

	mic, micErr := c.catalog.DefaultAudio()
	if micErr == nil {
		if err := c.backend.AddInput(mic); err != nil {
			return fmt.Errorf("%w: audio %s: %v", ErrDeviceInput, mic.ID, err)
		}
		added = append(added, mic)
		debug.Step(2, "audio input "+mic.ID)
	} else {
		debug.Verbose("No microphone enumerated, configuring video only")
	}

	if err := c.backend.AddInput(video); err != nil {
		rollback()
		return fmt.Errorf("%w: %s: %v", ErrDeviceInput, video.ID, err)
	}
	added = append(added, video)
	debug.Step(3, "video input "+video.ID)

	out := mode.Output()
	if !c.backend.HasOutput(out) && !c.backend.AddOutput(out) {
		rollback()
		return fmt.Errorf("%w: %s", ErrOutputUnavailable, out)
	}
	debug.Step(4, "output "+out.String())

	c.mu.Lock()
	c.active, c.hasActive = video, true
	c.audio, c.hasAudio = mic, micErr == nil
	c.outputs = map[camera.OutputKind]bool{out: true}
	c.settings.Position = video.Position
	c.settings.Flash = policy.AllowedFlash(mode, video.Position)
	c.settings.Torch = policy.AllowedTorch(mode, video.Position)
	c.mu.Unlock()
	c.checkOutputs()

	c.setState(StateStopped)
	debug.PrintStruct("Settings", c.Settings())
	return nil
}

// initialVideo picks the camera bound at first configuration.
func (c *Controller) initialVideo() (camera.Device, error) {
	if c.opts.Position != camera.PositionBack {
		pos := c.opts.Position
		if d, err := c.catalog.Select(pos, catalog.PreferredType(pos)); err == nil {
			return d, nil
		}
	}
	return c.catalog.DefaultVideo()
}

// Stop stops a running session. A recording in flight is resolved with
// capture.ErrCancelled before the backend stops writing it; the torch is
// switched off. Stop never fails; it returns early only when ctx ends or the
// controller is closed.
func (c *Controller) Stop(ctx context.Context) {
	err := c.do(ctx, func(context.Context) error {
		if c.State() != StateRunning {
			return nil
		}
		c.coord.CancelVideo()
		if c.backend.IsRecording() {
			c.backend.StopRecording()
		}
		c.torchOff()
		c.backend.Stop()
		c.setState(StateStopped)
		return nil
	})
	if err != nil {
		debug.Verbose("Stop: %v", err)
	}
}

// torchOff switches a lit torch off and resets the torch setting.
func (c *Controller) torchOff() {
	c.mu.RLock()
	lit := c.settings.Torch == camera.TorchOn
	dev := c.active
	c.mu.RUnlock()
	if !lit {
		return
	}
	c.setDeviceTorch(dev, camera.TorchOff)
	c.mu.Lock()
	c.settings.Torch = camera.TorchOff
	c.mu.Unlock()
}

// checkOutputs panics if both outputs are attached or the attached output
// does not belong to the current mode. Every commit must leave this true.
func (c *Controller) checkOutputs() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, on := range c.outputs {
		if on {
			n++
		}
	}
	if n > 1 || (n == 1 && !c.outputs[c.settings.Mode.Output()]) {
		panic(fmt.Sprintf("session: inconsistent outputs %v for mode %s", c.outputs, c.settings.Mode))
	}
}
