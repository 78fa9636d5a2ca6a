package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/cjeanneret/snapcam/internal/debug"
	"github.com/cjeanneret/snapcam/internal/hw/camera"
	"github.com/cjeanneret/snapcam/internal/logic/catalog"
	"github.com/cjeanneret/snapcam/internal/logic/policy"
)

// TogglePosition swaps between the back and front cameras.
func (c *Controller) TogglePosition(ctx context.Context) (Settings, error) {
	err := c.do(ctx, func(context.Context) error {
		if _, ok := c.activeDevice(); !ok {
			return opErr(OpPosition, ErrNoActiveInput)
		}
		target, ok := catalog.ToggleTarget(c.Settings().Position)
		if !ok {
			return opErr(OpPosition, ErrUnknownPosition)
		}
		return opErr(OpPosition, c.swapInput(target))
	})
	return c.Settings(), err
}

// SetPosition binds the best camera at target. It is a no-op when the
// active camera is already there.
func (c *Controller) SetPosition(ctx context.Context, target camera.Position) (Settings, error) {
	if target == camera.PositionUnspecified {
		return c.Settings(), opErr(OpPosition, ErrUnknownPosition)
	}
	err := c.do(ctx, func(context.Context) error {
		if _, ok := c.activeDevice(); !ok {
			return opErr(OpPosition, ErrNoActiveInput)
		}
		if c.Settings().Position == target {
			return nil
		}
		return opErr(OpPosition, c.swapInput(target))
	})
	return c.Settings(), err
}

// swapInput replaces the active video input with the device selected for
// target and recomputes the lights. Settings are published once, after the
// backend has accepted the new input. It runs on the worker.
func (c *Controller) swapInput(target camera.Position) error {
	old, ok := c.activeDevice()
	if !ok {
		return ErrNoActiveInput
	}
	lit := c.Settings().Torch == camera.TorchOn

	dev, err := c.bindInput(old, lit, target)
	if err != nil {
		return err
	}

	c.mu.Lock()
	from := c.settings.Position
	c.active = dev
	c.settings.Position = dev.Position
	c.settings.Flash = policy.AllowedFlash(c.settings.Mode, dev.Position)
	c.settings.Torch = policy.AllowedTorch(c.settings.Mode, dev.Position)
	c.mu.Unlock()

	debug.Transition("position", from, dev.Position)
	debug.Verbose("Active input: %s -> %s", old.ID, dev.ID)
	return nil
}

// bindInput swaps old for the device selected for target on the backend
// only. It returns the device that is bound afterwards: old when the swap
// fails or target already resolves to old. A lit torch on old is switched
// off before the swap and lit again if the swap fails.
func (c *Controller) bindInput(old camera.Device, lit bool, target camera.Position) (camera.Device, error) {
	dev, err := c.catalog.Select(target, catalog.PreferredType(target))
	if err != nil {
		return old, ErrNoActiveInput
	}
	if dev.ID == old.ID {
		return old, nil
	}

	if lit {
		c.setDeviceTorch(old, camera.TorchOff)
	}
	c.backend.BeginConfiguration()
	c.backend.RemoveInput(old)
	if err := c.backend.AddInput(dev); err != nil {
		if rerr := c.backend.AddInput(old); rerr != nil {
			debug.Error(fmt.Errorf("restore input %s: %w", old.ID, rerr))
		}
		c.backend.CommitConfiguration()
		if lit && !c.setDeviceTorch(old, camera.TorchOn) {
			c.mu.Lock()
			c.settings.Torch = camera.TorchOff
			c.mu.Unlock()
		}
		return old, fmt.Errorf("%w: %s: %v", ErrDeviceInput, dev.ID, err)
	}
	c.backend.CommitConfiguration()
	return dev, nil
}

// SetCaptureMode switches between photo and video. The camera moves to the
// back position, the old output is replaced by the new one, the lights are
// reset and the preset follows the mode. Any failure rolls the session back
// to exactly what it was before the call. Settings stay at their old values
// until the switch has committed.
func (c *Controller) SetCaptureMode(ctx context.Context, mode camera.CaptureMode) (Settings, error) {
	err := c.do(ctx, func(context.Context) error {
		return opErr(OpMode, c.switchMode(mode))
	})
	return c.Settings(), err
}

func (c *Controller) switchMode(mode camera.CaptureMode) error {
	prev := c.Settings()
	if prev.Mode == mode {
		return nil
	}
	prevDev, ok := c.activeDevice()
	if !ok {
		return &OpError{Op: OpPosition, Err: ErrNoActiveInput}
	}

	oldOut, newOut := prev.Mode.Output(), mode.Output()
	if !c.backend.HasOutput(newOut) && !c.backend.CanAddOutput(newOut) {
		return fmt.Errorf("%w: %s", ErrOutputUnavailable, newOut)
	}

	if c.backend.IsRecording() {
		debug.Info("Mode switch: finishing recording")
		c.backend.StopRecording()
	}

	lit := prev.Torch == camera.TorchOn
	dev := prevDev
	if prev.Position != camera.PositionBack {
		var err error
		if dev, err = c.bindInput(prevDev, lit, camera.PositionBack); err != nil {
			return &OpError{Op: OpPosition, Err: err}
		}
	}
	if lit && dev.ID == prevDev.ID {
		c.setDeviceTorch(dev, camera.TorchOff)
	}

	c.backend.BeginConfiguration()
	removed := c.backend.RemoveOutput(oldOut)
	if !c.backend.HasOutput(newOut) && !c.backend.AddOutput(newOut) {
		if removed {
			c.backend.AddOutput(oldOut)
		}
		c.backend.CommitConfiguration()
		c.restore(prev, prevDev, dev)
		return fmt.Errorf("%w: %s", ErrOutputUnavailable, newOut)
	}
	c.backend.SetPreset(c.opts.presetFor(mode))
	c.backend.CommitConfiguration()

	c.mu.Lock()
	c.active = dev
	c.outputs = map[camera.OutputKind]bool{newOut: true}
	c.settings = Settings{
		Position: dev.Position,
		Flash:    policy.AllowedFlash(mode, dev.Position),
		Torch:    policy.AllowedTorch(mode, dev.Position),
		Mode:     mode,
	}
	c.mu.Unlock()
	c.checkOutputs()

	if dev.ID != prevDev.ID {
		debug.Transition("position", prev.Position, dev.Position)
	}
	debug.Transition("mode", prev.Mode, mode)
	return nil
}

// restore undoes the backend side of a failed mode switch. prevDev replaces
// cur and a torch that was lit is lit again. Published settings only change
// when the backend cannot get back to prev.
func (c *Controller) restore(prev Settings, prevDev, cur camera.Device) {
	dev := prevDev
	if cur.ID != prevDev.ID {
		c.backend.BeginConfiguration()
		c.backend.RemoveInput(cur)
		if err := c.backend.AddInput(prevDev); err != nil {
			debug.Error(fmt.Errorf("rollback input %s: %w", prevDev.ID, err))
			c.backend.AddInput(cur)
			dev = cur
		}
		c.backend.CommitConfiguration()
	}
	relit := prev.Torch != camera.TorchOn || (dev.ID == prevDev.ID && c.setDeviceTorch(dev, camera.TorchOn))

	c.mu.Lock()
	if dev.ID != prevDev.ID {
		c.active = dev
		c.settings.Position = dev.Position
		c.settings.Flash = policy.AllowedFlash(prev.Mode, dev.Position)
		c.settings.Torch = policy.AllowedTorch(prev.Mode, dev.Position)
	} else if !relit {
		c.settings.Torch = camera.TorchOff
	}
	c.mu.Unlock()
	debug.Verbose("Mode switch rolled back to %+v", c.Settings())
}

// setDeviceTorch drives the torch of dev without touching the settings and
// reports whether the backend accepted it.
func (c *Controller) setDeviceTorch(dev camera.Device, mode camera.TorchMode) bool {
	if err := c.backend.SetTorch(dev, mode); err != nil {
		debug.Error(fmt.Errorf("torch %s on %s: %w", mode, dev.ID, err))
		return false
	}
	return true
}

// IsPositionError reports whether err came from a camera position change,
// directly or as the cause of a failed mode switch.
func IsPositionError(err error) bool {
	var op *OpError
	for errors.As(err, &op) {
		if op.Op == OpPosition {
			return true
		}
		err = op.Err
	}
	return false
}
