package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/cjeanneret/snapcam/internal/debug"
	"github.com/cjeanneret/snapcam/internal/hw/camera"
	"github.com/cjeanneret/snapcam/internal/logic/policy"
)

// ToggleFlash cycles the flash intent off -> on -> auto. It only records
// the setting; the flash fires at capture time.
func (c *Controller) ToggleFlash() (camera.FlashMode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.settings.Mode != camera.ModePhoto {
		return c.settings.Flash, opErr(OpFlash, ErrNotPhotoMode)
	}
	if !c.hasActive {
		return c.settings.Flash, opErr(OpFlash, ErrNoActiveInput)
	}
	if !policy.LightsApply(c.settings.Position) {
		return c.settings.Flash, opErr(OpFlash, ErrFrontPosition)
	}

	from := c.settings.Flash
	c.settings.Flash = policy.NextFlash(from)
	debug.Transition("flash", from, c.settings.Flash)
	return c.settings.Flash, nil
}

// ToggleTorch cycles the torch off -> on on the active device. The device
// is switched immediately.
func (c *Controller) ToggleTorch(ctx context.Context) (camera.TorchMode, error) {
	err := c.do(ctx, func(context.Context) error {
		s := c.Settings()
		if s.Mode != camera.ModeVideo {
			return opErr(OpTorch, ErrNotVideoMode)
		}
		dev, ok := c.activeDevice()
		if !ok {
			return opErr(OpTorch, ErrNoActiveInput)
		}
		if !dev.HasTorch {
			return opErr(OpTorch, ErrTorchUnsupported)
		}
		if s.Torch == camera.TorchNotApplicable {
			return opErr(OpTorch, ErrTorchUnspecified)
		}

		next := policy.NextTorch(s.Torch)
		if err := c.backend.SetTorch(dev, next); err != nil {
			var lockErr *camera.DeviceLockError
			if errors.As(err, &lockErr) {
				debug.Verbose("Torch lock failed on %s", lockErr.DeviceID)
			}
			return opErr(OpTorch, fmt.Errorf("%w: %w", ErrTorchUnspecified, err))
		}

		c.mu.Lock()
		c.settings.Torch = next
		c.mu.Unlock()
		debug.Transition("torch", s.Torch, next)
		return nil
	})
	return c.Settings().Torch, err
}
