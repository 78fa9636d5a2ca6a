package lamp

import (
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/snapcam/internal/debug"
	"github.com/cjeanneret/snapcam/internal/hw/gpio"
)

// Config holds the hardware configuration for a lamp.
type Config struct {
	Pin   int           // BCM pin driving the LED. 0 = not wired, every call is a no-op.
	Pulse time.Duration // how long a flash pulse holds the LED HIGH
}

// Lamp drives a single LED used either as a continuous torch or as a
// shutter-synchronised flash. Active HIGH.
type Lamp struct {
	gpio gpio.Driver
	cfg  Config
	mu   sync.Mutex
	lit  bool
}

// New creates a lamp and leaves the LED off. Pin errors are logged; the
// lamp is still returned and later calls report their own errors.
// cfg.Pulse: if 0, defaults to 80ms.
func New(g gpio.Driver, cfg Config) *Lamp {
	if cfg.Pulse <= 0 {
		cfg.Pulse = 80 * time.Millisecond
	}
	l := &Lamp{gpio: g, cfg: cfg}
	if cfg.Pin > 0 {
		if err := g.SetupPin(cfg.Pin, gpio.Output); err != nil {
			debug.Error(fmt.Errorf("lamp pin %d setup: %w", cfg.Pin, err))
		}
		if err := g.WritePin(cfg.Pin, gpio.Low); err != nil {
			debug.Error(fmt.Errorf("lamp pin %d reset: %w", cfg.Pin, err))
		}
	}
	return l
}

// Wired reports whether the lamp is connected to a pin.
func (l *Lamp) Wired() bool {
	return l.cfg.Pin > 0
}

// On lights the LED until Off is called.
func (l *Lamp) On() error {
	return l.set(true)
}

// Off turns the LED off.
func (l *Lamp) Off() error {
	return l.set(false)
}

// IsOn reports the last level written.
func (l *Lamp) IsOn() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lit
}

// Pulse fires the LED for cfg.Pulse and restores the previous state.
func (l *Lamp) Pulse() error {
	if !l.Wired() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	debug.Verbose("Lamp: pulse on pin %d (%v)", l.cfg.Pin, l.cfg.Pulse)
	if err := l.gpio.WritePin(l.cfg.Pin, gpio.High); err != nil {
		return err
	}
	time.Sleep(l.cfg.Pulse)
	if l.lit {
		return nil
	}
	return l.gpio.WritePin(l.cfg.Pin, gpio.Low)
}

func (l *Lamp) set(on bool) error {
	if !l.Wired() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	level := gpio.Low
	if on {
		level = gpio.High
	}
	if err := l.gpio.WritePin(l.cfg.Pin, level); err != nil {
		return err
	}
	l.lit = on
	return nil
}
