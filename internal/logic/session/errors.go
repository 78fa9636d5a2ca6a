package session

import "errors"

// Position errors
var (
	ErrNoActiveInput   = errors.New("no active input")
	ErrUnknownPosition = errors.New("unknown camera position")
	ErrDeviceInput     = errors.New("device input error")
)

// Flash errors (ErrNoActiveInput is shared)
var (
	ErrNotPhotoMode  = errors.New("not in photo mode")
	ErrFrontPosition = errors.New("flash unavailable at this camera position")
)

// Torch errors (ErrNoActiveInput is shared)
var (
	ErrNotVideoMode     = errors.New("not in video mode")
	ErrTorchUnsupported = errors.New("torch not supported by device")
	ErrTorchUnspecified = errors.New("torch unavailable")
)

// Mode and lifecycle errors
var (
	ErrOutputUnavailable = errors.New("output unavailable")
	ErrUnauthorized      = errors.New("camera access not authorized")
	ErrNotConfigured     = errors.New("session not configured")
	ErrClosed            = errors.New("controller closed")
)

// Operation families reported in OpError.Op.
const (
	OpStart    = "start"
	OpPosition = "position"
	OpFlash    = "flash"
	OpTorch    = "torch"
	OpMode     = "mode"
	OpCapture  = "capture"
)

// OpError classifies a failure by the operation family that produced it.
// Mode errors wrap a position OpError when the switch to the back camera
// failed. Use errors.Is for the leaf and errors.As for the family.
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }

func opErr(op string, err error) error {
	if err == nil || errors.Is(err, ErrClosed) {
		return err
	}
	return &OpError{Op: op, Err: err}
}
