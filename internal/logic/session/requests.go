package session

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/xid"

	"github.com/cjeanneret/snapcam/internal/debug"
	"github.com/cjeanneret/snapcam/internal/hw/camera"
	"github.com/cjeanneret/snapcam/internal/logic/capture"
	"github.com/cjeanneret/snapcam/internal/logic/policy"
)

// VideoAction tells what a video request did.
type VideoAction int

const (
	RecordingStarted VideoAction = iota
	RecordingStopped
)

func (a VideoAction) String() string {
	if a == RecordingStopped {
		return "stopped"
	}
	return "started"
}

func (a VideoAction) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// VideoTicket describes the outcome of RequestVideoCapture. Result is set
// only when a recording was started; a stop reports the id of the
// recording it ended, whose own channel receives the path.
type VideoTicket struct {
	Action VideoAction                `json:"action"`
	ID     string                     `json:"id"`
	Path   string                     `json:"path,omitempty"`
	Result <-chan capture.VideoResult `json:"-"`
}

// PhotoTicket identifies a registered photo request.
type PhotoTicket struct {
	ID     string                     `json:"id"`
	Result <-chan capture.PhotoResult `json:"-"`
}

// RequestPhotoCapture fires the shutter with the current flash setting.
// It returns once the request is registered; the image arrives on
// Result. A request still pending is superseded. Outside photo mode it
// fails with ErrNotPhotoMode and the backend is not touched.
func (c *Controller) RequestPhotoCapture(ctx context.Context) (PhotoTicket, error) {
	var ticket PhotoTicket
	err := c.do(ctx, func(context.Context) error {
		if c.State() == StateUnconfigured {
			return opErr(OpCapture, ErrNotConfigured)
		}
		s := c.Settings()
		if s.Mode != camera.ModePhoto {
			return opErr(OpCapture, ErrNotPhotoMode)
		}

		id := xid.New().String()
		pending := c.coord.RegisterPhoto(id)
		done := func(data []byte, err error) {
			c.coord.ResolvePhoto(id, data, err)
		}
		if err := c.backend.CapturePhoto(policy.ShutterFlash(s.Flash), done); err != nil {
			c.coord.DropPhoto(id)
			return opErr(OpCapture, fmt.Errorf("capture photo: %w", err))
		}
		debug.Capture("photo", id, "issued (flash "+s.Flash.String()+")")
		ticket = PhotoTicket{ID: id, Result: pending}
		return nil
	})
	return ticket, err
}

// RequestVideoCapture starts a recording to a fresh file under the temp
// directory, or stops the recording in progress. Outside video mode it
// fails with ErrNotVideoMode and the backend is not touched.
func (c *Controller) RequestVideoCapture(ctx context.Context) (VideoTicket, error) {
	var ticket VideoTicket
	err := c.do(ctx, func(context.Context) error {
		if c.State() == StateUnconfigured {
			return opErr(OpCapture, ErrNotConfigured)
		}
		if c.Settings().Mode != camera.ModeVideo {
			return opErr(OpCapture, ErrNotVideoMode)
		}

		if c.backend.IsRecording() {
			id, _ := c.coord.Pending(capture.KindVideo)
			c.backend.StopRecording()
			ticket = VideoTicket{Action: RecordingStopped, ID: id}
			debug.Capture("video", id, "stop requested")
			return nil
		}

		id := xid.New().String()
		dest := filepath.Join(c.opts.TempDir, uuid.NewString()+".mp4")
		pending := c.coord.RegisterVideo(id, dest)
		done := func(path string, err error) {
			c.coord.ResolveVideo(id, path, err)
		}
		if err := c.backend.StartRecording(dest, done); err != nil {
			c.coord.DropVideo(id)
			return opErr(OpCapture, fmt.Errorf("start recording: %w", err))
		}
		ticket = VideoTicket{Action: RecordingStarted, ID: id, Path: dest, Result: pending}
		return nil
	})
	return ticket, err
}

// StopRecording ends the recording in progress. It reports whether one
// was running.
func (c *Controller) StopRecording(ctx context.Context) (bool, error) {
	var stopped bool
	err := c.do(ctx, func(context.Context) error {
		if !c.backend.IsRecording() {
			return nil
		}
		c.backend.StopRecording()
		stopped = true
		return nil
	})
	return stopped, err
}
