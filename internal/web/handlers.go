package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/cjeanneret/snapcam/internal/debug"
	"github.com/cjeanneret/snapcam/internal/hw/camera"
	"github.com/cjeanneret/snapcam/internal/logic/capture"
	"github.com/cjeanneret/snapcam/internal/logic/session"
	"github.com/cjeanneret/snapcam/internal/media"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Controller is the capture session driven by the handlers.
type Controller interface {
	Start(ctx context.Context) (session.Settings, error)
	Stop(ctx context.Context)
	SetCaptureMode(ctx context.Context, mode camera.CaptureMode) (session.Settings, error)
	TogglePosition(ctx context.Context) (session.Settings, error)
	SetPosition(ctx context.Context, target camera.Position) (session.Settings, error)
	ToggleFlash() (camera.FlashMode, error)
	ToggleTorch(ctx context.Context) (camera.TorchMode, error)
	RequestPhotoCapture(ctx context.Context) (session.PhotoTicket, error)
	RequestVideoCapture(ctx context.Context) (session.VideoTicket, error)
	Settings() session.Settings
	State() session.State
	Configuration() session.ConfigurationState
	Devices() []camera.Device
	IsRecording() bool
}

// MediaSink keeps capture results. It may be nil, in which case results
// are only announced on the status stream.
type MediaSink interface {
	StorePhoto(r capture.PhotoResult) (string, error)
	StoreVideo(r capture.VideoResult) (string, error)
	List() ([]media.Item, error)
	Open(name string) (afero.File, error)
}

// Prompter answers a camera access prompt the backend is waiting on.
type Prompter interface {
	Answer(granted bool)
}

// Status is the body of GET /settings and of every session operation.
type Status struct {
	State         session.State              `json:"state"`
	Settings      session.Settings           `json:"settings"`
	Configuration session.ConfigurationState `json:"configuration"`
	Recording     bool                       `json:"recording"`
}

// CaptureEvent is broadcast when a capture result has been handled.
type CaptureEvent struct {
	ID    string `json:"id"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Controller  Controller
	Media       MediaSink
	Prompter    Prompter // nil when the backend never prompts

	deliveries sync.WaitGroup
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(broadcaster *StatusBroadcaster, ctrl Controller, sink MediaSink) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Controller:  ctrl,
		Media:       sink,
	}
}

// Wait blocks until every capture result handed to the handlers has been
// stored and announced.
func (h *Handlers) Wait() {
	h.deliveries.Wait()
}

// ---------- helpers ----------

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps a controller error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrClosed),
		errors.Is(err, session.ErrUnauthorized),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, session.ErrNoActiveInput),
		errors.Is(err, session.ErrUnknownPosition),
		errors.Is(err, session.ErrDeviceInput),
		errors.Is(err, session.ErrOutputUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrNotPhotoMode),
		errors.Is(err, session.ErrNotVideoMode),
		errors.Is(err, session.ErrNotConfigured),
		errors.Is(err, session.ErrFrontPosition),
		errors.Is(err, session.ErrTorchUnsupported),
		errors.Is(err, session.ErrTorchUnspecified),
		errors.Is(err, camera.ErrNotRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	body := map[string]string{"error": err.Error()}
	var op *session.OpError
	if errors.As(err, &op) {
		body["op"] = op.Op
	}
	// A mode switch that failed while moving the camera carries its cause.
	if session.IsPositionError(err) {
		body["cause"] = session.OpPosition
	}
	writeJSON(w, statusFor(err), body)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handlers) status() Status {
	return Status{
		State:         h.Controller.State(),
		Settings:      h.Controller.Settings(),
		Configuration: h.Controller.Configuration(),
		Recording:     h.Controller.IsRecording(),
	}
}

// reply answers a session operation with the fresh status, announcing it
// on the stream when the operation succeeded.
func (h *Handlers) reply(w http.ResponseWriter, what string, err error) {
	if err != nil {
		debug.Verbose("web: %s: %v", what, err)
		writeError(w, err)
		return
	}
	st := h.status()
	h.Broadcaster.BroadcastEvent("info", "settings", what, st)
	writeJSON(w, http.StatusOK, st)
}

// ---------- session ----------

// HandleSettings handles GET /settings.
func (h *Handlers) HandleSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status())
}

// HandleDevices handles GET /devices.
func (h *Handlers) HandleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Controller.Devices())
}

// HandleStart handles POST /session/start. It may block while the user is
// asked for camera access.
func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	_, err := h.Controller.Start(r.Context())
	h.reply(w, "session started", err)
}

// HandleAuthorize handles POST /session/authorize with {"granted":bool},
// the user's answer to the prompt a pending start is waiting on.
func (h *Handlers) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	if h.Prompter == nil {
		http.Error(w, "backend does not prompt for access", http.StatusNotImplemented)
		return
	}
	var body struct {
		Granted bool `json:"granted"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	h.Prompter.Answer(body.Granted)
	debug.Info("Camera access answered: granted=%v", body.Granted)
	w.WriteHeader(http.StatusNoContent)
}

// HandleStop handles POST /session/stop.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.Controller.Stop(r.Context())
	h.reply(w, "session stopped", nil)
}

// HandleMode handles POST /mode with {"mode":"photo|video"}.
func (h *Handlers) HandleMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Mode camera.CaptureMode `json:"mode"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	_, err := h.Controller.SetCaptureMode(r.Context(), body.Mode)
	h.reply(w, "mode "+body.Mode.String(), err)
}

// HandlePosition handles POST /position with {"position":"back|front"}.
func (h *Handlers) HandlePosition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Position camera.Position `json:"position"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	_, err := h.Controller.SetPosition(r.Context(), body.Position)
	h.reply(w, "position "+body.Position.String(), err)
}

// HandleTogglePosition handles POST /position/toggle.
func (h *Handlers) HandleTogglePosition(w http.ResponseWriter, r *http.Request) {
	s, err := h.Controller.TogglePosition(r.Context())
	h.reply(w, "position "+s.Position.String(), err)
}

// HandleToggleFlash handles POST /flash/toggle.
func (h *Handlers) HandleToggleFlash(w http.ResponseWriter, r *http.Request) {
	f, err := h.Controller.ToggleFlash()
	h.reply(w, "flash "+f.String(), err)
}

// HandleToggleTorch handles POST /torch/toggle.
func (h *Handlers) HandleToggleTorch(w http.ResponseWriter, r *http.Request) {
	t, err := h.Controller.ToggleTorch(r.Context())
	h.reply(w, "torch "+t.String(), err)
}

// ---------- captures ----------

// HandleCapturePhoto handles POST /capture/photo. The photo is stored and
// announced on the status stream once the backend delivers it.
func (h *Handlers) HandleCapturePhoto(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.Controller.RequestPhotoCapture(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	h.deliveries.Add(1)
	go func() {
		defer h.deliveries.Done()
		h.deliverPhoto(<-ticket.Result)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"id": ticket.ID, "status": "pending"})
}

func (h *Handlers) deliverPhoto(res capture.PhotoResult) {
	evt := CaptureEvent{ID: res.ID}
	var err error
	if h.Media != nil {
		evt.Path, err = h.Media.StorePhoto(res)
	} else {
		err = res.Err
	}
	if err != nil {
		evt.Error = err.Error()
		h.Broadcaster.BroadcastEvent("error", "photo", "Photo failed: "+err.Error(), evt)
		return
	}
	h.Broadcaster.BroadcastEvent("info", "photo", "Photo saved", evt)
}

// HandleCaptureVideo handles POST /capture/video: it starts a recording,
// or stops the one in progress.
func (h *Handlers) HandleCaptureVideo(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.Controller.RequestVideoCapture(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	if ticket.Action == session.RecordingStopped {
		writeJSON(w, http.StatusOK, ticket)
		return
	}

	h.deliveries.Add(1)
	go func() {
		defer h.deliveries.Done()
		h.deliverVideo(<-ticket.Result)
	}()
	h.Broadcaster.BroadcastEvent("info", "video", "Recording started", CaptureEvent{ID: ticket.ID, Path: ticket.Path})
	writeJSON(w, http.StatusAccepted, ticket)
}

func (h *Handlers) deliverVideo(res capture.VideoResult) {
	evt := CaptureEvent{ID: res.ID, Path: res.Path}
	var err error
	if h.Media != nil {
		evt.Path, err = h.Media.StoreVideo(res)
	} else {
		err = res.Err
	}
	if err != nil {
		evt.Error = err.Error()
		h.Broadcaster.BroadcastEvent("error", "video", "Recording failed: "+err.Error(), evt)
		return
	}
	h.Broadcaster.BroadcastEvent("info", "video", "Recording saved", evt)
}

// ---------- media ----------

// HandleMediaList handles GET /media.
func (h *Handlers) HandleMediaList(w http.ResponseWriter, r *http.Request) {
	if h.Media == nil {
		http.Error(w, "media store not configured", http.StatusServiceUnavailable)
		return
	}
	items, err := h.Media.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// HandleMediaFile handles GET /media/{name}.
func (h *Handlers) HandleMediaFile(w http.ResponseWriter, r *http.Request) {
	if h.Media == nil {
		http.Error(w, "media store not configured", http.StatusServiceUnavailable)
		return
	}
	name := r.PathValue("name")
	f, err := h.Media.Open(name)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	var modTime time.Time
	if fi, err := f.Stat(); err == nil {
		modTime = fi.ModTime()
	}
	http.ServeContent(w, r, name, modTime, f)
}

// ---------- status stream ----------

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()

		case <-ticker.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
