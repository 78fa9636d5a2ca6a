package capture

import (
	"errors"
	"sync"

	"github.com/cjeanneret/snapcam/internal/debug"
)

var (
	// ErrCancelled resolves a recording stopped together with the session.
	ErrCancelled = errors.New("capture cancelled")
	// ErrSuperseded resolves a photo request replaced by a newer one.
	ErrSuperseded = errors.New("capture superseded by a newer request")
)

// Kind identifies a capture slot.
type Kind int

const (
	KindPhoto Kind = iota
	KindVideo
)

func (k Kind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "photo"
}

// PhotoResult is delivered once per photo request.
type PhotoResult struct {
	ID   string
	Data []byte
	Err  error
}

// VideoResult is delivered once per recording request. Path is set on
// success and on cancellation, so callers can keep or remove the file.
type VideoResult struct {
	ID   string
	Path string
	Err  error
}

type photoSlot struct {
	id string
	ch chan PhotoResult
}

type videoSlot struct {
	id   string
	dest string
	ch   chan VideoResult
}

// Coordinator holds at most one pending request per kind and resolves it
// from backend completions. Register* is called by the session controller
// only; Resolve* is safe from any goroutine.
//
// A completion whose id does not match the pending slot (a duplicate, or
// one for a superseded request) is dropped. The slot is cleared before the
// result is sent, so a consumer that immediately issues a new capture of
// the same kind gets a fresh slot.
type Coordinator struct {
	mu    sync.Mutex
	photo *photoSlot
	video *videoSlot
}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// RegisterPhoto opens the photo slot for id. A request already pending is
// resolved with ErrSuperseded.
func (c *Coordinator) RegisterPhoto(id string) <-chan PhotoResult {
	slot := &photoSlot{id: id, ch: make(chan PhotoResult, 1)}

	c.mu.Lock()
	old := c.photo
	c.photo = slot
	c.mu.Unlock()

	if old != nil {
		debug.Capture("photo", old.id, "superseded by "+id)
		old.ch <- PhotoResult{ID: old.id, Err: ErrSuperseded}
	}
	debug.Capture("photo", id, "pending")
	return slot.ch
}

// ResolvePhoto delivers a photo completion. It reports whether a pending
// request consumed it.
func (c *Coordinator) ResolvePhoto(id string, data []byte, err error) bool {
	c.mu.Lock()
	slot := c.photo
	if slot == nil || slot.id != id {
		c.mu.Unlock()
		debug.Capture("photo", id, "dropped (no pending request)")
		return false
	}
	c.photo = nil
	c.mu.Unlock()

	debug.Capture("photo", id, outcome(err))
	slot.ch <- PhotoResult{ID: id, Data: data, Err: err}
	return true
}

// DropPhoto clears the slot without delivering when the capture could not
// be issued. The caller reports the failure itself.
func (c *Coordinator) DropPhoto(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.photo != nil && c.photo.id == id {
		c.photo = nil
	}
}

// RegisterVideo opens the video slot for a recording to dest. A request
// already pending is resolved with ErrSuperseded.
func (c *Coordinator) RegisterVideo(id, dest string) <-chan VideoResult {
	slot := &videoSlot{id: id, dest: dest, ch: make(chan VideoResult, 1)}

	c.mu.Lock()
	old := c.video
	c.video = slot
	c.mu.Unlock()

	if old != nil {
		old.ch <- VideoResult{ID: old.id, Path: old.dest, Err: ErrSuperseded}
	}
	debug.Capture("video", id, "pending -> "+dest)
	return slot.ch
}

// ResolveVideo delivers a recording completion.
func (c *Coordinator) ResolveVideo(id, path string, err error) bool {
	c.mu.Lock()
	slot := c.video
	if slot == nil || slot.id != id {
		c.mu.Unlock()
		debug.Capture("video", id, "dropped (no pending request)")
		return false
	}
	c.video = nil
	c.mu.Unlock()

	if path == "" {
		path = slot.dest
	}
	debug.Capture("video", id, outcome(err))
	slot.ch <- VideoResult{ID: id, Path: path, Err: err}
	return true
}

// DropVideo clears the slot without delivering.
func (c *Coordinator) DropVideo(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.video != nil && c.video.id == id {
		c.video = nil
	}
}

// CancelVideo resolves the pending recording with ErrCancelled. The
// backend's own completion for it arrives later and is dropped.
func (c *Coordinator) CancelVideo() bool {
	c.mu.Lock()
	slot := c.video
	c.video = nil
	c.mu.Unlock()

	if slot == nil {
		return false
	}
	debug.Capture("video", slot.id, "cancelled")
	slot.ch <- VideoResult{ID: slot.id, Path: slot.dest, Err: ErrCancelled}
	return true
}

// CancelAll resolves every pending request with err.
func (c *Coordinator) CancelAll(err error) {
	c.mu.Lock()
	p, v := c.photo, c.video
	c.photo, c.video = nil, nil
	c.mu.Unlock()

	if p != nil {
		p.ch <- PhotoResult{ID: p.id, Err: err}
	}
	if v != nil {
		v.ch <- VideoResult{ID: v.id, Path: v.dest, Err: err}
	}
}

// Pending returns the id waiting in a slot, if any.
func (c *Coordinator) Pending(k Kind) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch k {
	case KindPhoto:
		if c.photo != nil {
			return c.photo.id, true
		}
	case KindVideo:
		if c.video != nil {
			return c.video.id, true
		}
	}
	return "", false
}

func outcome(err error) string {
	if err != nil {
		return "failed: " + err.Error()
	}
	return "done"
}
