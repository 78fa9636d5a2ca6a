package capture

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func recvPhoto(t *testing.T, ch <-chan PhotoResult) PhotoResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for photo result")
	}
	return PhotoResult{}
}

func assertNoPhoto(t *testing.T, ch <-chan PhotoResult) {
	t.Helper()
	select {
	case r := <-ch:
		t.Fatalf("unexpected second photo result: %+v", r)
	default:
	}
}

// ---------- Photo ----------

func TestResolvePhoto_Delivers(t *testing.T) {
	c := NewCoordinator()
	ch := c.RegisterPhoto("p1")

	if !c.ResolvePhoto("p1", []byte("jpeg"), nil) {
		t.Fatal("ResolvePhoto should consume the pending request")
	}
	r := recvPhoto(t, ch)
	if r.ID != "p1" || string(r.Data) != "jpeg" || r.Err != nil {
		t.Errorf("result = %+v", r)
	}
	if _, ok := c.Pending(KindPhoto); ok {
		t.Error("slot should be empty after resolution")
	}
}

func TestResolvePhoto_DuplicateDropped(t *testing.T) {
	c := NewCoordinator()
	ch := c.RegisterPhoto("p1")
	c.ResolvePhoto("p1", []byte("a"), nil)

	if c.ResolvePhoto("p1", []byte("b"), nil) {
		t.Error("duplicate completion must be dropped")
	}
	_ = recvPhoto(t, ch)
	assertNoPhoto(t, ch)
}

func TestResolvePhoto_NoPendingDropped(t *testing.T) {
	c := NewCoordinator()
	if c.ResolvePhoto("ghost", nil, nil) {
		t.Error("completion without pending request must be dropped")
	}
}

func TestRegisterPhoto_Supersedes(t *testing.T) {
	c := NewCoordinator()
	first := c.RegisterPhoto("p1")
	second := c.RegisterPhoto("p2")

	r1 := recvPhoto(t, first)
	if !errors.Is(r1.Err, ErrSuperseded) {
		t.Errorf("first request: err = %v, want ErrSuperseded", r1.Err)
	}

	// Completion of the first capture arrives late and must not reach p2
	if c.ResolvePhoto("p1", []byte("old"), nil) {
		t.Error("stale completion should be dropped")
	}
	if !c.ResolvePhoto("p2", []byte("new"), nil) {
		t.Fatal("second completion should be consumed")
	}
	r2 := recvPhoto(t, second)
	if string(r2.Data) != "new" {
		t.Errorf("second request got %q, want \"new\"", r2.Data)
	}
	assertNoPhoto(t, first)
	assertNoPhoto(t, second)
}

func TestResolvePhoto_SlotClearedBeforeDelivery(t *testing.T) {
	c := NewCoordinator()
	ch := c.RegisterPhoto("p1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ch
		// Re-entering consumer issues a new capture of the same kind
		next := c.RegisterPhoto("p2")
		c.ResolvePhoto("p2", []byte("second"), nil)
		if r := <-next; r.Err != nil || string(r.Data) != "second" {
			t.Errorf("re-entrant request got %+v", r)
		}
	}()

	c.ResolvePhoto("p1", []byte("first"), nil)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("re-entrant consumer did not finish")
	}
}

func TestDropPhoto(t *testing.T) {
	c := NewCoordinator()
	c.RegisterPhoto("p1")
	c.DropPhoto("other")
	if id, ok := c.Pending(KindPhoto); !ok || id != "p1" {
		t.Errorf("DropPhoto with another id must keep the slot, got %q %v", id, ok)
	}
	c.DropPhoto("p1")
	if _, ok := c.Pending(KindPhoto); ok {
		t.Error("DropPhoto should clear the slot")
	}
}

func TestResolvePhoto_ConcurrentDuplicates(t *testing.T) {
	c := NewCoordinator()
	ch := c.RegisterPhoto("p1")

	var wg sync.WaitGroup
	var mu sync.Mutex
	consumed := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.ResolvePhoto("p1", nil, nil) {
				mu.Lock()
				consumed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if consumed != 1 {
		t.Errorf("consumed = %d, want exactly 1", consumed)
	}
	_ = recvPhoto(t, ch)
	assertNoPhoto(t, ch)
}

// ---------- Video ----------

func TestResolveVideo_UsesDestWhenPathEmpty(t *testing.T) {
	c := NewCoordinator()
	ch := c.RegisterVideo("v1", "/tmp/v1.mp4")
	if !c.ResolveVideo("v1", "", errors.New("disk full")) {
		t.Fatal("ResolveVideo should consume")
	}
	r := <-ch
	if r.Path != "/tmp/v1.mp4" || r.Err == nil {
		t.Errorf("result = %+v", r)
	}
}

func TestCancelVideo(t *testing.T) {
	c := NewCoordinator()
	ch := c.RegisterVideo("v1", "/tmp/v1.mp4")

	if !c.CancelVideo() {
		t.Fatal("CancelVideo should resolve the pending recording")
	}
	r := <-ch
	if !errors.Is(r.Err, ErrCancelled) || r.Path != "/tmp/v1.mp4" {
		t.Errorf("result = %+v", r)
	}
	if c.ResolveVideo("v1", "/tmp/v1.mp4", nil) {
		t.Error("backend completion after cancel must be dropped")
	}
	if c.CancelVideo() {
		t.Error("second CancelVideo should be a no-op")
	}
}

func TestDropVideo(t *testing.T) {
	c := NewCoordinator()
	c.RegisterVideo("v1", "/tmp/v1.mp4")
	c.DropVideo("v1")
	if _, ok := c.Pending(KindVideo); ok {
		t.Error("DropVideo should clear the slot")
	}
}

func TestCancelAll(t *testing.T) {
	c := NewCoordinator()
	p := c.RegisterPhoto("p1")
	v := c.RegisterVideo("v1", "/tmp/v1.mp4")
	closed := errors.New("closed")

	c.CancelAll(closed)

	if r := recvPhoto(t, p); !errors.Is(r.Err, closed) {
		t.Errorf("photo err = %v", r.Err)
	}
	if r := <-v; !errors.Is(r.Err, closed) {
		t.Errorf("video err = %v", r.Err)
	}
	if _, ok := c.Pending(KindPhoto); ok {
		t.Error("photo slot should be empty")
	}
	if _, ok := c.Pending(KindVideo); ok {
		t.Error("video slot should be empty")
	}
}

func TestKind_String(t *testing.T) {
	if KindPhoto.String() != "photo" || KindVideo.String() != "video" {
		t.Errorf("unexpected kind names %q %q", KindPhoto, KindVideo)
	}
}
