package media

import (
	"fmt"

	"github.com/cjeanneret/snapcam/internal/debug"
	"github.com/cjeanneret/snapcam/internal/logic/capture"
)

// StorePhoto persists a delivered photo result. A failed capture is
// returned as is.
func (s *Store) StorePhoto(r capture.PhotoResult) (string, error) {
	if r.Err != nil {
		return "", r.Err
	}
	return s.SavePhoto(r.ID, r.Data)
}

// StoreVideo keeps a finished recording. A recording that failed or was
// cancelled is removed from its temporary location and the capture error
// is returned.
func (s *Store) StoreVideo(r capture.VideoResult) (string, error) {
	if r.Err != nil {
		if err := s.Discard(r.Path); err != nil {
			debug.Error(fmt.Errorf("recording %s: %w", r.ID, err))
		}
		return "", r.Err
	}
	return s.KeepRecording(r.ID, r.Path)
}
