package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/cjeanneret/snapcam/internal/debug"
)

// Kind of a stored item, derived from its file name.
type Kind string

const (
	KindPhoto Kind = "photo"
	KindVideo Kind = "video"
)

const (
	photoPrefix = "IMG_"
	videoPrefix = "MOV_"
	stampLayout = "20060102_150405"
)

// ErrEmptyPhoto is returned when a photo result carries no data.
var ErrEmptyPhoto = errors.New("photo has no data")

// Item describes a file kept in the store.
type Item struct {
	Name    string    `json:"name"`
	Kind    Kind      `json:"kind"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Store keeps delivered photos and finished recordings in one directory.
type Store struct {
	fs  afero.Fs
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// New creates dir on fs if needed.
func New(fs afero.Fs, dir string) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &Store{fs: fs, dir: dir, now: time.Now}, nil
}

// Dir returns the directory media is written to.
func (s *Store) Dir() string { return s.dir }

func (s *Store) name(prefix, id, ext string) string {
	return prefix + s.now().Format(stampLayout) + "_" + id + ext
}

// SavePhoto writes a captured image and returns its path.
func (s *Store) SavePhoto(id string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyPhoto
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, s.name(photoPrefix, id, ".jpg"))
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("write photo: %w", err)
	}
	debug.Verbose("Media: photo %s -> %s (%d bytes)", id, path, len(data))
	return path, nil
}

// KeepRecording moves a finished recording from its temporary location
// into the store and returns the new path.
func (s *Store) KeepRecording(id, src string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dst := filepath.Join(s.dir, s.name(videoPrefix, id, filepath.Ext(src)))
	if err := s.fs.Rename(src, dst); err == nil {
		debug.Verbose("Media: recording %s -> %s", id, dst)
		return dst, nil
	}
	// Rename fails across devices (temp dir on tmpfs); copy instead.
	if err := s.copy(src, dst); err != nil {
		return "", fmt.Errorf("keep recording: %w", err)
	}
	if err := s.fs.Remove(src); err != nil {
		debug.Error(fmt.Errorf("remove %s: %w", src, err))
	}
	debug.Verbose("Media: recording %s copied -> %s", id, dst)
	return dst, nil
}

func (s *Store) copy(src, dst string) error {
	in, err := s.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := s.fs.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Discard removes a recording that will not be kept (cancelled or failed).
// A missing file is not an error.
func (s *Store) Discard(path string) error {
	if path == "" {
		return nil
	}
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discard %s: %w", path, err)
	}
	return nil
}

// List returns the stored items, oldest first.
func (s *Store) List() ([]Item, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	items := make([]Item, 0, len(infos))
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		var kind Kind
		switch {
		case strings.HasPrefix(fi.Name(), photoPrefix):
			kind = KindPhoto
		case strings.HasPrefix(fi.Name(), videoPrefix):
			kind = KindVideo
		default:
			continue
		}
		items = append(items, Item{Name: fi.Name(), Kind: kind, Size: fi.Size(), ModTime: fi.ModTime()})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

// Open returns a reader for a stored item by name.
func (s *Store) Open(name string) (afero.File, error) {
	if name != filepath.Base(name) || name == "." || name == ".." {
		return nil, fmt.Errorf("invalid media name %q", name)
	}
	return s.fs.Open(filepath.Join(s.dir, name))
}
