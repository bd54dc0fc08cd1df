// Package media provides access to the calming audio assets on local
// storage and validates their WAV headers before playback.
package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Sentinel errors distinguish the playback failure classes: storage
// problems, a missing asset and a malformed asset are logged and
// reported differently.
var (
	ErrStorageUnavailable = errors.New("media storage unavailable")
	ErrNotFound           = errors.New("media asset not found")
	ErrInvalidFormat      = errors.New("media asset is not a valid WAV file")
)

// Asset is an open audio file ready for streaming.
type Asset interface {
	io.ReadCloser
	Name() string
	Size() int64
}

// Store provides access to stored audio assets.
type Store interface {
	// Available reports whether the storage backing the store can be
	// reached at all. The controller checks this once at boot and
	// before each playback attempt.
	Available() error
	// Open opens the named asset for reading.
	Open(name string) (Asset, error)
	// List returns the names of the playable assets, sorted.
	List() ([]string, error)
}

// DirStore serves assets from a directory, typically an SD card or
// USB stick mount point.
type DirStore struct {
	dir string
}

// NewDirStore creates a store rooted at dir. The directory is not
// touched until Available or Open is called.
func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir}
}

// Dir returns the directory the store serves from.
func (s *DirStore) Dir() string {
	return s.dir
}

// Available verifies the media directory exists and is a directory.
func (s *DirStore) Available() error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrStorageUnavailable, s.dir)
	}
	return nil
}

// Open opens the named asset. Names are plain file names; anything
// resembling a path is rejected.
func (s *DirStore) Open(name string) (Asset, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w: invalid asset name %q", ErrNotFound, name)
	}

	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// A missing directory is a storage failure, a missing file
			// inside a healthy directory is just an absent asset.
			if availErr := s.Available(); availErr != nil {
				return nil, availErr
			}
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return &fileAsset{file: f, name: name, size: info.Size()}, nil
}

// List returns the WAV files present in the media directory.
func (s *DirStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".wav") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

type fileAsset struct {
	file *os.File
	name string
	size int64
}

func (a *fileAsset) Read(p []byte) (int, error) { return a.file.Read(p) }
func (a *fileAsset) Close() error               { return a.file.Close() }
func (a *fileAsset) Name() string               { return a.name }
func (a *fileAsset) Size() int64                { return a.size }
