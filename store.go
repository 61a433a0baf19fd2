package zarr

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
)

const (
	MemoryStoreType    = "MemoryStore"
	LocalStoreType     = "LocalStore"
	dirPermissionBits  = 0755
	filePermissionBits = 0644
)

// ErrNotFound is returned when a key or node doesn't exist in a store
var ErrNotFound = errors.New("not found")

// Store is a key-value view of a zarr hierarchy. Keys are slash-separated
// logical paths like "foo/.zarray" or "foo/0.0"
type Store interface {
	Get(key string) (io.ReadCloser, error)
	// Put stores the contents of val under key. val is read to EOF and left
	// open, closing it is up to the caller
	Put(key string, val io.Reader) error
	// Delete removes key and everything nested beneath it. Deleting a missing
	// key is not an error
	Delete(prefix string) error
	// Keys lists every key in the store in sorted order
	Keys() ([]string, error)
	Type() string
}

type MemoryStore struct {
	lk   sync.Mutex
	data map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: map[string][]byte{},
	}
}

func (s *MemoryStore) Type() string { return MemoryStoreType }

func (s *MemoryStore) Get(key string) (io.ReadCloser, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	d, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(d)), nil
}

func (s *MemoryStore) Put(key string, val io.Reader) error {
	d, err := io.ReadAll(val)
	if err != nil {
		return err
	}

	s.lk.Lock()
	defer s.lk.Unlock()
	s.data[key] = d

	return nil
}

func (s *MemoryStore) Delete(prefix string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	for key := range s.data {
		if hasKeyPrefix(key, prefix) {
			delete(s.data, key)
		}
	}
	return nil
}

func (s *MemoryStore) Keys() ([]string, error) {
	s.lk.Lock()
	defer s.lk.Unlock()
	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// hasKeyPrefix reports whether key is prefix or nested under it. the empty
// prefix is the store root
func hasKeyPrefix(key, prefix string) bool {
	if prefix == "" || key == prefix {
		return true
	}
	return strings.HasPrefix(key, prefix+"/")
}

// LocalStore keeps a hierarchy in a directory, one file per key
type LocalStore struct {
	base string
}

var _ Store = (*LocalStore)(nil)

func NewLocalStore(base string) (*LocalStore, error) {
	base, err := filepath.Abs(base)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(base, dirPermissionBits); err != nil {
		return nil, errors.Wrapf(err, "creating store directory")
	}

	return &LocalStore{
		base: base,
	}, nil
}

// Base is the absolute directory backing the store
func (s *LocalStore) Base() string { return s.base }

func (s *LocalStore) Type() string { return LocalStoreType }

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.base, filepath.FromSlash(key))
}

func (s *LocalStore) Get(key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return f, err
}

// Put writes val through a temp file & rename, so readers never see a
// partially written key
func (s *LocalStore) Put(key string, val io.Reader) error {
	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), dirPermissionBits); err != nil {
		return err
	}
	if err := atomic.WriteFile(path, val); err != nil {
		return errors.Wrapf(err, "writing %q", key)
	}
	// atomic.WriteFile leaves new files with temp file permissions
	return os.Chmod(path, filePermissionBits)
}

func (s *LocalStore) Delete(prefix string) error {
	if prefix == "" {
		entries, err := os.ReadDir(s.base)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(s.base, e.Name())); err != nil {
				return err
			}
		}
		return nil
	}
	return os.RemoveAll(s.path(prefix))
}

func (s *LocalStore) Keys() ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.base, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing keys")
	}
	sort.Strings(keys)
	return keys, nil
}
