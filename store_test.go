package zarr

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStores(t *testing.T) map[string]Store {
	local, err := NewLocalStore(filepath.Join(t.TempDir(), "store.zarr"))
	require.NoError(t, err)
	return map[string]Store{
		MemoryStoreType: NewMemoryStore(),
		LocalStoreType:  local,
	}
}

func TestStores(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, name, s.Type())

			_, err := s.Get("missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(".zgroup", strings.NewReader(`{"zarr_format": 2}`)))
			require.NoError(t, s.Put("a/.zarray", strings.NewReader("{}")))
			require.NoError(t, s.Put("a/0", strings.NewReader("chunk")))
			require.NoError(t, s.Put("ab/0", strings.NewReader("other")))
			require.NoError(t, s.Put("a/0", strings.NewReader("replaced")))

			f, err := s.Get("a/0")
			require.NoError(t, err)
			d, err := io.ReadAll(f)
			require.NoError(t, err)
			require.NoError(t, f.Close())
			assert.Equal(t, "replaced", string(d))

			keys, err := s.Keys()
			require.NoError(t, err)
			assert.Equal(t, []string{".zgroup", "a/.zarray", "a/0", "ab/0"}, keys)

			require.NoError(t, s.Delete("a"))
			keys, err = s.Keys()
			require.NoError(t, err)
			assert.Equal(t, []string{".zgroup", "ab/0"}, keys)

			require.NoError(t, s.Delete("not/there"))

			require.NoError(t, s.Delete(""))
			keys, err = s.Keys()
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestPutLeavesReaderOpen(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			val := &closeTracker{Reader: strings.NewReader("chunk")}
			require.NoError(t, s.Put("a/0", val))
			assert.False(t, val.closed)
		})
	}
}

func TestLocalStorePermissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "perm.zarr")
	s, err := NewLocalStore(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, s.Base())

	require.NoError(t, s.Put("x/.zarray", strings.NewReader("{}")))
	fi, err := os.Stat(filepath.Join(dir, "x", ".zarray"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(filePermissionBits), fi.Mode().Perm())

	di, err := os.Stat(filepath.Join(dir, "x"))
	require.NoError(t, err)
	assert.True(t, di.IsDir())
}
