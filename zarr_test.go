package zarr

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int16s(n int) []int16 {
	v := make([]int16, n)
	for i := range v {
		v[i] = int16(i)
	}
	return v
}

func readKey(t *testing.T, s Store, key string) []byte {
	t.Helper()
	f, err := s.Get(key)
	require.NoError(t, err)
	defer f.Close()
	d, err := io.ReadAll(f)
	require.NoError(t, err)
	return d
}

func TestBigEndianRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	meta := NewArrayMeta([]int{10}, []int{10}, MustParseDtype(">i2"))
	a, err := CreateArray(s, "big_endian_var", meta, ModeWrite)
	require.NoError(t, err)
	require.NoError(t, a.Write(int16s(10)))

	want := []byte{0, 0, 0, 1, 0, 2, 0, 3, 0, 4, 0, 5, 0, 6, 0, 7, 0, 8, 0, 9}
	if diff := cmp.Diff(want, readKey(t, s, "big_endian_var/0")); diff != "" {
		t.Errorf("chunk bytes mismatch (-want +got):\n%s", diff)
	}

	r, err := OpenArray(s, "big_endian_var", ModeRead)
	require.NoError(t, err)
	assert.Equal(t, ">i2", r.Dtype().String())
	assert.Equal(t, []int{10}, r.Shape())

	got, err := r.ReadAll()
	require.NoError(t, err)
	if diff := cmp.Diff(int16s(10), got); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestArrayMetaWrittenUnescaped(t *testing.T) {
	s := NewMemoryStore()
	_, err := CreateArray(s, "be", NewArrayMeta([]int{2}, []int{2}, MustParseDtype(">i2")), ModeWrite)
	require.NoError(t, err)
	_, err = CreateArray(s, "le", NewArrayMeta([]int{2}, []int{2}, MustParseDtype("<u4")), ModeWrite)
	require.NoError(t, err)

	be := string(readKey(t, s, "be/.zarray"))
	assert.Contains(t, be, `"dtype": ">i2"`)
	assert.NotContains(t, be, `\u003e`)
	assert.Contains(t, string(readKey(t, s, "le/.zarray")), `"dtype": "<u4"`)
}

func TestLittleEndianChunkBytes(t *testing.T) {
	s := NewMemoryStore()
	a, err := CreateArray(s, "le", NewArrayMeta([]int{3}, []int{3}, MustParseDtype("<i2")), ModeWrite)
	require.NoError(t, err)
	require.NoError(t, a.Write([]int16{1, 2, 256}))
	assert.Equal(t, []byte{1, 0, 2, 0, 0, 1}, readKey(t, s, "le/0"))
}

func TestWriteMultiChunk2D(t *testing.T) {
	s := NewMemoryStore()
	meta := NewArrayMeta([]int{5, 3}, []int{2, 2}, MustParseDtype("<i4"))
	a, err := CreateArray(s, "grid", meta, ModeWrite)
	require.NoError(t, err)

	values := make([]int32, 15)
	for i := range values {
		values[i] = int32(i)
	}
	require.NoError(t, a.Write(values))

	keys, err := s.Keys()
	require.NoError(t, err)
	want := []string{"grid/.zarray", "grid/0.0", "grid/0.1", "grid/1.0", "grid/1.1", "grid/2.0", "grid/2.1"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	// edge chunk holds element (4, 2) and fill values
	edge, err := DecodeValues(MustParseDtype("<i4"), readKey(t, s, "grid/2.1"), 4)
	require.NoError(t, err)
	assert.Equal(t, []int32{14, 0, 0, 0}, edge)

	// chunk (0, 1) holds columns 2..3 of rows 0..1
	inner, err := DecodeValues(MustParseDtype("<i4"), readKey(t, s, "grid/0.1"), 4)
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 0, 5, 0}, inner)

	got, err := a.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, values, got)
}

func TestReadMissingChunksAsFill(t *testing.T) {
	s := NewMemoryStore()
	meta := NewArrayMeta([]int{4}, []int{2}, MustParseDtype("<f8"))
	meta.FillValue = FillValueNaN
	a, err := CreateArray(s, "empty", meta, ModeWrite)
	require.NoError(t, err)

	got, err := a.ReadAll()
	require.NoError(t, err)
	vals := got.([]float64)
	require.Len(t, vals, 4)
	for i, v := range vals {
		assert.Truef(t, math.IsNaN(v), "element %d: want NaN, got %v", i, v)
	}

	meta = NewArrayMeta([]int{3}, []int{2}, MustParseDtype("|u1"))
	meta.FillValue = 7.0
	a, err = CreateArray(s, "sevens", meta, ModeWrite)
	require.NoError(t, err)
	got, err = a.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []uint8{7, 7, 7}, got)
}

func TestZeroDimensionalArray(t *testing.T) {
	s := NewMemoryStore()
	a, err := CreateArray(s, "scalar", NewArrayMeta([]int{}, []int{}, MustParseDtype("<f8")), ModeWrite)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Size())
	require.NoError(t, a.Write([]float64{3.5}))
	assert.Len(t, readKey(t, s, "scalar/0"), 8)

	got, err := a.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []float64{3.5}, got)
}

func TestNestedChunkKeys(t *testing.T) {
	s := NewMemoryStore()
	meta := NewArrayMeta([]int{2, 2}, []int{1, 1}, MustParseDtype("|b1"))
	meta.DimensionSeparator = "/"
	a, err := CreateArray(s, "flags", meta, ModeWrite)
	require.NoError(t, err)
	require.NoError(t, a.Write([]bool{true, false, false, true}))

	assert.Equal(t, []byte{1}, readKey(t, s, "flags/1/1"))
	got, err := a.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, false, true}, got)
}

func TestWriteErrors(t *testing.T) {
	s := NewMemoryStore()
	a, err := CreateArray(s, "x", NewArrayMeta([]int{4}, []int{4}, MustParseDtype(">i2")), ModeWrite)
	require.NoError(t, err)

	assert.ErrorIs(t, a.Write(int16s(3)), ErrShapeMismatch)
	assert.ErrorIs(t, a.Write([]int32{0, 1, 2, 3}), ErrUnsupportedDtype)
	assert.ErrorIs(t, a.Write(int16(1)), ErrUnsupportedDtype)

	r, err := OpenArray(s, "x", ModeRead)
	require.NoError(t, err)
	assert.ErrorIs(t, r.Write(int16s(4)), ErrReadOnly)
	assert.ErrorIs(t, r.SetAttrs(Attributes{"a": 1}), ErrReadOnly)
}

func TestCreateArrayModes(t *testing.T) {
	s := NewMemoryStore()
	meta := NewArrayMeta([]int{2}, []int{2}, MustParseDtype(">i2"))
	a, err := CreateArray(s, "x", meta, ModeWrite)
	require.NoError(t, err)
	require.NoError(t, a.Write([]int16{5, 6}))

	_, err = CreateArray(s, "x", meta, ModeWriteFail)
	assert.ErrorIs(t, err, ErrExists)
	_, err = CreateArray(s, "x", meta, ModeReadWriteCreate)
	assert.ErrorIs(t, err, ErrExists)
	_, err = CreateArray(s, "y", meta, ModeRead)
	assert.ErrorIs(t, err, ErrReadOnly)
	_, err = CreateArray(s, "y", meta, ModeReadWrite)
	assert.ErrorIs(t, err, ErrInvalidMode)

	// w discards existing chunks
	_, err = CreateArray(s, "x", meta, ModeWrite)
	require.NoError(t, err)
	_, err = s.Get("x/0")
	assert.ErrorIs(t, err, ErrNotFound)

	bad := NewArrayMeta([]int{2}, []int{0}, MustParseDtype(">i2"))
	_, err = CreateArray(s, "z", bad, ModeWrite)
	assert.ErrorIs(t, err, ErrInvalidMeta)

	nanInt := NewArrayMeta([]int{2}, []int{2}, MustParseDtype(">i2"))
	nanInt.FillValue = FillValueNaN
	_, err = CreateArray(s, "z", nanInt, ModeWrite)
	assert.ErrorIs(t, err, ErrInvalidMeta)
}

func TestOpenArray(t *testing.T) {
	s := NewMemoryStore()
	_, err := OpenArray(s, "missing", ModeRead)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = OpenArray(s, "missing", ModeWrite)
	assert.ErrorIs(t, err, ErrInvalidMode)

	_, err = CreateArray(s, "/foo//bar/", NewArrayMeta([]int{1}, []int{1}, MustParseDtype("<u2")), ModeWrite)
	require.NoError(t, err)
	a, err := OpenArray(s, `foo\bar`, ModeReadWrite)
	require.NoError(t, err)
	assert.Equal(t, "foo/bar", a.Path())
	assert.Equal(t, "bar", a.Name())
}

func TestArrayAttrs(t *testing.T) {
	s := NewMemoryStore()
	a, err := CreateArray(s, "x", NewArrayMeta([]int{1}, []int{1}, MustParseDtype("<u2")), ModeWrite)
	require.NoError(t, err)

	attrs, err := a.Attrs()
	require.NoError(t, err)
	assert.Empty(t, attrs)

	require.NoError(t, a.SetAttrs(Attributes{"units": "m"}))
	attrs, err = a.Attrs()
	require.NoError(t, err)
	assert.Equal(t, Attributes{"units": "m"}, attrs)
}

func TestLocalStoreLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "big_endian_test.zarr")
	s, err := NewLocalStore(dir)
	require.NoError(t, err)

	g, err := OpenGroup(s, "", ModeWrite)
	require.NoError(t, err)
	a, err := g.CreateArray("big_endian_var", NewArrayMeta([]int{10}, []int{10}, MustParseDtype(">i2")))
	require.NoError(t, err)
	require.NoError(t, a.Write(int16s(10)))

	for _, name := range []string{".zgroup", "big_endian_var/.zarray", "big_endian_var/0"} {
		_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(name)))
		assert.NoError(t, err, name)
	}
	chunk, err := os.ReadFile(filepath.Join(dir, "big_endian_var", "0"))
	require.NoError(t, err)
	assert.Len(t, chunk, 20)
	assert.Equal(t, []byte{0, 9}, chunk[18:])
}
