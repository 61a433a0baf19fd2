// Package zarr reads and writes chunked, compressed N-dimensional arrays stored
// in the zarr v2 format: https://zarr.readthedocs.io/en/stable/spec/v2.html
package zarr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrExists is returned when creating a node where one already exists
	ErrExists = errors.New("already exists")
	// ErrReadOnly is returned when writing through a read-only handle
	ErrReadOnly = errors.New("read only")
	// ErrInvalidMode is returned for persistence modes an operation can't use
	ErrInvalidMode = errors.New("invalid persistence mode")
	// ErrShapeMismatch is returned when values don't fit an array
	ErrShapeMismatch = errors.New("shape mismatch")
)

type PersistenceMode string

const (
	// ‘r’ means read only (must exist);
	ModeRead PersistenceMode = "r"
	// ‘r+’ means read/write (must exist)
	ModeReadWrite PersistenceMode = "r+"
	// ‘a’ means read/write (create if doesn’t exist)
	ModeReadWriteCreate PersistenceMode = "a"
	// ‘w’ means create (overwrite if exists)
	ModeWrite PersistenceMode = "w"
	// ‘w-’ means create (fail if exists).
	ModeWriteFail PersistenceMode = "w-"
)

func ParsePersistenceMode(s string) (PersistenceMode, error) {
	switch m := PersistenceMode(s); m {
	case ModeRead, ModeReadWrite, ModeReadWriteCreate, ModeWrite, ModeWriteFail:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Writable reports whether handles opened in m may modify the store
func (m PersistenceMode) Writable() bool {
	return m != ModeRead
}

type Array struct {
	path  Path
	store Store
	mode  PersistenceMode
	meta  *ArrayMeta
}

// CreateArray writes array metadata at path and returns a handle to the new,
// empty array. ModeWrite replaces anything stored at path, ModeWriteFail and
// ModeReadWriteCreate refuse to replace an existing node
func CreateArray(store Store, path string, meta *ArrayMeta, mode PersistenceMode) (*Array, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}

	switch mode {
	case ModeWrite:
		if err := store.Delete(p.String()); err != nil {
			return nil, errors.Wrapf(err, "clearing %q", p)
		}
	case ModeWriteFail, ModeReadWriteCreate:
		if nodeExists(store, p) {
			return nil, fmt.Errorf("%w: %q", ErrExists, p)
		}
	case ModeRead:
		return nil, fmt.Errorf("%w: cannot create array %q", ErrReadOnly, p)
	default:
		return nil, fmt.Errorf("%w: cannot create array in mode %q", ErrInvalidMode, mode)
	}

	if err := putJSON(store, p.Key(string(MTArray)), meta); err != nil {
		return nil, err
	}

	return &Array{
		path:  p,
		store: store,
		mode:  mode,
		meta:  meta,
	}, nil
}

// OpenArray opens an existing array. ModeWrite and ModeWriteFail create
// arrays, use CreateArray for them
func OpenArray(store Store, path string, mode PersistenceMode) (*Array, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	switch mode {
	case ModeRead, ModeReadWrite, ModeReadWriteCreate:
	default:
		return nil, fmt.Errorf("%w: cannot open array in mode %q", ErrInvalidMode, mode)
	}

	meta := &ArrayMeta{}
	if err := getJSON(store, p.Key(string(MTArray)), meta); err != nil {
		return nil, errors.Wrapf(err, "opening array %q", p)
	}

	return &Array{
		path:  p,
		store: store,
		mode:  mode,
		meta:  meta,
	}, nil
}

func (a *Array) Info() string {
	return fmt.Sprintf("<zarr-go.Array %q shape=%v chunks=%v dtype=%s>", a.Path(), a.meta.Shape, a.meta.Chunks, a.meta.Dtype)
}

func (a *Array) Path() string {
	return a.path.String()
}

// Name is the last segment of the array path
func (a *Array) Name() string {
	return a.path.Name()
}

func (a *Array) Meta() *ArrayMeta {
	return a.meta
}

func (a *Array) Dtype() Dtype {
	return a.meta.Dtype.Dtype
}

func (a *Array) Shape() []int {
	return append([]int(nil), a.meta.Shape...)
}

// Size is the total number of elements in the array
func (a *Array) Size() int {
	return numElements(a.meta.Shape)
}

func (a *Array) Mode() PersistenceMode {
	return a.mode
}

// Write replaces the contents of the entire array. values must be a flat go
// slice in C order whose element type matches the array dtype, []int16 for a
// ">i2" array
func (a *Array) Write(values interface{}) error {
	if !a.mode.Writable() {
		return fmt.Errorf("%w: array %q", ErrReadOnly, a.path)
	}
	if err := a.meta.Validate(); err != nil {
		return err
	}

	rv := reflect.ValueOf(values)
	if rv.Kind() != reflect.Slice {
		return fmt.Errorf("%w: cannot write %T to array, want a slice", ErrUnsupportedDtype, values)
	}
	if n := rv.Len(); n != a.Size() {
		return fmt.Errorf("%w: %d values for array of shape %v", ErrShapeMismatch, n, a.meta.Shape)
	}

	dt := a.Dtype()
	data, err := EncodeValues(dt, values)
	if err != nil {
		return err
	}
	fill, err := encodeFillValue(dt, a.meta.FillValue)
	if err != nil {
		return err
	}

	chunkLen := numElements(a.meta.Chunks) * dt.ByteSize
	return eachChunk(GridShape(a.meta.Shape, a.meta.Chunks), func(coords []int) error {
		chunk := bytes.Repeat(fill, chunkLen/dt.ByteSize)
		proj := projectChunk(a.meta.Shape, a.meta.Chunks, coords)
		for _, r := range proj.Runs {
			copy(chunk[r.ChunkOffset*dt.ByteSize:], data[r.ArrayOffset*dt.ByteSize:(r.ArrayOffset+r.Len)*dt.ByteSize])
		}
		return a.putChunk(coords, chunk)
	})
}

// ReadAll reads the entire array into a flat, typed go slice in C order.
// Chunks missing from the store read as the fill value
func (a *Array) ReadAll() (interface{}, error) {
	if err := a.meta.Validate(); err != nil {
		return nil, err
	}

	dt := a.Dtype()
	fill, err := encodeFillValue(dt, a.meta.FillValue)
	if err != nil {
		return nil, err
	}

	size := a.Size()
	out := bytes.Repeat(fill, size)
	chunkLen := numElements(a.meta.Chunks) * dt.ByteSize

	err = eachChunk(GridShape(a.meta.Shape, a.meta.Chunks), func(coords []int) error {
		chunk, err := a.readChunk(coords)
		if errors.Is(err, ErrNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		if len(chunk) != chunkLen {
			return fmt.Errorf("chunk %s: have %d bytes, want %d", a.chunkPath(coords), len(chunk), chunkLen)
		}

		proj := projectChunk(a.meta.Shape, a.meta.Chunks, coords)
		for _, r := range proj.Runs {
			copy(out[r.ArrayOffset*dt.ByteSize:], chunk[r.ChunkOffset*dt.ByteSize:(r.ChunkOffset+r.Len)*dt.ByteSize])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return DecodeValues(dt, out, size)
}

// Attrs reads user attributes stored alongside the array. Arrays without
// attributes return an empty map
func (a *Array) Attrs() (Attributes, error) {
	return readAttrs(a.store, a.path)
}

func (a *Array) SetAttrs(attrs Attributes) error {
	if !a.mode.Writable() {
		return fmt.Errorf("%w: array %q", ErrReadOnly, a.path)
	}
	return putJSON(a.store, a.path.Key(string(MTAttributes)), attrs)
}

func (a *Array) readChunk(coords []int) ([]byte, error) {
	key := a.chunkPath(coords).String()
	f, err := a.store.Get(key)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := a.meta.Compressor.Decompressor(f)
	if err != nil {
		return nil, errors.Wrapf(err, "chunk %s", key)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "reading chunk %s", key)
	}
	return data, nil
}

func (a *Array) putChunk(coords []int, chunk []byte) error {
	key := a.chunkPath(coords).String()
	buf := &bytes.Buffer{}
	w, err := a.meta.Compressor.Compressor(buf)
	if err != nil {
		return errors.Wrapf(err, "chunk %s", key)
	}
	if _, err := w.Write(chunk); err != nil {
		return errors.Wrapf(err, "compressing chunk %s", key)
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "compressing chunk %s", key)
	}
	return a.store.Put(key, buf)
}

func (a *Array) chunkPath(coords []int) Path {
	// "/" separated keys nest chunks in directories
	return a.path.Join(strings.Split(ChunkKey(coords, a.meta.Separator()), "/")...)
}

func nodeExists(store Store, p Path) bool {
	for _, mt := range []MetaType{MTArray, MTGroup} {
		f, err := store.Get(p.Key(string(mt)))
		if err == nil {
			f.Close()
			return true
		}
	}
	return false
}

func getJSON(store Store, key string, v interface{}) error {
	f, err := store.Get(key)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(v); err != nil {
		return errors.Wrapf(err, "decoding %s", key)
	}
	return nil
}

func putJSON(store Store, key string, v interface{}) error {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrapf(err, "encoding %s", key)
	}
	return store.Put(key, bytes.NewReader(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))))
}

func readAttrs(store Store, p Path) (Attributes, error) {
	attrs := Attributes{}
	if err := getJSON(store, p.Key(string(MTAttributes)), &attrs); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Attributes{}, nil
		}
		return nil, err
	}
	return attrs, nil
}
