// Package fixture generates small zarr v2 stores used as test inputs
// elsewhere. The default fixture is a group holding one big-endian int16
// array with the values 0..9 in a single chunk
package fixture

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	zarr "github.com/qri-io/zarrgen"
	"github.com/qri-io/zarrgen/internal/logger"
)

// ErrMismatch is returned by Verify when a store doesn't hold the expected
// fixture
var ErrMismatch = errors.New("fixture mismatch")

// Result describes a generated store
type Result struct {
	// Path is the absolute store directory
	Path string
	// Dtype as recorded in the array metadata
	Dtype zarr.Dtype
	// Written holds the values read through the write handle
	Written interface{}
	// Read holds the values read through an independent read-only handle
	Read interface{}
}

// Generate removes any store at cfg.Output, writes a fresh one holding the
// configured array, then reopens it read-only and reads the array back. The
// write and read blocks are printed to out. Generation is destructive and
// not cleaned up on failure: a failed run may leave a partial store behind
func Generate(ctx context.Context, cfg Config, out io.Writer) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.L.WithField("prefix", "fixture")

	path, err := filepath.Abs(cfg.Output)
	if err != nil {
		return nil, errors.Wrap(err, "resolving output path")
	}
	res := &Result{Path: path}

	log.WithField("path", path).Debug("removing existing store")
	if err := os.RemoveAll(path); err != nil {
		return nil, errors.Wrapf(err, "removing %s", path)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	written, err := writeStore(cfg, path)
	if err != nil {
		return nil, err
	}
	res.Dtype = written.Dtype()
	if res.Written, err = written.ReadAll(); err != nil {
		return nil, errors.Wrap(err, "reading back through write handle")
	}
	printBlock(out, "Write", written.Dtype(), res.Written)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	read, err := openStore(path, cfg.Array.Name)
	if err != nil {
		return nil, err
	}
	if res.Read, err = read.ReadAll(); err != nil {
		return nil, errors.Wrap(err, "reading array")
	}
	fmt.Fprintln(out)
	printBlock(out, "Read", read.Dtype(), res.Read)

	fmt.Fprintf(out, "\nCreated: %s\n", path)
	log.WithFields(logrus.Fields{
		"path":  path,
		"array": cfg.Array.Name,
		"dtype": res.Dtype.String(),
	}).Info("created fixture")
	return res, nil
}

// writeStore creates the root group and array and writes 0..n-1 into it,
// returning the write handle
func writeStore(cfg Config, path string) (*zarr.Array, error) {
	log := logger.L.WithField("prefix", "fixture")

	store, err := zarr.NewLocalStore(path)
	if err != nil {
		return nil, errors.Wrap(err, "creating store")
	}
	root, err := zarr.OpenGroup(store, "", zarr.ModeWrite)
	if err != nil {
		return nil, errors.Wrap(err, "creating group")
	}

	meta, err := cfg.ArrayMeta()
	if err != nil {
		return nil, err
	}
	arr, err := root.CreateArray(cfg.Array.Name, meta)
	if err != nil {
		return nil, errors.Wrapf(err, "creating array %q", cfg.Array.Name)
	}
	log.WithField("array", arr.Info()).Debug("created array")

	values, err := valuesFor(arr.Dtype(), arr.Size())
	if err != nil {
		return nil, err
	}
	if err := arr.Write(values); err != nil {
		return nil, errors.Wrapf(err, "writing array %q", cfg.Array.Name)
	}

	if cfg.Consolidate {
		if _, err := root.Consolidate(); err != nil {
			return nil, errors.Wrap(err, "consolidating metadata")
		}
		log.Debug("consolidated metadata")
	}
	return arr, nil
}

// openStore opens an independent read-only handle on the array named name
// in the root group of the store at path
func openStore(path, name string) (*zarr.Array, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, "opening store")
	}
	store, err := zarr.NewLocalStore(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening store")
	}
	root, err := zarr.OpenGroup(store, "", zarr.ModeRead)
	if err != nil {
		return nil, errors.Wrap(err, "opening group")
	}
	arr, err := root.Array(name)
	if err != nil {
		return nil, errors.Wrapf(err, "opening array %q", name)
	}
	return arr, nil
}

func printBlock(w io.Writer, title string, dt zarr.Dtype, values interface{}) {
	fmt.Fprintf(w, "=== %s ===\n", title)
	fmt.Fprintf(w, "dtype: %s\n", dt)
	fmt.Fprintf(w, "data: %v\n", values)
}

// Verify checks the store at path holds the fixture cfg describes: a root
// group with the named array, the configured shape, chunks and dtype, and
// the values 0..n-1
func Verify(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	arr, err := openStore(path, cfg.Array.Name)
	if err != nil {
		return err
	}

	meta := arr.Meta()
	if want := []int{cfg.Array.Length}; !reflect.DeepEqual(meta.Shape, want) {
		return fmt.Errorf("%w: shape %v, want %v", ErrMismatch, meta.Shape, want)
	}
	if want := []int{cfg.Array.Chunk}; !reflect.DeepEqual(meta.Chunks, want) {
		return fmt.Errorf("%w: chunks %v, want %v", ErrMismatch, meta.Chunks, want)
	}
	if got := arr.Dtype().String(); got != cfg.Array.Dtype {
		return fmt.Errorf("%w: dtype %s, want %s", ErrMismatch, got, cfg.Array.Dtype)
	}

	got, err := arr.ReadAll()
	if err != nil {
		return errors.Wrap(err, "reading array")
	}
	want, err := valuesFor(arr.Dtype(), cfg.Array.Length)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(got, want) {
		return fmt.Errorf("%w: values %v, want %v", ErrMismatch, got, want)
	}
	return nil
}
