package zarr

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/pkg/errors"
)

const (
	// ZarrFormat is the storage format version zarr-go reads & writes
	ZarrFormat = 2
	// ConsolidatedFormat is the version of consolidated metadata documents
	ConsolidatedFormat = 1
)

// ErrInvalidMeta is returned for metadata that breaks the zarr v2 format
var ErrInvalidMeta = errors.New("invalid metadata")

type MetaType string

const (
	// MTAttributes stores userland metadata keyed by array name
	MTAttributes MetaType = ".zattrs"
	// MTArray is the key for storing metadata on an array store
	MTArray MetaType = ".zarray"
	// MTGroup is the key for storing group definitions on an array store
	MTGroup MetaType = ".zgroup"
	// MTMetadata is the key for composite metadata
	MTMetadata MetaType = ".zmetadata"
)

type MetaTyper interface {
	MetaType() MetaType
}

var metaTypes = map[MetaType]struct{}{
	MTAttributes: {},
	MTArray:      {},
	MTGroup:      {},
}

// KeyMetaType classifies a store key by suffix. relies on the fact that all
// keynames are 7 characters long
func KeyMetaType(s string) (mt MetaType, ok bool) {
	if len(s) < 7 {
		return mt, false
	}
	mt = MetaType(s[len(s)-7:])
	if _, ok = metaTypes[mt]; !ok {
		return mt, false
	}
	// "foo.zarray" is a chunk-ish key, not metadata
	if len(s) > 7 && s[len(s)-8] != '/' {
		return mt, false
	}
	return mt, true
}

type Attributes map[string]interface{}

func (Attributes) MetaType() MetaType { return MTAttributes }

// Arrays can be organized into groups which can also contain other groups.
// A group is created by storing group metadata under the “.zgroup” key under
// some logical path. E.g., a group exists at the root of an array store if the
// “.zgroup” key exists in the store, and a group exists at logical path
// “foo/bar” if the “foo/bar/.zgroup” key exists in the store.
type GroupMeta struct {
	ZarrFormat int `json:"zarr_format"`
}

func (GroupMeta) MetaType() MetaType { return MTGroup }

type ConsolidatedMetadata struct {
	ConsolidatedFormat int                  `json:"zarr_consolidated_format"`
	Metadata           map[string]MetaTyper `json:"metadata"`
}

type consolidatedMetaDecoder struct {
	ConsolidatedFormat int                        `json:"zarr_consolidated_format"`
	Metadata           map[string]json.RawMessage `json:"metadata"`
}

func (m *ConsolidatedMetadata) UnmarshalJSON(d []byte) error {
	cd := consolidatedMetaDecoder{}
	if err := json.Unmarshal(d, &cd); err != nil {
		return err
	}
	cm := ConsolidatedMetadata{
		ConsolidatedFormat: cd.ConsolidatedFormat,
		Metadata:           map[string]MetaTyper{},
	}

	for key, data := range cd.Metadata {
		kt, ok := KeyMetaType(key)
		if !ok {
			return fmt.Errorf("invalid consolidated metadata key: %q", key)
		}
		mt, err := decodeMeta(kt, data)
		if err != nil {
			return errors.Wrapf(err, "reading %q", key)
		}
		cm.Metadata[key] = mt
	}

	*m = cm
	return nil
}

// decodeMeta parses a metadata document of a known type
func decodeMeta(kt MetaType, data []byte) (MetaTyper, error) {
	switch kt {
	case MTArray:
		arr := &ArrayMeta{}
		if err := json.Unmarshal(data, arr); err != nil {
			return nil, err
		}
		return arr, nil
	case MTAttributes:
		attr := Attributes{}
		if err := json.Unmarshal(data, &attr); err != nil {
			return nil, err
		}
		return attr, nil
	case MTGroup:
		grp := &GroupMeta{}
		if err := json.Unmarshal(data, grp); err != nil {
			return nil, err
		}
		return grp, nil
	}
	return nil, fmt.Errorf("%w: unknown metadata type %q", ErrInvalidMeta, kt)
}

// Each array requires essential configuration metadata to be stored,
// enabling correct interpretation of the stored data.
// This metadata is encoded using JSON and stored as the value of the
// “.zarray” key within an array store.
type ArrayMeta struct {
	// An integer defining the version of the storage specification to which
	// the array store adheres.
	ZarrFormat int `json:"zarr_format"`
	// A list of integers defining the length of each dimension of the array.
	Shape []int `json:"shape"`
	// A list of integers defining the length of each dimension of a chunk of the
	// array. Note that all chunks within a Zarr array have the same shape.
	Chunks []int `json:"chunks"`
	// A string or list defining a valid data type for the array.
	Dtype StructuredType `json:"dtype"`
	// Primary compression codec, nil if chunks are stored raw.
	Compressor *CompressionMeta `json:"compressor"`
	// A scalar value providing the default value to use for uninitialized
	// portions of the array, or null if no fill_value is to be used.
	FillValue interface{} `json:"fill_value"`
	// Either “C” or “F”, defining the layout of bytes within each chunk of the
	// array. “C” means row-major order, i.e., the last dimension varies fastest;
	// “F” means column-major order, i.e., the first dimension varies fastest.
	Order string `json:"order"`
	// A list of codec configurations, or null if no filters are applied.
	Filters []Filter `json:"filters"`
	// If present, either the string "." or "/" defining the separator placed
	// between the dimensions of a chunk. Defaults to ".".
	DimensionSeparator string `json:"dimension_separator,omitempty"`
}

func (a ArrayMeta) MetaType() MetaType { return MTArray }

// NewArrayMeta builds C-order array metadata with no compressor, no filters
// and a zero fill value
func NewArrayMeta(shape, chunks []int, dtype Dtype) *ArrayMeta {
	return &ArrayMeta{
		ZarrFormat: ZarrFormat,
		Shape:      shape,
		Chunks:     chunks,
		Dtype:      BasicDtype(dtype),
		FillValue:  0.0,
		Order:      OrderC,
	}
}

// Validate checks metadata against the zarr v2 format and the features
// zarr-go can read & write
func (a *ArrayMeta) Validate() error {
	if a.ZarrFormat != ZarrFormat {
		return fmt.Errorf("%w: unsupported zarr_format %d", ErrInvalidMeta, a.ZarrFormat)
	}
	if len(a.Shape) != len(a.Chunks) {
		return fmt.Errorf("%w: shape %v and chunks %v differ in rank", ErrInvalidMeta, a.Shape, a.Chunks)
	}
	for i := range a.Shape {
		if a.Shape[i] < 0 {
			return fmt.Errorf("%w: negative dimension in shape %v", ErrInvalidMeta, a.Shape)
		}
		if a.Chunks[i] <= 0 {
			return fmt.Errorf("%w: chunk dimensions must be positive, got %v", ErrInvalidMeta, a.Chunks)
		}
	}
	if !a.Dtype.IsBasic() {
		return fmt.Errorf("%w: structured dtype %s", ErrUnsupportedDtype, a.Dtype)
	}
	if err := a.Dtype.Dtype.Validate(); err != nil {
		return err
	}
	switch a.Order {
	case OrderC:
	case OrderF:
		return fmt.Errorf("%w: %q order is not supported", ErrInvalidMeta, a.Order)
	default:
		return fmt.Errorf("%w: order must be %q or %q, got %q", ErrInvalidMeta, OrderC, OrderF, a.Order)
	}
	switch a.DimensionSeparator {
	case "", ".", "/":
	default:
		return fmt.Errorf("%w: invalid dimension_separator %q", ErrInvalidMeta, a.DimensionSeparator)
	}
	if len(a.Filters) > 0 {
		return fmt.Errorf("%w: filters are not supported", ErrInvalidMeta)
	}
	if a.Dtype.Dtype.BasicType != BTFloatingPoint && a.Dtype.Dtype.BasicType != BTComplex && !finiteFill(a.FillValue) {
		return fmt.Errorf("%w: fill_value %v is not representable as %s", ErrInvalidMeta, a.FillValue, a.Dtype)
	}
	return nil
}

// finiteFill reports whether fill is null or a finite number
func finiteFill(fill interface{}) bool {
	switch x := fill.(type) {
	case float64:
		return !math.IsNaN(x) && !math.IsInf(x, 0)
	case string:
		return false
	}
	return true
}

// Separator returns the chunk key dimension separator
func (a *ArrayMeta) Separator() string {
	if a.DimensionSeparator == "" {
		return "."
	}
	return a.DimensionSeparator
}

// MarshalJSON encodes non-finite float fill values as the strings zarr v2
// requires
func (a ArrayMeta) MarshalJSON() ([]byte, error) {
	type arrayMeta ArrayMeta
	m := arrayMeta(a)
	if f, ok := m.FillValue.(float64); ok {
		switch {
		case math.IsNaN(f):
			m.FillValue = FillValueNaN
		case math.IsInf(f, 1):
			m.FillValue = FillValueInfinity
		case math.IsInf(f, -1):
			m.FillValue = FillValueNegativeInfinity
		}
	}
	return marshalJSON(m)
}

type Filter struct {
	ID     string `json:"id"`
	Delta  string `json:"delta,omitempty"`
	Dtype  string `json:"dtype,omitempty"`
	AsType string `json:"astype,omitempty"`
}

const (
	// OrderC is row-major chunk layout
	OrderC = "C"
	// OrderF is column-major chunk layout
	OrderF = "F"
)

const (
	// Not a Number
	FillValueNaN = "NaN"
	// Infinity
	FillValueInfinity = "Infinity"
	// -Infinity
	FillValueNegativeInfinity = "-Infinity"
)
