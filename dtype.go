package zarr

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnsupportedDtype is returned when values of a dtype can't be represented
// as a go slice
var ErrUnsupportedDtype = errors.New("unsupported dtype")

// Dtype is the set of all zarr data types
// Simple data types as a string following the NumPy array protocol type string
// (typestr) format. The format consists of 3 parts:
//  * One character describing the byteorder of the data:
//    "<": little-endian; ">": big-endian; "|": not-relevant)
//  * One character code giving the basic type of the array
//  * An integer specifying the number of bytes the type uses.
//
// The byte order is optional in some circumstances, within the zarr format
// byte order MUST be specified
type Dtype struct {
	ByteOrder ByteOrder
	BasicType BasicType
	ByteSize  int
	Units     string
}

var (
	_ json.Unmarshaler = (*Dtype)(nil)
	_ json.Marshaler   = (*Dtype)(nil)
)

// MustParseDtype is ParseDtype for package-level literals. It panics on error
func MustParseDtype(s string) Dtype {
	dt, err := ParseDtype(s)
	if err != nil {
		panic(err)
	}
	return dt
}

func ParseDtype(s string) (dt Dtype, err error) {
	// some writers HTML-escape JSON strings
	s = strings.Replace(s, "&lt;", "<", 1)
	s = strings.Replace(s, "&gt;", ">", 1)

	if len(s) < 3 {
		return dt, fmt.Errorf("invalid dtype string. %q is too short", s)
	}

	boByte, s := s[0], s[1:]
	dt.ByteOrder, err = ParseByteOrder(rune(boByte))
	if err != nil {
		return dt, err
	}

	typeByte, s := s[0], s[1:]
	dt.BasicType, err = ParseBasicType(rune(typeByte))
	if err != nil {
		return dt, err
	}

	sizeStr := s
	if i := strings.IndexByte(s, '['); i >= 0 {
		sizeStr, dt.Units = s[:i], s[i:]
		if !strings.HasSuffix(dt.Units, "]") || len(dt.Units) < 3 {
			return dt, fmt.Errorf("invalid dtype units %q", dt.Units)
		}
	}

	size, err := strconv.ParseInt(sizeStr, 10, 0)
	if err != nil {
		return dt, errors.Wrapf(err, "invalid dtype size %q", sizeStr)
	}
	if size <= 0 {
		return dt, fmt.Errorf("invalid dtype size %d", size)
	}
	dt.ByteSize = int(size)

	return dt, nil
}

func (dt Dtype) String() string {
	s := fmt.Sprintf("%s%s%d", string(dt.ByteOrder), string(dt.BasicType), dt.ByteSize)
	if dt.Units != "" {
		s += dt.Units
	}
	return s
}

func (dt Dtype) MarshalJSON() ([]byte, error) {
	return marshalJSON(dt.String())
}

func (dt *Dtype) UnmarshalJSON(d []byte) error {
	var s string
	if err := json.Unmarshal(d, &s); err != nil {
		return err
	}
	t, err := ParseDtype(s)
	if err != nil {
		return err
	}

	*dt = t
	return nil
}

// Validate checks a dtype can be used for array I/O
func (dt Dtype) Validate() error {
	if dt.ByteSize > 1 && dt.ByteOrder == BONotRelevant {
		return fmt.Errorf("%w: %s: byte order must be specified for multi-byte types", ErrUnsupportedDtype, dt)
	}
	if _, err := dt.sliceType(); err != nil {
		return err
	}
	return nil
}

// Order gives the encoding/binary byte order for a dtype. Single-byte types
// with a "not relevant" order get big endian, which is a no-op for them
func (dt Dtype) Order() (binary.ByteOrder, error) {
	switch dt.ByteOrder {
	case BOBigEndian:
		return binary.BigEndian, nil
	case BOLittleEndian:
		return binary.LittleEndian, nil
	case BONotRelevant:
		if dt.ByteSize == 1 {
			return binary.BigEndian, nil
		}
		return nil, fmt.Errorf("%w: %s: byte order must be specified for multi-byte types", ErrUnsupportedDtype, dt)
	}
	return nil, fmt.Errorf("unsupported byte order format: %q", rune(dt.ByteOrder))
}

var sliceTypes = map[BasicType]map[int]reflect.Type{
	BTBoolean: {
		1: reflect.TypeOf([]bool{}),
	},
	BTInteger: {
		1: reflect.TypeOf([]int8{}),
		2: reflect.TypeOf([]int16{}),
		4: reflect.TypeOf([]int32{}),
		8: reflect.TypeOf([]int64{}),
	},
	BTUnsigned: {
		1: reflect.TypeOf([]uint8{}),
		2: reflect.TypeOf([]uint16{}),
		4: reflect.TypeOf([]uint32{}),
		8: reflect.TypeOf([]uint64{}),
	},
	BTFloatingPoint: {
		4: reflect.TypeOf([]float32{}),
		8: reflect.TypeOf([]float64{}),
	},
	BTComplex: {
		8:  reflect.TypeOf([]complex64{}),
		16: reflect.TypeOf([]complex128{}),
	},
}

func (dt Dtype) sliceType() (reflect.Type, error) {
	if t, ok := sliceTypes[dt.BasicType][dt.ByteSize]; ok && dt.Units == "" {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedDtype, dt)
}

// NewSlice allocates a typed go slice of length n for the dtype, []int16 for
// ">i2", []float64 for "<f8" and so on
func (dt Dtype) NewSlice(n int) (interface{}, error) {
	t, err := dt.sliceType()
	if err != nil {
		return nil, err
	}
	return reflect.MakeSlice(t, n, n).Interface(), nil
}

// EncodeValues converts a typed go slice into the byte layout of dt. The go
// element type must match the dtype exactly
func EncodeValues(dt Dtype, values interface{}) ([]byte, error) {
	order, err := dt.Order()
	if err != nil {
		return nil, err
	}
	t, err := dt.sliceType()
	if err != nil {
		return nil, err
	}
	if vt := reflect.TypeOf(values); vt != t {
		return nil, fmt.Errorf("%w: cannot encode %v as %s, want %v", ErrUnsupportedDtype, vt, dt, t)
	}

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, order, values); err != nil {
		return nil, errors.Wrapf(err, "encoding %s", dt)
	}
	return buf.Bytes(), nil
}

// DecodeValues reads n elements of dt from data into a new typed go slice
func DecodeValues(dt Dtype, data []byte, n int) (interface{}, error) {
	order, err := dt.Order()
	if err != nil {
		return nil, err
	}
	if len(data) != n*dt.ByteSize {
		return nil, fmt.Errorf("decoding %s: have %d bytes, want %d", dt, len(data), n*dt.ByteSize)
	}
	v, err := dt.NewSlice(n)
	if err != nil {
		return nil, err
	}
	if err := binary.Read(bytes.NewReader(data), order, v); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", dt)
	}
	return v, nil
}

// marshalJSON is json.Marshal without HTML escaping, so byte order characters
// in typestrs are written as ">" and "<" rather than \u003e and \u003c
func marshalJSON(v interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// encodeFillValue renders a single element holding the fill value. A nil fill
// value is all zero bytes
func encodeFillValue(dt Dtype, fill interface{}) ([]byte, error) {
	v, err := dt.NewSlice(1)
	if err != nil {
		return nil, err
	}
	if fill == nil {
		return EncodeValues(dt, v)
	}

	f, err := fillFloat(fill)
	if err != nil {
		return nil, err
	}

	el := reflect.ValueOf(v).Index(0)
	switch dt.BasicType {
	case BTBoolean:
		el.SetBool(f != 0)
	case BTInteger:
		el.SetInt(int64(f))
	case BTUnsigned:
		el.SetUint(uint64(f))
	case BTFloatingPoint:
		el.SetFloat(f)
	case BTComplex:
		el.SetComplex(complex(f, 0))
	}
	return EncodeValues(dt, v)
}

func fillFloat(fill interface{}) (float64, error) {
	switch x := fill.(type) {
	case float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return x.Float64()
	case string:
		switch x {
		case FillValueNaN:
			return math.NaN(), nil
		case FillValueInfinity:
			return math.Inf(1), nil
		case FillValueNegativeInfinity:
			return math.Inf(-1), nil
		}
		return 0, fmt.Errorf("unsupported fill value %q", x)
	case int:
		return float64(x), nil
	}
	return 0, fmt.Errorf("unsupported fill value type %T", fill)
}

type ByteOrder rune

func ParseByteOrder(r rune) (ByteOrder, error) {
	o := ByteOrder(r)
	if _, ok := byteOrders[o]; !ok {
		return o, fmt.Errorf("unsupported byte order format: %q", r)
	}
	return o, nil
}

const (
	BONotRelevant  ByteOrder = '|'
	BOLittleEndian ByteOrder = '<'
	BOBigEndian    ByteOrder = '>'
)

var byteOrders = map[ByteOrder]struct{}{
	BONotRelevant:  {},
	BOLittleEndian: {},
	BOBigEndian:    {},
}

type BasicType rune

func ParseBasicType(r rune) (BasicType, error) {
	t := BasicType(r)
	if _, ok := supportedBasicTypes[t]; !ok {
		return t, fmt.Errorf("unsupported basic type: %q", r)
	}
	return t, nil
}

func (bt BasicType) Human() string {
	return supportedBasicTypes[bt]
}

const (
	BTBoolean       BasicType = 'b'
	BTInteger       BasicType = 'i'
	BTUnsigned      BasicType = 'u'
	BTFloatingPoint BasicType = 'f'
	BTComplex       BasicType = 'c'
	BTTimedelta     BasicType = 'm'
	BTDatetime      BasicType = 'M'
	BTString        BasicType = 'S'
	BTUnicode       BasicType = 'U'
	BTOther         BasicType = 'V'
)

var supportedBasicTypes = map[BasicType]string{
	BTBoolean:       "bool",
	BTInteger:       "int",
	BTUnsigned:      "uint",
	BTFloatingPoint: "float",
	BTComplex:       "complex",
	BTTimedelta:     "timedelta",
	BTDatetime:      "datetime",
	BTString:        "string",
	BTUnicode:       "unicode",
	BTOther:         "other",
}

// StructuredType is a dtype in list form: either a plain Dtype or a set of
// named fields. Structured arrays can be described but not read or written
type StructuredType struct {
	Fieldname string
	Dtype     Dtype
	Shape     interface{}
	Children  []StructuredType
}

var (
	_ json.Unmarshaler = (*StructuredType)(nil)
	_ json.Marshaler   = (*StructuredType)(nil)
)

// BasicDtype wraps a Dtype as a StructuredType
func BasicDtype(dt Dtype) StructuredType {
	return StructuredType{Dtype: dt}
}

func ParseStructuredType(d interface{}) (StructuredType, error) {
	switch v := d.(type) {
	case string:
		dt, err := ParseDtype(v)
		if err != nil {
			return StructuredType{}, err
		}
		return StructuredType{Dtype: dt}, nil
	case []interface{}:
		return parseStructuredTypeSlice(v)
	default:
		return StructuredType{}, fmt.Errorf("unexpected type %T", d)
	}
}

func parseStructuredTypeSlice(d []interface{}) (StructuredType, error) {
	if len(d) == 0 {
		return StructuredType{}, fmt.Errorf("invalid structured dtype: no fields")
	}
	// a list of lists is a set of fields: [["r", "|u1"], ["g", "|u1"]]
	if _, ok := d[0].([]interface{}); ok {
		parent := StructuredType{}
		for i, el := range d {
			ch, err := ParseStructuredType(el)
			if err != nil {
				return StructuredType{}, errors.Wrapf(err, "field %d", i)
			}
			parent.Children = append(parent.Children, ch)
		}
		return parent, nil
	} else if len(d) < 2 {
		return StructuredType{}, fmt.Errorf("invalid structured dtype: %d elements is too short", len(d))
	}

	t := StructuredType{}
	fieldName, ok := d[0].(string)
	if !ok {
		return StructuredType{}, fmt.Errorf("invalid structured dtype: field name must be a string. got %T", d[0])
	}
	t.Fieldname = fieldName

	switch x := d[1].(type) {
	case string:
		dtype, err := ParseDtype(x)
		if err != nil {
			return StructuredType{}, err
		}
		t.Dtype = dtype
	case []interface{}:
		ch, err := ParseStructuredType(x)
		if err != nil {
			return StructuredType{}, err
		}
		t.Children = append(t.Children, ch)
	default:
		return t, fmt.Errorf("invalid structured dtype: want either string or structured type. got %T", d[1])
	}

	if len(d) > 2 {
		t.Shape = d[2]
	}

	return t, nil
}

func (st StructuredType) IsBasic() bool {
	return st.Fieldname == "" && st.Shape == nil && len(st.Children) == 0
}

func (st StructuredType) Human() string {
	if st.IsBasic() {
		return st.Dtype.BasicType.Human()
	}
	return "struct"
}

func (st StructuredType) String() string {
	if st.IsBasic() {
		return st.Dtype.String()
	}
	d, err := st.MarshalJSON()
	if err != nil {
		return "<invalid structured dtype>"
	}
	return string(d)
}

func (st StructuredType) MarshalJSON() ([]byte, error) {
	if st.IsBasic() {
		return st.Dtype.MarshalJSON()
	}

	if st.Fieldname == "" {
		return marshalJSON(st.Children)
	}

	d := []interface{}{st.Fieldname}
	if len(st.Children) > 0 {
		d = append(d, st.Children[0])
	} else {
		d = append(d, st.Dtype)
	}
	if st.Shape != nil {
		d = append(d, st.Shape)
	}

	return marshalJSON(d)
}

func (st *StructuredType) UnmarshalJSON(d []byte) error {
	var v interface{}
	if err := json.Unmarshal(d, &v); err != nil {
		return err
	}

	t, err := ParseStructuredType(v)
	if err != nil {
		return err
	}

	*st = t
	return nil
}
