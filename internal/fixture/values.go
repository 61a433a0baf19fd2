package fixture

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"

	zarr "github.com/qri-io/zarrgen"
)

// Number is any element type Arange can produce
type Number interface {
	constraints.Integer | constraints.Float
}

// Arange returns the sequence 0, 1, ... n-1 as a slice of T
func Arange[T Number](n int) []T {
	s := make([]T, n)
	for i := range s {
		s[i] = T(i)
	}
	return s
}

// largest value each numeric dtype holds exactly
var exactMax = map[zarr.BasicType]map[int]float64{
	zarr.BTInteger: {
		1: math.MaxInt8,
		2: math.MaxInt16,
		4: math.MaxInt32,
		8: 1 << 53,
	},
	zarr.BTUnsigned: {
		1: math.MaxUint8,
		2: math.MaxUint16,
		4: math.MaxUint32,
		8: 1 << 53,
	},
	zarr.BTFloatingPoint: {
		4: 1 << 24,
		8: 1 << 53,
	},
}

// checkRange errors if 0..n-1 can't be stored exactly in dt
func checkRange(dt zarr.Dtype, n int) error {
	limit, ok := exactMax[dt.BasicType][dt.ByteSize]
	if !ok {
		return fmt.Errorf("%w: fixture values need an integer or float dtype, got %s", zarr.ErrUnsupportedDtype, dt)
	}
	if n > 0 && float64(n-1) > limit {
		return fmt.Errorf("length %d overflows dtype %s", n, dt)
	}
	return nil
}

// valuesFor builds 0..n-1 as the go slice type matching dt
func valuesFor(dt zarr.Dtype, n int) (interface{}, error) {
	if err := checkRange(dt, n); err != nil {
		return nil, err
	}
	proto, err := dt.NewSlice(0)
	if err != nil {
		return nil, err
	}

	switch proto.(type) {
	case []int8:
		return Arange[int8](n), nil
	case []int16:
		return Arange[int16](n), nil
	case []int32:
		return Arange[int32](n), nil
	case []int64:
		return Arange[int64](n), nil
	case []uint8:
		return Arange[uint8](n), nil
	case []uint16:
		return Arange[uint16](n), nil
	case []uint32:
		return Arange[uint32](n), nil
	case []uint64:
		return Arange[uint64](n), nil
	case []float32:
		return Arange[float32](n), nil
	case []float64:
		return Arange[float64](n), nil
	}
	return nil, fmt.Errorf("%w: %s", zarr.ErrUnsupportedDtype, dt)
}
