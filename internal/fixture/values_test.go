package fixture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zarr "github.com/qri-io/zarrgen"
)

func TestArange(t *testing.T) {
	assert.Equal(t, []int16{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, Arange[int16](10))
	assert.Equal(t, []float32{0, 1, 2}, Arange[float32](3))
	assert.Empty(t, Arange[uint8](0))
}

func TestValuesFor(t *testing.T) {
	cases := map[string]interface{}{
		">i2": []int16{0, 1, 2},
		"<i2": []int16{0, 1, 2},
		"|i1": []int8{0, 1, 2},
		"|u1": []uint8{0, 1, 2},
		">u8": []uint64{0, 1, 2},
		"<f4": []float32{0, 1, 2},
		">f8": []float64{0, 1, 2},
	}
	for s, want := range cases {
		got, err := valuesFor(zarr.MustParseDtype(s), 3)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}

	_, err := valuesFor(zarr.MustParseDtype("<c8"), 3)
	assert.ErrorIs(t, err, zarr.ErrUnsupportedDtype)
	_, err = valuesFor(zarr.MustParseDtype("|u1"), 257)
	assert.Error(t, err)
	_, err = valuesFor(zarr.MustParseDtype("|u1"), 256)
	assert.NoError(t, err)
}
