package fixture

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/tailscale/hujson"

	zarr "github.com/qri-io/zarrgen"
)

const (
	// DefaultOutput is the store directory written when no output is configured
	DefaultOutput = "big_endian_test.zarr"
	// DefaultArrayName is the name of the generated array inside the root group
	DefaultArrayName = "big_endian_var"
	// DefaultDtype is big-endian signed 16-bit integer
	DefaultDtype = ">i2"
	// DefaultLength is both the array length and the chunk length
	DefaultLength = 10
)

// ErrConfigInvalid wraps every config loading and validation failure
var ErrConfigInvalid = errors.New("invalid config")

// Config describes the store a Generate call produces. Every field has a
// default, a zero Config is not valid on its own
type Config struct {
	// Output is the store directory. Relative paths resolve against the
	// working directory
	Output string      `json:"output"`
	Array  ArrayConfig `json:"array"`
	// Consolidate writes a .zmetadata document at the store root after the
	// array is written
	Consolidate bool `json:"consolidate"`
}

// ArrayConfig describes the single one-dimensional array in the fixture
type ArrayConfig struct {
	Name   string `json:"name"`
	Length int    `json:"length"`
	// Chunk is the chunk length, equal to Length for a single-chunk array
	Chunk int    `json:"chunk"`
	Dtype string `json:"dtype"`
	// Compressor is a numcodecs id ("zstd", "gzip"), empty for raw chunks
	Compressor string `json:"compressor"`
}

// Default is the configuration of the big-endian test fixture
func Default() Config {
	return Config{
		Output: DefaultOutput,
		Array: ArrayConfig{
			Name:   DefaultArrayName,
			Length: DefaultLength,
			Chunk:  DefaultLength,
			Dtype:  DefaultDtype,
		},
	}
}

// Load reads a JSON-with-comments config file and lays it over the defaults.
// Fields missing from the file keep their default values
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", ErrConfigInvalid, path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes JSON-with-comments over the defaults and validates the result
func Parse(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w: invalid JSONC: %w", ErrConfigInvalid, err)
	}

	cfg := Default()
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: invalid JSON: %w", ErrConfigInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the config describes an array Generate can produce
func (c Config) Validate() error {
	if c.Output == "" {
		return fmt.Errorf("%w: output is empty", ErrConfigInvalid)
	}
	if c.Array.Name == "" {
		return fmt.Errorf("%w: array name is empty", ErrConfigInvalid)
	}
	if c.Array.Length < 0 {
		return fmt.Errorf("%w: array length %d is negative", ErrConfigInvalid, c.Array.Length)
	}
	if c.Array.Chunk <= 0 {
		return fmt.Errorf("%w: chunk length must be positive, got %d", ErrConfigInvalid, c.Array.Chunk)
	}
	if _, err := zarr.NewCompressionMeta(c.Array.Compressor); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}

	dt, err := zarr.ParseDtype(c.Array.Dtype)
	if err != nil {
		return fmt.Errorf("%w: dtype: %w", ErrConfigInvalid, err)
	}
	if err := dt.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}
	if err := checkRange(dt, c.Array.Length); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}
	return nil
}

// ArrayMeta builds the zarr metadata for the configured array
func (c Config) ArrayMeta() (*zarr.ArrayMeta, error) {
	dt, err := zarr.ParseDtype(c.Array.Dtype)
	if err != nil {
		return nil, err
	}
	comp, err := zarr.NewCompressionMeta(c.Array.Compressor)
	if err != nil {
		return nil, err
	}

	meta := zarr.NewArrayMeta([]int{c.Array.Length}, []int{c.Array.Chunk}, dt)
	meta.Compressor = comp
	return meta, nil
}
