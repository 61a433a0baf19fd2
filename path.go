package zarr

import (
	"fmt"
	"strings"
)

// Path is a normalized logical path into a store. The root is the empty Path
type Path []string

// NewPath normalizes a logical path so every store sees the same keys:
// backslashes become forward slashes, leading & trailing slashes are
// stripped and runs of slashes collapse into one
func NewPath(posix string) (Path, error) {
	posix = strings.ReplaceAll(posix, `\`, "/")
	p := Path{}
	for _, seg := range strings.Split(posix, "/") {
		switch seg {
		case "":
			continue
		case ".", "..":
			return nil, fmt.Errorf("invalid path %q: relative segment %q", posix, seg)
		}
		p = append(p, seg)
	}
	return p, nil
}

func (p Path) String() string {
	return strings.Join(p, "/")
}

func (p Path) Shift() (head string, ch Path) {
	switch len(p) {
	case 0:
		return "", nil
	case 1:
		return p[0], nil
	default:
		return p[0], p[1:]
	}
}

// Join returns a new path with elems appended. p is not modified
func (p Path) Join(elems ...string) Path {
	joined := make(Path, 0, len(p)+len(elems))
	joined = append(joined, p...)
	return append(joined, elems...)
}

// Key is the store key for a metadata document or chunk beneath p
func (p Path) Key(name string) string {
	return p.Join(name).String()
}

// Name is the last path segment, empty for the root
func (p Path) Name() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}
