package zarr

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Group is a handle to a node that holds arrays and other groups
type Group struct {
	path  Path
	store Store
	mode  PersistenceMode
}

// OpenGroup opens or creates the group at path, following python zarr's
// open_group semantics for mode:
//   r  - read only, group must exist
//   r+ - read/write, group must exist
//   a  - read/write, group is created if missing
//   w  - group is created, anything at path is removed first
//   w- - group is created, fails if a node exists at path
func OpenGroup(store Store, path string, mode PersistenceMode) (*Group, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}

	g := &Group{path: p, store: store, mode: mode}
	switch mode {
	case ModeRead, ModeReadWrite:
		meta := &GroupMeta{}
		if err := getJSON(store, p.Key(string(MTGroup)), meta); err != nil {
			return nil, errors.Wrapf(err, "opening group %q", p)
		}
		if meta.ZarrFormat != ZarrFormat {
			return nil, fmt.Errorf("%w: group %q has zarr_format %d", ErrInvalidMeta, p, meta.ZarrFormat)
		}
		return g, nil
	case ModeReadWriteCreate:
		if groupExists(store, p) {
			return g, nil
		}
		if nodeExists(store, p) {
			return nil, fmt.Errorf("%w: array at %q", ErrExists, p)
		}
	case ModeWrite:
		if err := store.Delete(p.String()); err != nil {
			return nil, errors.Wrapf(err, "clearing %q", p)
		}
	case ModeWriteFail:
		if nodeExists(store, p) {
			return nil, fmt.Errorf("%w: %q", ErrExists, p)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	if err := requireParentGroups(store, p); err != nil {
		return nil, err
	}
	if err := putJSON(store, p.Key(string(MTGroup)), GroupMeta{ZarrFormat: ZarrFormat}); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Group) Path() string { return g.path.String() }

func (g *Group) Mode() PersistenceMode { return g.mode }

func (g *Group) Info() string {
	return fmt.Sprintf("<zarr-go.Group %q>", "/"+g.Path())
}

// childMode is the creation mode for nodes created inside g. Groups opened
// with w overwrite children, everything else refuses to
func (g *Group) childMode() PersistenceMode {
	if g.mode == ModeWrite {
		return ModeWrite
	}
	return ModeWriteFail
}

// openMode is the mode children of g are opened with
func (g *Group) openMode() PersistenceMode {
	if g.mode == ModeRead {
		return ModeRead
	}
	return ModeReadWrite
}

// CreateArray declares a new array named name inside the group
func (g *Group) CreateArray(name string, meta *ArrayMeta) (*Array, error) {
	if !g.mode.Writable() {
		return nil, fmt.Errorf("%w: group %q", ErrReadOnly, g.path)
	}
	if err := validName(name); err != nil {
		return nil, err
	}
	return CreateArray(g.store, g.path.Join(name).String(), meta, g.childMode())
}

// Array opens the child array name
func (g *Group) Array(name string) (*Array, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	return OpenArray(g.store, g.path.Join(name).String(), g.openMode())
}

// CreateGroup declares a new sub-group named name
func (g *Group) CreateGroup(name string) (*Group, error) {
	if !g.mode.Writable() {
		return nil, fmt.Errorf("%w: group %q", ErrReadOnly, g.path)
	}
	if err := validName(name); err != nil {
		return nil, err
	}
	return OpenGroup(g.store, g.path.Join(name).String(), g.childMode())
}

// Group opens the child group name
func (g *Group) Group(name string) (*Group, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	return OpenGroup(g.store, g.path.Join(name).String(), g.openMode())
}

// Members lists the names of child arrays and child groups, sorted
func (g *Group) Members() (arrays, groups []string, err error) {
	keys, err := g.store.Keys()
	if err != nil {
		return nil, nil, err
	}

	prefix := ""
	if len(g.path) > 0 {
		prefix = g.path.String() + "/"
	}
	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rel := strings.Split(strings.TrimPrefix(key, prefix), "/")
		if len(rel) != 2 {
			continue
		}
		switch MetaType(rel[1]) {
		case MTArray:
			arrays = append(arrays, rel[0])
		case MTGroup:
			groups = append(groups, rel[0])
		}
	}
	sort.Strings(arrays)
	sort.Strings(groups)
	return arrays, groups, nil
}

func (g *Group) Attrs() (Attributes, error) {
	return readAttrs(g.store, g.path)
}

func (g *Group) SetAttrs(attrs Attributes) error {
	if !g.mode.Writable() {
		return fmt.Errorf("%w: group %q", ErrReadOnly, g.path)
	}
	return putJSON(g.store, g.path.Key(string(MTAttributes)), attrs)
}

// Consolidate gathers every metadata document beneath the group into a single
// .zmetadata key, so readers can load the hierarchy with one request. Keys in
// the consolidated document are relative to the group
func (g *Group) Consolidate() (*ConsolidatedMetadata, error) {
	if !g.mode.Writable() {
		return nil, fmt.Errorf("%w: group %q", ErrReadOnly, g.path)
	}
	keys, err := g.store.Keys()
	if err != nil {
		return nil, err
	}

	cm := &ConsolidatedMetadata{
		ConsolidatedFormat: ConsolidatedFormat,
		Metadata:           map[string]MetaTyper{},
	}
	prefix := g.path.String()
	for _, key := range keys {
		if !hasKeyPrefix(key, prefix) {
			continue
		}
		kt, ok := KeyMetaType(key)
		if !ok {
			continue
		}
		data, err := getBytes(g.store, key)
		if err != nil {
			return nil, err
		}
		mt, err := decodeMeta(kt, data)
		if err != nil {
			return nil, errors.Wrapf(err, "reading %q", key)
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
		cm.Metadata[rel] = mt
	}

	if err := putJSON(g.store, g.path.Key(string(MTMetadata)), cm); err != nil {
		return nil, err
	}
	return cm, nil
}

// OpenConsolidated reads the consolidated metadata document stored at path
func OpenConsolidated(store Store, path string) (*ConsolidatedMetadata, error) {
	p, err := NewPath(path)
	if err != nil {
		return nil, err
	}
	cm := &ConsolidatedMetadata{}
	if err := getJSON(store, p.Key(string(MTMetadata)), cm); err != nil {
		return nil, err
	}
	if cm.ConsolidatedFormat != ConsolidatedFormat {
		return nil, fmt.Errorf("%w: unsupported zarr_consolidated_format %d", ErrInvalidMeta, cm.ConsolidatedFormat)
	}
	return cm, nil
}

func groupExists(store Store, p Path) bool {
	f, err := store.Get(p.Key(string(MTGroup)))
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// requireParentGroups creates any missing group nodes above p
func requireParentGroups(store Store, p Path) error {
	for i := 0; i < len(p); i++ {
		parent := p[:i]
		if groupExists(store, parent) {
			continue
		}
		if nodeExists(store, parent) {
			return fmt.Errorf("%w: array at %q", ErrExists, parent)
		}
		if err := putJSON(store, parent.Key(string(MTGroup)), GroupMeta{ZarrFormat: ZarrFormat}); err != nil {
			return err
		}
	}
	return nil
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid node name %q", name)
	}
	if _, ok := KeyMetaType("/" + name); ok || MetaType(name) == MTMetadata {
		return fmt.Errorf("invalid node name %q: reserved", name)
	}
	return nil
}

func getBytes(store Store, key string) ([]byte, error) {
	f, err := store.Get(key)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
