// Package local reads catalog snapshots from a directory laid out as
// <root>/<semester>/<prefix>.yaml (or .json).
package local

import (
	"context"
	"os"
	"path/filepath"

	"github.com/agentstation/seatwatch/pkg/catalog"
	"github.com/agentstation/seatwatch/pkg/constants"
	"github.com/agentstation/seatwatch/pkg/errors"
)

// Source loads snapshots from files.
type Source struct {
	root string
}

// Option configures a local source.
type Option func(*Source)

// New creates a source rooted at dir.
func New(dir string, opts ...Option) *Source {
	s := &Source{root: dir}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the first existing snapshot file for semester/prefix, or the
// YAML path when none exists.
func (s *Source) Path(semester, prefix string) string {
	base := filepath.Join(s.root, semester, prefix)
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		if _, err := os.Stat(base + ext); err == nil {
			return base + ext
		}
	}
	return base + ".yaml"
}

// Fetch implements seatwatch.Source.
func (s *Source) Fetch(ctx context.Context, semester, prefix string) (catalog.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path(semester, prefix)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errors.FetchError{Semester: semester, Prefix: prefix, Message: "read " + path, Err: err}
	}
	c, err := catalog.Decode(data)
	if err != nil {
		return nil, &errors.FetchError{Semester: semester, Prefix: prefix, Message: "decode " + path, Err: err}
	}
	return c, nil
}

// Save writes c as the snapshot for semester/prefix.
func (s *Source) Save(semester, prefix string, c catalog.Catalog) error {
	data, err := catalog.Encode(c, semester, prefix)
	if err != nil {
		return err
	}
	path := filepath.Join(s.root, semester, prefix+".yaml")
	if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
		return err
	}
	return os.WriteFile(path, data, constants.FilePermissions)
}
