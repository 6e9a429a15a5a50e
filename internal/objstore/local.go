package objstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// localBackend persists objects under a root directory, grounded on the
// teacher's local filesystem backend's path-join-and-write shape.
type localBackend struct {
	root string
}

func newLocal(root string) (*localBackend, error) {
	if root == "" {
		root = "./output"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("objstore: create root %q: %w", root, err)
	}
	return &localBackend{root: root}, nil
}

func (l *localBackend) Write(_ context.Context, name string, data []byte) error {
	full := filepath.Join(l.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("objstore: create parent dir for %q: %w", name, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("objstore: write %q: %w", name, err)
	}
	return nil
}

func (l *localBackend) Read(_ context.Context, name string) ([]byte, error) {
	full := filepath.Join(l.root, filepath.FromSlash(name))
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("objstore: read %q: %w", name, err)
	}
	return data, nil
}

func (l *localBackend) List(_ context.Context, prefix string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(l.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			names = append(names, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: list prefix %q: %w", prefix, err)
	}
	return names, nil
}

func (l *localBackend) Close() error { return nil }
