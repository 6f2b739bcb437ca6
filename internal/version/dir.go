// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package version

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/samber/oops"
)

// DirResolver resolves versions from a papp software directory. Each deployed
// build lives in its own subdirectory holding a papp.yaml manifest, e.g.
//
//	<root>/demo_plugin-1.2.0/papp.yaml
//	<root>/demo_plugin-1.2.0/demo_plugin/server_main.lua
//
// The directory is rescanned on every call, so a build copied in by a
// deployment becomes visible to the next load.
type DirResolver struct {
	root string
}

// NewDirResolver creates a resolver over root.
func NewDirResolver(root string) *DirResolver {
	return &DirResolver{root: root}
}

// Root returns the software directory.
func (r *DirResolver) Root() string {
	return r.root
}

// ResolveLatest implements Resolver.
func (r *DirResolver) ResolveLatest(ctx context.Context, name string) (*Info, error) {
	all, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}
	return Latest(all[name]), nil
}

// Names implements Lister.
func (r *DirResolver) Names(ctx context.Context) ([]string, error) {
	all, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Versions returns every deployed build of name.
func (r *DirResolver) Versions(ctx context.Context, name string) ([]*Info, error) {
	all, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}
	return all[name], nil
}

// scan reads every manifest under root. Invalid builds are logged and skipped.
func (r *DirResolver) scan(ctx context.Context) (map[string][]*Info, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, oops.Code("VERSION_SCAN_FAILED").In("version").With("dir", r.root).Wrap(err)
	}

	found := make(map[string][]*Info)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dir := filepath.Join(r.root, entry.Name())
		data, err := os.ReadFile(filepath.Join(dir, ManifestFile)) //nolint:gosec // path is built from ReadDir entries
		if err != nil {
			slog.DebugContext(ctx, "skipping build without manifest", "dir", entry.Name(), "error", err)
			continue
		}

		if err := ValidateSchema(data); err != nil {
			slog.WarnContext(ctx, "skipping build with manifest that fails schema validation",
				"dir", entry.Name(),
				"error", FormatSchemaError(err))
			continue
		}

		m, err := ParseManifest(data)
		if err != nil {
			slog.WarnContext(ctx, "skipping build with invalid manifest", "dir", entry.Name(), "error", err)
			continue
		}
		found[m.Name] = append(found[m.Name], m.Info(dir))
	}
	return found, nil
}
