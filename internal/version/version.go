// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package version resolves the latest deployed build of a papp.
package version

import (
	"context"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
)

// Runtime identifies how a papp's entry object is constructed.
type Runtime string

// Supported runtimes.
const (
	RuntimeGo     Runtime = "go"
	RuntimeLua    Runtime = "lua"
	RuntimeBinary Runtime = "binary"
)

// maxNameLength is the maximum allowed length for papp names.
const maxNameLength = 64

// namePattern validates papp names: lowercase letter first, then lowercase
// letters, digits or underscores. Names double as tuple prefixes and
// endpoint filter values, so they stay identifier-like.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidateName checks that name is a valid papp name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return oops.Code("PAPP_INVALID_NAME").In("version").With("papp", name).
			Errorf("papp name %q must start with a-z and contain only a-z, 0-9 and underscores", name)
	}
	if len(name) > maxNameLength {
		return oops.Code("PAPP_INVALID_NAME").In("version").With("papp", name).
			Errorf("papp name must be %d characters or less, got %d", maxNameLength, len(name))
	}
	return nil
}

// EntryPattern is the JSON Schema pattern for a manifest entry: a relative
// slash-separated path with no "." or ".." segment.
const EntryPattern = `^[^/\\]*[^/\\.][^/\\]*(/[^/\\]*[^/\\.][^/\\]*)*$`

var entryPattern = regexp.MustCompile(EntryPattern)

// ValidateEntry checks that entry names a file inside the install
// directory. An empty entry selects the runtime default.
func ValidateEntry(entry string) error {
	if entry == "" {
		return nil
	}
	if !filepath.IsLocal(entry) || !entryPattern.MatchString(entry) {
		return oops.Code("PAPP_INVALID_ENTRY").In("version").With("entry", entry).
			Errorf("entry %q must be a relative path inside the install directory", entry)
	}
	return nil
}

// Info describes one deployed build of a papp. Values returned by a Resolver
// must not be modified.
type Info struct {
	Name         string
	Title        string
	Version      string
	Dir          string
	Runtime      Runtime
	Entry        string
	BuildNumber  string
	BuildDate    string
	Creator      string
	Website      string
	Capabilities []string
}

// EntryPath returns the path of the runtime entry file under Dir. When Entry
// is unset it defaults to <name>/server_main.<ext>. An entry that escapes Dir
// is rejected.
func (i *Info) EntryPath(ext string) (string, error) {
	if err := ValidateEntry(i.Entry); err != nil {
		return "", oops.With("papp", i.Name).Wrap(err)
	}
	entry := i.Entry
	if entry == "" {
		entry = filepath.Join(i.Name, "server_main"+ext)
	}
	return filepath.Join(i.Dir, entry), nil
}

// Resolver finds the latest deployed version of a papp.
//
// ResolveLatest returns (nil, nil) when the papp has no deployed build; that is
// an expected outcome, not an error. Implementations must not mutate state.
type Resolver interface {
	ResolveLatest(ctx context.Context, name string) (*Info, error)
}

// Lister is implemented by resolvers that can enumerate deployed papps.
type Lister interface {
	Names(ctx context.Context) ([]string, error)
}

// Latest returns the info with the highest semantic version. Entries whose
// version does not parse sort below every valid version.
func Latest(infos []*Info) *Info {
	var (
		best    *Info
		bestVer *semver.Version
	)
	for _, info := range infos {
		v, err := semver.NewVersion(info.Version)
		if err != nil {
			if best == nil {
				best = info
			}
			continue
		}
		if bestVer == nil || v.GreaterThan(bestVer) {
			best, bestVer = info, v
		}
	}
	return best
}

// MemoryResolver holds published versions in memory. It backs compiled-in
// papps and tests.
//
// MemoryResolver is safe for concurrent use.
type MemoryResolver struct {
	versions map[string][]*Info
	mu       sync.RWMutex
}

// NewMemoryResolver creates an empty resolver.
func NewMemoryResolver() *MemoryResolver {
	return &MemoryResolver{versions: make(map[string][]*Info)}
}

// Publish records a deployed version. The info is copied.
func (r *MemoryResolver) Publish(info Info) error {
	if err := ValidateName(info.Name); err != nil {
		return err
	}
	if info.Runtime == "" {
		info.Runtime = RuntimeGo
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[info.Name] = append(r.versions[info.Name], &info)
	return nil
}

// Withdraw forgets every version of name.
func (r *MemoryResolver) Withdraw(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.versions, name)
}

// ResolveLatest implements Resolver.
func (r *MemoryResolver) ResolveLatest(_ context.Context, name string) (*Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Latest(r.versions[name]), nil
}

// Names implements Lister.
func (r *MemoryResolver) Names(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.versions))
	for name := range r.versions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
