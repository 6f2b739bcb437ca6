// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package version

import (
	"context"
	"sort"
)

// Chain consults resolvers in order. The first resolver that knows a papp
// wins, so compiled-in papps can be listed ahead of a deployment store.
type Chain []Resolver

// ResolveLatest implements Resolver.
func (c Chain) ResolveLatest(ctx context.Context, name string) (*Info, error) {
	for _, r := range c {
		info, err := r.ResolveLatest(ctx, name)
		if err != nil {
			return nil, err
		}
		if info != nil {
			return info, nil
		}
	}
	return nil, nil
}

// Names implements Lister. Resolvers that do not implement Lister are skipped.
func (c Chain) Names(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, r := range c {
		lister, ok := r.(Lister)
		if !ok {
			continue
		}
		names, err := lister.Names(ctx)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			seen[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
