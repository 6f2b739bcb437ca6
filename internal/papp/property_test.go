// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package papp_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/holomush/papphost/internal/endpoint"
	"github.com/holomush/papphost/internal/papp"
	"github.com/holomush/papphost/internal/tuple"
)

type loadPlan struct {
	endpoints int
	tuples    int
	violate   bool
}

// TestLoader_OwnershipMatchesRegistries drives random load/unload sequences
// and checks that the shared registries always hold exactly what the loaded
// papps own.
func TestLoader_OwnershipMatchesRegistries(t *testing.T) {
	names := []string{"alpha", "beta", "gamma"}

	rapid.Check(t, func(rt *rapid.T) {
		h := newHarness(t)
		plans := make(map[string]loadPlan)
		for _, name := range names {
			h.deploy(t, name, "1.0.0", withStart(func(_ context.Context, api *papp.PlatformAPI) error {
				plan := plans[api.Name()]
				for i := range plan.endpoints {
					f := endpoint.Filter{papp.FilterKey: api.Name(), "n": fmt.Sprint(i)}
					if _, err := api.RegisterEndpoint(f, func(context.Context, endpoint.Payload) error { return nil }); err != nil {
						return err
					}
				}
				for i := range plan.tuples {
					if err := api.RegisterTuple(tuple.Of[pingTuple](fmt.Sprintf("%s.T%d", api.Name(), i))); err != nil {
						return err
					}
				}
				if plan.violate {
					_, err := api.RegisterEndpoint(endpoint.Filter{"action": "stray"},
						func(context.Context, endpoint.Payload) error { return nil })
					return err
				}
				return nil
			}))
		}

		ctx := context.Background()
		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for range steps {
			name := rapid.SampledFrom(names).Draw(rt, "name")
			switch rapid.SampledFrom([]string{"load", "unload"}).Draw(rt, "op") {
			case "load":
				plan := loadPlan{
					endpoints: rapid.IntRange(0, 3).Draw(rt, "endpoints"),
					tuples:    rapid.IntRange(0, 2).Draw(rt, "tuples"),
					violate:   rapid.Float64Range(0, 1).Draw(rt, "violate") < 0.2,
				}
				plans[name] = plan
				err := h.loader.Load(ctx, name)
				if plan.violate {
					require.ErrorIs(rt, err, papp.ErrNamespaceViolation)
					_, loaded := h.loader.Handle(name)
					require.False(rt, loaded)
				} else {
					require.NoError(rt, err)
				}
			case "unload":
				require.NoError(rt, h.loader.Unload(ctx, name))
			}

			checkOwnership(rt, h)
		}
	})
}

func checkOwnership(rt *rapid.T, h *harness) {
	owned := make(map[*endpoint.Endpoint]string)
	var ownedTuples []string
	for _, name := range h.loader.Loaded() {
		own, ok := h.loader.Ownership(name)
		require.True(rt, ok)
		for _, e := range own.Endpoints {
			owned[e] = name
		}
		ownedTuples = append(ownedTuples, own.Tuples...)
		require.NoError(rt, papp.ValidateNamespace(name, endpointFilters(own.Endpoints), own.Tuples))
	}

	all := h.platform.Endpoints.All()
	assert.Len(rt, all, len(owned))
	for _, e := range all {
		_, ok := owned[e]
		assert.True(rt, ok, "endpoint %s has no owner", e.Filter())
	}

	sort.Strings(ownedTuples)
	if ownedTuples == nil {
		ownedTuples = []string{}
	}
	assert.Equal(rt, ownedTuples, h.platform.Tuples.Names())
	assert.Equal(rt, h.loader.Loaded(), h.platform.Resources.Segments())
}

func endpointFilters(endpoints []*endpoint.Endpoint) []endpoint.Filter {
	out := make([]endpoint.Filter, len(endpoints))
	for i, e := range endpoints {
		out[i] = e.Filter()
	}
	return out
}

// TestLoader_ConcurrentRegistrationIsNotMisattributed loads papps while an
// already loaded papp keeps registering live endpoints.
func TestLoader_ConcurrentRegistrationIsNotMisattributed(t *testing.T) {
	h := newHarness(t)
	for _, name := range []string{"alpha", "beta", "gamma"} {
		h.deploy(t, name, "1.0.0", withStart(registerPing))
	}
	ctx := context.Background()
	require.NoError(t, h.loader.Load(ctx, "beta"))
	beta := h.entry(t, "beta", 0).api

	const live = 20
	var wg sync.WaitGroup
	errs := make(chan error, live+2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range live {
			f := endpoint.Filter{papp.FilterKey: "beta", "n": fmt.Sprint(i)}
			_, err := beta.RegisterEndpoint(f, func(context.Context, endpoint.Payload) error { return nil })
			errs <- err
		}
	}()
	for _, name := range []string{"alpha", "gamma"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.loader.Load(ctx, name)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	for _, name := range []string{"alpha", "gamma"} {
		own, ok := h.loader.Ownership(name)
		require.True(t, ok)
		assert.Len(t, own.Endpoints, 1, name)
		assert.Equal(t, []string{name + ".PingTuple"}, own.Tuples)
	}
	own, ok := h.loader.Ownership("beta")
	require.True(t, ok)
	assert.Len(t, own.Endpoints, live+1)
	assert.Len(t, h.platform.Endpoints.All(), live+3)

	require.NoError(t, h.loader.Unload(ctx, "beta"))
	assert.Len(t, h.platform.Endpoints.All(), 2)
	assert.ElementsMatch(t, []string{"alpha.PingTuple", "gamma.PingTuple"}, h.platform.Tuples.Names())
}
