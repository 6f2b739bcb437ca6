// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package noop_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/papphost/internal/endpoint"
	"github.com/holomush/papphost/internal/papp"
	"github.com/holomush/papphost/internal/papps/noop"
	"github.com/holomush/papphost/internal/version"
)

func TestNoop_LoadServeUnload(t *testing.T) {
	rt := papp.NewGoRuntime()
	resolver := version.NewMemoryResolver()
	require.NoError(t, noop.Register(rt, resolver))

	platform := papp.NewPlatform(nil)
	loader, err := papp.NewLoader(platform, resolver, papp.WithRuntime(version.RuntimeGo, rt))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, loader.Load(ctx, noop.Name))
	assert.Equal(t, []string{"papp_noop.StatusTuple"}, platform.Tuples.Names())

	n, err := platform.Endpoints.Dispatch(ctx, endpoint.Payload{Filter: endpoint.Filter{"plugin": noop.Name, "action": "status"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec := httptest.NewRecorder()
	platform.Resources.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/papp_noop/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Type string           `json:"_tt"`
		Data noop.StatusTuple `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "papp_noop.StatusTuple", env.Type)
	assert.Equal(t, int64(1), env.Data.Requests)

	h, ok := loader.Handle(noop.Name)
	require.True(t, ok)
	assert.Equal(t, h.LoadID(), env.Data.LoadID)

	require.NoError(t, loader.Unload(ctx, noop.Name))
	assert.Empty(t, platform.Tuples.Names())
	assert.Zero(t, platform.Endpoints.Len())
}
