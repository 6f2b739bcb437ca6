// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/papphost/internal/admin"
	"github.com/holomush/papphost/internal/endpoint"
	"github.com/holomush/papphost/internal/papp"
	"github.com/holomush/papphost/internal/papp/lua"
	"github.com/holomush/papphost/internal/version"
)

const pingScript = `
title = "Lua Ping"
function start()
    papp.endpoint({plugin = papp.name, action = "ping"}, function(payload) end)
    papp.tuple(papp.name .. ".PingTuple")
end
function stop() end
`

// testEnv holds a migrated Postgres version store and a software directory.
type testEnv struct {
	ctx         context.Context
	cancel      context.CancelFunc
	container   testcontainers.Container
	resolver    *version.PostgresResolver
	softwareDir string
}

func setupTestEnv() (*testEnv, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	env := &testEnv{ctx: ctx, cancel: cancel}

	dir, err := os.MkdirTemp("", "papphost-test-*")
	if err != nil {
		cancel()
		return nil, err
	}
	env.softwareDir = dir

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("papphost_test"),
		postgres.WithUsername("papphost"),
		postgres.WithPassword("papphost"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	env.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		env.cleanup()
		return nil, err
	}

	migrator, err := version.NewMigrator(connStr)
	if err != nil {
		env.cleanup()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		env.cleanup()
		return nil, err
	}
	_ = migrator.Close()

	env.resolver, err = version.NewPostgresResolver(ctx, connStr, env.softwareDir)
	if err != nil {
		env.cleanup()
		return nil, err
	}
	return env, nil
}

func (e *testEnv) cleanup() {
	if e.resolver != nil {
		e.resolver.Close()
	}
	if e.container != nil {
		_ = e.container.Terminate(context.Background())
	}
	_ = os.RemoveAll(e.softwareDir)
	e.cancel()
}

// deploy writes a Lua build into the software directory and publishes it.
func (e *testEnv) deploy(name, ver string) {
	dirName := name + "-" + ver
	scriptDir := filepath.Join(e.softwareDir, dirName, name)
	Expect(os.MkdirAll(scriptDir, 0o755)).To(Succeed())
	Expect(os.WriteFile(filepath.Join(scriptDir, "server_main.lua"), []byte(pingScript), 0o600)).To(Succeed())

	Expect(e.resolver.Publish(e.ctx, version.Info{
		Name:    name,
		Title:   "Lua Ping",
		Version: ver,
		Runtime: version.RuntimeLua,
	}, dirName)).To(Succeed())
}

var _ = Describe("papphost with a Postgres version store", Ordered, func() {
	var (
		env      *testEnv
		platform *papp.Platform
		loader   *papp.Loader
		server   *httptest.Server
	)

	BeforeAll(func() {
		var err error
		env, err = setupTestEnv()
		Expect(err).NotTo(HaveOccurred())

		platform = papp.NewPlatform(nil)
		loader, err = papp.NewLoader(platform, env.resolver,
			papp.WithRuntime(version.RuntimeLua, lua.NewRuntime()),
			papp.WithHookTimeout(5*time.Second))
		Expect(err).NotTo(HaveOccurred())

		server = httptest.NewServer(admin.NewHandler(loader, platform.Resources, nil))
	})

	AfterAll(func() {
		if server != nil {
			server.Close()
		}
		if loader != nil {
			Expect(loader.Close(context.Background())).To(Succeed())
		}
		if env != nil {
			env.cleanup()
		}
	})

	It("loads every published papp", func() {
		env.deploy("lua_ping", "1.0.0")

		Expect(loader.LoadAll(env.ctx)).To(Succeed())
		Expect(loader.Loaded()).To(Equal([]string{"lua_ping"}))
		Expect(platform.Tuples.Names()).To(Equal([]string{"lua_ping.PingTuple"}))

		n, err := platform.Endpoints.Dispatch(env.ctx, endpoint.Payload{
			Filter: endpoint.Filter{papp.FilterKey: "lua_ping", "action": "ping"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
	})

	It("reloads a newly published version over HTTP", func() {
		before, ok := loader.Handle("lua_ping")
		Expect(ok).To(BeTrue())

		env.deploy("lua_ping", "1.1.0")
		resp, err := http.Post(server.URL+"/api/papps/lua_ping/reload", "application/json",
			strings.NewReader(`{"version":"1.1.0"}`))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var view admin.PappView
		Expect(json.NewDecoder(resp.Body).Decode(&view)).To(Succeed())
		Expect(view.Version).To(Equal("1.1.0"))
		Expect(view.LoadID).NotTo(Equal(before.LoadID()))
		Expect(platform.Endpoints.Len()).To(Equal(1))
	})

	It("unloads over HTTP and leaves the registries clean", func() {
		req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/papps/lua_ping", nil)
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		_ = resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		Expect(loader.Loaded()).To(BeEmpty())
		Expect(platform.Endpoints.Len()).To(BeZero())
		Expect(platform.Tuples.Names()).To(BeEmpty())
	})
})
