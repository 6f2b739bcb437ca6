// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package papp_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/papphost/internal/endpoint"
	"github.com/holomush/papphost/internal/papp"
	"github.com/holomush/papphost/internal/tuple"
	"github.com/holomush/papphost/internal/version"
)

var _ = Describe("Papp lifecycle", func() {
	var (
		h   *harness
		ctx context.Context
	)

	BeforeEach(func() {
		h = newHarness(GinkgoT())
		ctx = context.Background()
	})

	Describe("demo_plugin", func() {
		var pinged chan []byte

		BeforeEach(func() {
			pinged = make(chan []byte, 1)
			h.deploy(GinkgoT(), "demo_plugin", "1.0.0", withStart(func(ctx context.Context, api *papp.PlatformAPI) error {
				if _, err := api.RegisterEndpoint(
					endpoint.Filter{papp.FilterKey: "demo_plugin", "action": "ping"},
					func(_ context.Context, p endpoint.Payload) error {
						pinged <- p.Body
						return nil
					}); err != nil {
					return err
				}
				return api.RegisterTuple(tuple.Of[pingTuple]("demo_plugin.PingTuple"))
			}))
		})

		It("is wired into the registries once loaded", func() {
			Expect(h.loader.Load(ctx, "demo_plugin")).To(Succeed())

			Expect(h.loader.Loaded()).To(Equal([]string{"demo_plugin"}))
			Expect(h.platform.Tuples.Names()).To(ContainElement("demo_plugin.PingTuple"))

			n, err := h.platform.Endpoints.Dispatch(ctx, endpoint.Payload{
				Filter: endpoint.Filter{"plugin": "demo_plugin", "action": "ping", "from": "test"},
				Body:   []byte("hello"),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
			Eventually(pinged).Should(Receive(Equal([]byte("hello"))))
		})

		It("leaves nothing behind after unload", func() {
			Expect(h.loader.Load(ctx, "demo_plugin")).To(Succeed())
			Expect(h.loader.Unload(ctx, "demo_plugin")).To(Succeed())

			Expect(h.loader.Loaded()).To(BeEmpty())
			Expect(filters(h.platform.Endpoints)).NotTo(ContainElement(ContainSubstring("demo_plugin")))
			Expect(h.platform.Tuples.Names()).NotTo(ContainElement(HavePrefix("demo_plugin")))
			Expect(h.platform.Resources.Segments()).To(BeEmpty())

			rec := httptest.NewRecorder()
			h.platform.Resources.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/demo_plugin/", nil))
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("serves the newest version after a redeploy", func() {
			Expect(h.loader.Load(ctx, "demo_plugin")).To(Succeed())
			Expect(h.resolver.Publish(version.Info{Name: "demo_plugin", Version: "2.0.0"})).To(Succeed())
			Expect(h.resolver.Publish(version.Info{Name: "demo_plugin", Version: "1.5.0"})).To(Succeed())

			Expect(h.loader.NotifyVersionUpdate(ctx, "demo_plugin", "2.0.0")).To(Succeed())

			handle, ok := h.loader.Handle("demo_plugin")
			Expect(ok).To(BeTrue())
			Expect(handle.Info().Version).To(Equal("2.0.0"))
			Expect(h.platform.Endpoints.Len()).To(Equal(1))
			Expect(h.platform.Tuples.Names()).To(Equal([]string{"demo_plugin.PingTuple"}))
		})
	})

	Describe("a papp that breaks the naming contract", func() {
		BeforeEach(func() {
			h.deploy(GinkgoT(), "rogue", "1.0.0", withStart(func(_ context.Context, api *papp.PlatformAPI) error {
				_, err := api.RegisterEndpoint(endpoint.Filter{papp.FilterKey: "demo_plugin", "action": "ping"},
					func(context.Context, endpoint.Payload) error { return nil })
				return err
			}))
		})

		It("is rejected before anything is mounted or registered", func() {
			err := h.loader.Load(ctx, "rogue")
			Expect(errors.Is(err, papp.ErrNamespaceViolation)).To(BeTrue())

			Expect(h.loader.Loaded()).To(BeEmpty())
			Expect(h.platform.Endpoints.Len()).To(BeZero())
			Expect(h.platform.Resources.Segments()).To(BeEmpty())
			Expect(h.entry(GinkgoT(), "rogue", 0).stops.Load()).To(BeEquivalentTo(1))
		})
	})

	Describe("papps sharing the platform", func() {
		BeforeEach(func() {
			for _, name := range []string{"chat", "inbox", "status"} {
				h.deploy(GinkgoT(), name, "1.0.0", withStart(registerPing))
			}
			Expect(h.loader.LoadAll(ctx)).To(Succeed())
		})

		It("keeps ownership disjoint", func() {
			seen := map[*endpoint.Endpoint]string{}
			for _, name := range h.loader.Loaded() {
				own, ok := h.loader.Ownership(name)
				Expect(ok).To(BeTrue())
				for _, e := range own.Endpoints {
					Expect(seen).NotTo(HaveKey(e))
					seen[e] = name
				}
			}
			Expect(seen).To(HaveLen(3))
		})

		It("unloads one without touching the others", func() {
			Expect(h.loader.Unload(ctx, "inbox")).To(Succeed())

			Expect(h.loader.Loaded()).To(Equal([]string{"chat", "status"}))
			Expect(h.platform.Tuples.Names()).To(Equal([]string{"chat.PingTuple", "status.PingTuple"}))
			Expect(h.loader.TitleURLs()).To(Equal([]papp.TitleURL{
				{Name: "chat", Title: "Title of chat", URL: "/chat"},
				{Name: "status", Title: "Title of status", URL: "/status"},
			}))
		})

		It("unloads everything on close", func() {
			Expect(h.loader.Close(ctx)).To(Succeed())
			Expect(h.loader.Loaded()).To(BeEmpty())
			Expect(h.platform.Endpoints.Len()).To(BeZero())
			Expect(h.platform.Tuples.Names()).To(BeEmpty())
		})
	})

	It("refuses a second loader on the same platform", func() {
		_, err := papp.NewLoader(h.platform, h.resolver)
		Expect(errors.Is(err, papp.ErrAlreadyConstructed)).To(BeTrue())
	})
})
