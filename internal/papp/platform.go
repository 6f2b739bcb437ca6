// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package papp

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/papphost/internal/endpoint"
	"github.com/holomush/papphost/internal/papp/capability"
	"github.com/holomush/papphost/internal/resource"
	"github.com/holomush/papphost/internal/taskqueue"
	"github.com/holomush/papphost/internal/tuple"
)

// Platform bundles the registries and resource tree shared by every papp.
// A platform is driven by exactly one Loader.
type Platform struct {
	Endpoints *endpoint.Registry
	Tuples    *tuple.Registry
	Resources *resource.Tree
	// Queue runs deferred work for papps. Nil disables task submission.
	Queue *taskqueue.Queue

	claimed atomic.Bool
}

// NewPlatform creates a platform with empty registries.
func NewPlatform(queue *taskqueue.Queue) *Platform {
	return &Platform{
		Endpoints: endpoint.NewRegistry(),
		Tuples:    tuple.NewRegistry(),
		Resources: resource.New(),
		Queue:     queue,
	}
}

func (p *Platform) claim() error {
	if !p.claimed.CompareAndSwap(false, true) {
		return oops.Code(CodeAlreadyConstructed).In("papp").
			Hint("create one loader per platform").
			Wrap(ErrAlreadyConstructed)
	}
	return nil
}

// Ownership lists what a loaded papp registered.
type Ownership struct {
	Endpoints []*endpoint.Endpoint
	Tuples    []string
}

type apiState int

const (
	stateStaging apiState = iota
	stateLive
	stateClosed
)

func (s apiState) String() string {
	switch s {
	case stateStaging:
		return "staging"
	case stateLive:
		return "live"
	default:
		return "closed"
	}
}

// PlatformAPI is the platform as seen by one load of one papp. While the
// papp starts, registrations are staged and only reach the shared
// registries once the loader commits them. After the commit the API is
// live and registrations are validated and applied immediately. After
// unload it rejects everything.
//
// Every registration made through the API is owned by its papp, so
// ownership never depends on what other papps do concurrently.
//
// PlatformAPI is safe for concurrent use.
type PlatformAPI struct {
	name     string
	loadID   ulid.ULID
	logger   *slog.Logger
	platform *Platform
	enforcer *capability.Enforcer
	root     *resource.Tree

	mu        sync.Mutex
	state     apiState
	endpoints []*endpoint.Endpoint
	tuples    []tuple.Type
	queue     *taskqueue.Client
}

func newPlatformAPI(name string, loadID ulid.ULID, logger *slog.Logger, platform *Platform, enforcer *capability.Enforcer) *PlatformAPI {
	return &PlatformAPI{
		name:     name,
		loadID:   loadID,
		logger:   logger,
		platform: platform,
		enforcer: enforcer,
		root:     resource.New(),
	}
}

// Name returns the papp name the API is scoped to.
func (a *PlatformAPI) Name() string {
	return a.name
}

// LoadID identifies this load of the papp.
func (a *PlatformAPI) LoadID() string {
	return a.loadID.String()
}

// Logger returns a logger tagged with the papp name and load id.
func (a *PlatformAPI) Logger() *slog.Logger {
	return a.logger
}

// Resource returns the papp's root resource, mounted at /<name> once the
// papp is loaded.
func (a *PlatformAPI) Resource() *resource.Tree {
	return a.root
}

// MountResource mounts h under the papp's root resource.
func (a *PlatformAPI) MountResource(segment string, h http.Handler) error {
	if err := a.allow("mount resource", capability.ResourceMount); err != nil {
		return err
	}
	return a.root.Mount(segment, h)
}

// RegisterEndpoint registers handler for payloads matching filter. The
// filter must contain FilterKey set to the papp name.
func (a *PlatformAPI) RegisterEndpoint(filter endpoint.Filter, handler endpoint.HandlerFunc) (*endpoint.Endpoint, error) {
	if err := a.allow("register endpoint", capability.EndpointRegister); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, oops.Code("ENDPOINT_INVALID").In("papp").With("papp", a.name).Errorf("endpoint handler cannot be nil")
	}
	e := endpoint.New(filter, handler)

	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case stateClosed:
		return nil, a.closedErr("register endpoint")
	case stateLive:
		if err := validateFilter(a.name, e.Filter()); err != nil {
			return nil, err
		}
		a.platform.Endpoints.Add(e)
	}
	a.endpoints = append(a.endpoints, e)
	return e, nil
}

// RegisterTuple registers a tuple type. Its name must start with the papp
// name.
func (a *PlatformAPI) RegisterTuple(t tuple.Type) error {
	if err := a.allow("register tuple", capability.TupleRegister); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case stateClosed:
		return a.closedErr("register tuple")
	case stateLive:
		if err := validateTupleName(a.name, t.Name); err != nil {
			return err
		}
		if err := a.platform.Tuples.Add(t); err != nil {
			return err
		}
	case stateStaging:
		for _, staged := range a.tuples {
			if staged.Name == t.Name {
				return oops.Code("TUPLE_DUPLICATE").In("papp").With("papp", a.name).With("tuple", t.Name).
					Errorf("tuple %s registered twice", t.Name)
			}
		}
	}
	a.tuples = append(a.tuples, t)
	return nil
}

// Dispatch delivers p to every live endpoint matching its filter, including
// those of other papps.
func (a *PlatformAPI) Dispatch(ctx context.Context, p endpoint.Payload) (int, error) {
	return a.platform.Endpoints.Dispatch(ctx, p)
}

// Encode serializes a registered tuple value. When the papp registered a
// tuple of v's Go type, the first such name is used even if other papps share
// the type.
func (a *PlatformAPI) Encode(v any) ([]byte, error) {
	a.mu.Lock()
	var own string
	for _, t := range a.tuples {
		if t.Matches(v) {
			own = t.Name
			break
		}
	}
	a.mu.Unlock()

	if own != "" {
		return a.platform.Tuples.EncodeAs(own, v)
	}
	return a.platform.Tuples.Encode(v)
}

// Decode deserializes a value produced by Encode.
func (a *PlatformAPI) Decode(data []byte) (string, any, error) {
	return a.platform.Tuples.Decode(data)
}

// Submit queues deferred work on the shared task queue.
func (a *PlatformAPI) Submit(ctx context.Context, name string, fn taskqueue.TaskFunc) error {
	if err := a.allow("submit task", capability.QueueSubmit); err != nil {
		return err
	}

	a.mu.Lock()
	client := a.queue
	a.mu.Unlock()

	if client == nil {
		return oops.Code("QUEUE_UNAVAILABLE").In("papp").With("papp", a.name).Errorf("no task queue configured")
	}
	return client.Submit(ctx, name, fn)
}

func (a *PlatformAPI) bindQueue(client *taskqueue.Client) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queue = client
}

// allow rejects operations on a closed API, then checks the capability.
func (a *PlatformAPI) allow(operation, capName string) error {
	a.mu.Lock()
	closed := a.state == stateClosed
	a.mu.Unlock()

	if closed {
		return a.closedErr(operation)
	}
	return a.enforcer.Require(a.name, capName)
}

func (a *PlatformAPI) closedErr(operation string) error {
	return oops.Code(CodeAPIClosed).In("papp").With("papp", a.name).With("operation", operation).
		Wrapf(ErrAPIClosed, "papp %s is unloaded", a.name)
}

// commit validates the staged registrations and applies them to the shared
// registries. On failure nothing is applied.
func (a *PlatformAPI) commit() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != stateStaging {
		return oops.Code(CodeCommitFailed).In("papp").With("papp", a.name).With("state", a.state.String()).
			Wrapf(ErrCommitFailed, "platform api is not staging")
	}

	filters := make([]endpoint.Filter, len(a.endpoints))
	for i, e := range a.endpoints {
		filters[i] = e.Filter()
	}
	if err := ValidateNamespace(a.name, filters, tupleNames(a.tuples)); err != nil {
		return err
	}

	added := make([]string, 0, len(a.tuples))
	for _, t := range a.tuples {
		if err := a.platform.Tuples.Add(t); err != nil {
			a.platform.Tuples.RemoveNames(added...)
			return wrapKind(CodeCommitFailed, ErrCommitFailed, a.name, err)
		}
		added = append(added, t.Name)
	}
	for _, e := range a.endpoints {
		a.platform.Endpoints.Add(e)
	}

	a.state = stateLive
	return nil
}

// discard drops staged registrations and closes the API.
func (a *PlatformAPI) discard() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = stateClosed
	a.endpoints = nil
	a.tuples = nil
}

// close closes the API and returns what it had applied to the shared
// registries.
func (a *PlatformAPI) close() Ownership {
	a.mu.Lock()
	defer a.mu.Unlock()

	var own Ownership
	if a.state == stateLive {
		own = a.ownershipLocked()
	}
	a.state = stateClosed
	return own
}

func (a *PlatformAPI) ownership() Ownership {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ownershipLocked()
}

func (a *PlatformAPI) ownershipLocked() Ownership {
	return Ownership{
		Endpoints: append([]*endpoint.Endpoint(nil), a.endpoints...),
		Tuples:    tupleNames(a.tuples),
	}
}

func tupleNames(types []tuple.Type) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.Name
	}
	return names
}
