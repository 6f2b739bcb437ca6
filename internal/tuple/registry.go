// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package tuple provides the process-wide registry of named data tuple types
// and their JSON wire encoding.
package tuple

import (
	"encoding/json"
	"reflect"
	"slices"
	"sort"
	"sync"

	"github.com/samber/oops"
)

// Type describes a registered tuple type.
type Type struct {
	// Name is the process-wide type name, e.g. "demo_plugin.PingTuple".
	Name string
	// New returns a pointer to a zero value the wire data is decoded into.
	New func() any
}

// Matches reports whether v (or the value v points to) has the Go type
// values of t decode into.
func (t Type) Matches(v any) bool {
	return t.New != nil && pointerType(v) == t.goType()
}

func (t Type) goType() reflect.Type {
	return reflect.TypeOf(t.New())
}

func pointerType(v any) reflect.Type {
	rt := reflect.TypeOf(v)
	if rt != nil && rt.Kind() != reflect.Pointer {
		rt = reflect.PointerTo(rt)
	}
	return rt
}

// Of builds a Type whose values are *T.
func Of[T any](name string) Type {
	return Type{Name: name, New: func() any { return new(T) }}
}

// Registry maps tuple type names to types.
//
// Registry is safe for concurrent use.
type Registry struct {
	types map[string]Type
	// byType lists the names registered per Go type, in registration order.
	byType map[reflect.Type][]string
	mu     sync.RWMutex
}

// NewRegistry creates an empty tuple registry.
func NewRegistry() *Registry {
	return &Registry{
		types:  make(map[string]Type),
		byType: make(map[reflect.Type][]string),
	}
}

// Add registers a tuple type. Names must be unique.
func (r *Registry) Add(t Type) error {
	if t.Name == "" {
		return oops.Code("TUPLE_INVALID").In("tuple").Errorf("tuple type name cannot be empty")
	}
	if t.New == nil {
		return oops.Code("TUPLE_INVALID").In("tuple").With("tuple", t.Name).Errorf("tuple type %s has no constructor", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.types[t.Name]; ok {
		return oops.Code("TUPLE_DUPLICATE").In("tuple").With("tuple", t.Name).Errorf("tuple type %s already registered", t.Name)
	}
	r.types[t.Name] = t
	rt := t.goType()
	r.byType[rt] = append(r.byType[rt], t.Name)
	return nil
}

// Names returns every registered type name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RemoveNames unregisters the named types. Unknown names are ignored.
func (r *Registry) RemoveNames(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		t, ok := r.types[name]
		if !ok {
			continue
		}
		rt := t.goType()
		remaining := slices.DeleteFunc(r.byType[rt], func(n string) bool { return n == name })
		if len(remaining) == 0 {
			delete(r.byType, rt)
		} else {
			r.byType[rt] = remaining
		}
		delete(r.types, name)
	}
}

// Lookup returns the type registered under name.
func (r *Registry) Lookup(name string) (Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// envelope is the JSON wire form of a tuple.
type envelope struct {
	Type string          `json:"_tt"`
	Data json.RawMessage `json:"data"`
}

// Encode serializes v, which must be a value of a registered type (or a
// pointer to one), into its JSON envelope. A Go type registered under more
// than one name is ambiguous here; use EncodeAs.
func (r *Registry) Encode(v any) ([]byte, error) {
	rt := pointerType(v)

	r.mu.RLock()
	names := r.byType[rt]
	var name string
	if len(names) == 1 {
		name = names[0]
	}
	r.mu.RUnlock()

	switch {
	case len(names) == 0:
		return nil, oops.Code("TUPLE_UNKNOWN").In("tuple").With("go_type", rt).Errorf("no tuple type registered for %v", rt)
	case name == "":
		return nil, oops.Code("TUPLE_AMBIGUOUS").In("tuple").With("go_type", rt).With("tuples", names).
			Errorf("%v is registered as %d tuple types", rt, len(names))
	}
	return encode(name, v)
}

// EncodeAs serializes v as the tuple type registered under name.
func (r *Registry) EncodeAs(name string, v any) ([]byte, error) {
	t, ok := r.Lookup(name)
	if !ok {
		return nil, oops.Code("TUPLE_UNKNOWN").In("tuple").With("tuple", name).Errorf("unknown tuple type %q", name)
	}
	if !t.Matches(v) {
		return nil, oops.Code("TUPLE_TYPE_MISMATCH").In("tuple").With("tuple", name).With("go_type", pointerType(v)).
			Errorf("%v is not a %s value", pointerType(v), name)
	}
	return encode(name, v)
}

func encode(name string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, oops.Code("TUPLE_ENCODE_FAILED").In("tuple").With("tuple", name).Wrap(err)
	}
	out, err := json.Marshal(envelope{Type: name, Data: data})
	if err != nil {
		return nil, oops.Code("TUPLE_ENCODE_FAILED").In("tuple").With("tuple", name).Wrap(err)
	}
	return out, nil
}

// Decode parses a JSON envelope and returns a pointer to the decoded value
// together with its type name.
func (r *Registry) Decode(data []byte) (string, any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, oops.Code("TUPLE_DECODE_FAILED").In("tuple").Wrap(err)
	}

	t, ok := r.Lookup(env.Type)
	if !ok {
		return "", nil, oops.Code("TUPLE_UNKNOWN").In("tuple").With("tuple", env.Type).Errorf("unknown tuple type %q", env.Type)
	}

	v := t.New()
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, v); err != nil {
			return "", nil, oops.Code("TUPLE_DECODE_FAILED").In("tuple").With("tuple", env.Type).Wrap(err)
		}
	}
	return env.Type, v, nil
}
