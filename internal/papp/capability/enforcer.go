// Package capability decides what a papp's platform API is allowed to do.
//
// Grants are glob patterns matched with '.' as the segment separator:
//   - '*' matches a single segment ("endpoint.*" matches "endpoint.register")
//   - '**' matches any number of segments ("**" matches everything)
package capability

import (
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Capabilities checked by the platform API.
const (
	EndpointRegister = "endpoint.register"
	TupleRegister    = "tuple.register"
	QueueSubmit      = "queue.submit"
	ResourceMount    = "resource.mount"
)

// All grants every capability. Papps that declare no capabilities get it.
const All = "**"

type compiledGrant struct {
	pattern string
	glob    glob.Glob
}

// Enforcer tracks grants per papp.
//
// Enforcer is safe for concurrent use.
type Enforcer struct {
	grants map[string][]compiledGrant
	mu     sync.RWMutex
}

// NewEnforcer creates an enforcer with no grants.
func NewEnforcer() *Enforcer {
	return &Enforcer{grants: make(map[string][]compiledGrant)}
}

// SetGrants replaces the grants of papp. An empty list grants All. Either
// every pattern compiles and the grants are replaced, or nothing changes.
func (e *Enforcer) SetGrants(papp string, patterns []string) error {
	if papp == "" {
		return oops.Code("CAPABILITY_INVALID").In("capability").Errorf("papp name cannot be empty")
	}
	if len(patterns) == 0 {
		patterns = []string{All}
	}

	compiled := make([]compiledGrant, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			return oops.Code("CAPABILITY_INVALID").In("capability").With("papp", papp).With("index", i).
				Errorf("empty capability pattern")
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return oops.Code("CAPABILITY_INVALID").In("capability").With("papp", papp).With("pattern", pattern).Wrap(err)
		}
		compiled[i] = compiledGrant{pattern: pattern, glob: g}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.grants[papp] = compiled
	return nil
}

// RemoveGrants forgets papp. Unknown papps are ignored.
func (e *Enforcer) RemoveGrants(papp string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.grants, papp)
}

// Grants returns the patterns granted to papp, or nil if it has none.
func (e *Enforcer) Grants(papp string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	grants, ok := e.grants[papp]
	if !ok {
		return nil
	}
	patterns := make([]string, len(grants))
	for i, g := range grants {
		patterns[i] = g.pattern
	}
	return patterns
}

// Check reports whether papp holds capability. Unknown papps and empty
// capabilities are denied.
func (e *Enforcer) Check(papp, capability string) bool {
	if capability == "" {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, grant := range e.grants[papp] {
		if grant.glob.Match(capability) {
			return true
		}
	}
	return false
}

// Require returns a PAPP_CAPABILITY_DENIED error when papp lacks capability.
func (e *Enforcer) Require(papp, capability string) error {
	if e.Check(papp, capability) {
		return nil
	}
	return oops.Code("PAPP_CAPABILITY_DENIED").In("capability").
		With("papp", papp).
		With("capability", capability).
		Hint("declare the capability in papp.yaml").
		Errorf("papp %s lacks capability %s", papp, capability)
}
