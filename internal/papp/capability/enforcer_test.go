package capability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/papphost/internal/papp/capability"
	"github.com/holomush/papphost/pkg/errutil"
)

func TestEnforcer_Check(t *testing.T) {
	tests := []struct {
		name       string
		grants     []string
		capability string
		want       bool
	}{
		{"exact match", []string{"endpoint.register"}, "endpoint.register", true},
		{"single segment wildcard", []string{"endpoint.*"}, "endpoint.register", true},
		{"single segment does not cross dots", []string{"*"}, "endpoint.register", false},
		{"super wildcard", []string{"**"}, "queue.submit", true},
		{"no match", []string{"tuple.register"}, "endpoint.register", false},
		{"empty grants default to all", nil, "resource.mount", true},
		{"empty capability denied", []string{"**"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := capability.NewEnforcer()
			require.NoError(t, e.SetGrants("demo_plugin", tt.grants))
			assert.Equal(t, tt.want, e.Check("demo_plugin", tt.capability))
		})
	}
}

func TestEnforcer_UnknownPappDenied(t *testing.T) {
	e := capability.NewEnforcer()
	assert.False(t, e.Check("ghost", capability.EndpointRegister))

	err := e.Require("ghost", capability.EndpointRegister)
	errutil.AssertErrorCode(t, err, "PAPP_CAPABILITY_DENIED")
	errutil.AssertErrorContext(t, err, "capability", capability.EndpointRegister)
}

func TestEnforcer_SetGrantsIsAtomic(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.SetGrants("demo_plugin", []string{"endpoint.*"}))

	err := e.SetGrants("demo_plugin", []string{"tuple.*", "[unclosed"})
	errutil.AssertErrorCode(t, err, "CAPABILITY_INVALID")
	assert.Equal(t, []string{"endpoint.*"}, e.Grants("demo_plugin"))

	errutil.AssertErrorCode(t, e.SetGrants("demo_plugin", []string{""}), "CAPABILITY_INVALID")
	errutil.AssertErrorCode(t, e.SetGrants("", nil), "CAPABILITY_INVALID")
}

func TestEnforcer_RemoveGrants(t *testing.T) {
	e := capability.NewEnforcer()
	require.NoError(t, e.SetGrants("demo_plugin", nil))
	assert.Equal(t, []string{capability.All}, e.Grants("demo_plugin"))
	assert.NoError(t, e.Require("demo_plugin", capability.QueueSubmit))

	e.RemoveGrants("demo_plugin")
	e.RemoveGrants("never_loaded")
	assert.Nil(t, e.Grants("demo_plugin"))
	assert.False(t, e.Check("demo_plugin", capability.QueueSubmit))
}
