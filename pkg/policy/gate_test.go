package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/twinmind/pkg/policy"
)

const allowListPolicy = `package relay

default allow := false

allow if {
	input.user in {"alice", "bob"}
}

allow if {
	input.operation == "search"
	startswith(input.remote_ip, "127.")
}
`

func TestGate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "gate.rego"), []byte(allowListPolicy), 0644))

	gate, err := policy.Load(ctx, dir)
	gt.NoError(t, err)
	gt.NotNil(t, gate)

	testCases := []struct {
		name   string
		input  policy.Input
		expect bool
	}{
		{"listed user", policy.Input{Operation: "store", User: "alice", RemoteIP: "10.0.0.1"}, true},
		{"unlisted user", policy.Input{Operation: "store", User: "mallory", RemoteIP: "10.0.0.1"}, false},
		{"local search", policy.Input{Operation: "search", User: "mallory", RemoteIP: "127.0.0.1"}, true},
		{"local store", policy.Input{Operation: "store", User: "mallory", RemoteIP: "127.0.0.1"}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			allowed, err := gate.Allow(ctx, tc.input)
			gt.NoError(t, err)
			gt.Equal(t, allowed, tc.expect)
		})
	}
}

func TestGateWithoutPolicy(t *testing.T) {
	ctx := context.Background()

	gate, err := policy.Load(ctx, t.TempDir())
	gt.NoError(t, err)
	gt.Nil(t, gate)

	allowed, err := gate.Allow(ctx, policy.Input{User: "anyone"})
	gt.NoError(t, err)
	gt.True(t, allowed)

	gate, err = policy.Load(ctx, "")
	gt.NoError(t, err)
	gt.Nil(t, gate)
}

func TestGateUndefinedDenies(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "gate.rego"), []byte(`package relay

allow if {
	input.user == "alice"
}
`), 0644))

	gate, err := policy.Load(ctx, dir)
	gt.NoError(t, err)

	allowed, err := gate.Allow(ctx, policy.Input{User: "bob"})
	gt.NoError(t, err)
	gt.False(t, allowed)
}

func TestGateInvalidPolicy(t *testing.T) {
	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "gate.rego"), []byte("package relay\n\nallow if {"), 0644))

	_, err := policy.Load(context.Background(), dir)
	gt.Error(t, err)
}
