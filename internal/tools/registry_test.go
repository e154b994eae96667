package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmemory/memoryd/internal/output"
)

type stubTool struct {
	name string
	resp output.Response
	err  error
}

func (s *stubTool) Name() string                { return s.name }
func (s *stubTool) Description() string         { return "stub tool " + s.name }
func (s *stubTool) InputSchema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (s *stubTool) Execute(context.Context, json.RawMessage) (output.Response, error) {
	return s.resp, s.err
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	tool := &stubTool{name: "ping", resp: output.Success("pong")}
	r.Register(tool)

	got := r.Get("ping")
	require.NotNil(t, got)
	assert.Equal(t, "ping", got.Name())
	assert.Nil(t, r.Get("missing"))
}

func TestRegistryRegisterPanicsOnDuplicateName(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "ping"})

	assert.Panics(t, func() {
		r.Register(&stubTool{name: "ping"})
	})
}

func TestRegistryManifestPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "c"})
	r.Register(&stubTool{name: "a"})
	r.Register(&stubTool{name: "b"})

	manifest := r.Manifest()
	require.Len(t, manifest, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{manifest[0].Name, manifest[1].Name, manifest[2].Name})
}

func TestRegistryDispatchRunsRegisteredTool(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "ping", resp: output.Success("pong")})

	resp := r.Dispatch(context.Background(), "ping", json.RawMessage(`{}`))
	assert.True(t, resp.Success)
	assert.Equal(t, "pong", resp.Data)
}

func TestRegistryDispatchUnknownToolReturnsNotFoundEnvelope(t *testing.T) {
	r := NewRegistry()

	resp := r.Dispatch(context.Background(), "nonexistent", json.RawMessage(`{}`))
	assert.False(t, resp.Success)
	assert.Equal(t, "NotFound", resp.ErrorCode)
}
