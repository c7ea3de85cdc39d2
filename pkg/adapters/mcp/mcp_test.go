package mcp_test

import (
	"context"
	"testing"

	itineramcp "github.com/aretw0/itinera/pkg/adapters/mcp"
	"github.com/aretw0/itinera/pkg/domain"
	"github.com/aretw0/itinera/pkg/registry"
	"github.com/aretw0/itinera/pkg/schema"
	"github.com/mark3labs/mcp-go/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mathRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	params := schema.Schema{
		"a": schema.Describe(schema.Number(), "first operand"),
		"b": schema.Number(),
	}
	reg, err := registry.New([]registry.Tool{
		{
			Name:        "add",
			Description: "Add two numbers",
			Params:      params,
			Handler: func(_ context.Context, args map[string]any) (any, error) {
				a, _ := schema.AsFloat(args["a"])
				b, _ := schema.AsFloat(args["b"])
				return a + b, nil
			},
		},
		{
			Name:   "divide",
			Params: params,
			Handler: func(_ context.Context, args map[string]any) (any, error) {
				a, _ := schema.AsFloat(args["a"])
				b, _ := schema.AsFloat(args["b"])
				if b == 0 {
					return nil, domain.NewToolError(domain.ReasonInvalidArguments, "division by zero")
				}
				return a / b, nil
			},
		},
	})
	require.NoError(t, err)
	return reg
}

func inProcess(t *testing.T, srv *itineramcp.Server) itineramcp.Dialer {
	return func(ctx context.Context) (*client.Client, error) {
		c, err := client.NewInProcessClient(srv.MCPServer())
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}
}

func TestSource_LoadsAndForwardsTools(t *testing.T) {
	srv, err := itineramcp.NewServer("math", "test", mathRegistry(t), nil)
	require.NoError(t, err)

	src := itineramcp.NewSource("math", inProcess(t, srv))
	t.Cleanup(func() { _ = src.Close() })

	ctx := context.Background()
	tools, results := registry.Load(ctx, nil, src)
	require.Len(t, results, 1)
	require.False(t, results[0].Degraded(), results[0].String())
	assert.ElementsMatch(t, []string{"add", "divide"}, results[0].Tools)

	remote, err := registry.New(tools)
	require.NoError(t, err)

	addTool, err := remote.Resolve("add")
	require.NoError(t, err)
	assert.Equal(t, "Add two numbers", addTool.Description)
	assert.ElementsMatch(t, []string{"a", "b"}, addTool.Params.Required())

	sum := remote.Call(ctx, domain.ToolCall{ID: "c1", Name: "add", Arguments: map[string]any{"a": 2, "b": "3"}})
	require.False(t, sum.IsError(), sum.Content)
	assert.Equal(t, "5", sum.Content)
	assert.Equal(t, "c1", sum.CallID)

	failed := remote.Call(ctx, domain.ToolCall{ID: "c2", Name: "divide", Arguments: map[string]any{"a": 1, "b": 0}})
	require.True(t, failed.IsError())
	assert.Equal(t, domain.ReasonUpstreamFailure, failed.Error.Reason)
	assert.Contains(t, failed.Error.Detail, "division by zero")

	missing := remote.Call(ctx, domain.ToolCall{ID: "c3", Name: "add", Arguments: map[string]any{"a": 1}})
	require.True(t, missing.IsError())
	assert.Equal(t, domain.ReasonInvalidArguments, missing.Error.Reason, "remote schemas are enforced locally")
}

func TestSource_DisconnectedToolFails(t *testing.T) {
	srv, err := itineramcp.NewServer("math", "test", mathRegistry(t), nil)
	require.NoError(t, err)

	src := itineramcp.NewSource("math", inProcess(t, srv))
	tools, err := src.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, src.Close())

	reg, err := registry.New(tools)
	require.NoError(t, err)
	msg := reg.Call(context.Background(), domain.ToolCall{ID: "c", Name: "add", Arguments: map[string]any{"a": 1, "b": 2}})
	require.True(t, msg.IsError())
	assert.Equal(t, domain.ReasonUpstreamFailure, msg.Error.Reason)
}

func TestSource_UnreachableServerDegrades(t *testing.T) {
	src := itineramcp.NewSource("hotels", itineramcp.StdioDialer(itineramcp.StdioServer{}))

	tools, results := registry.Load(context.Background(), nil, src)
	assert.Empty(t, tools)
	require.Len(t, results, 1)
	assert.True(t, results[0].Degraded())
	assert.Contains(t, results[0].String(), "hotels")
}
