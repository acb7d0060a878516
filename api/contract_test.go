package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chuangyeshuo/mcprapi/internal/dispatch"
	"github.com/chuangyeshuo/mcprapi/internal/tools"
)

func TestToolsContract_MatchesRunner(t *testing.T) {
	registry, err := dispatch.NewToolRegistry(ToolsContract)
	require.NoError(t, err)
	assert.Equal(t, "mcp-gateway", registry.Service())

	names := make([]string, 0, len(registry.List()))
	for _, tool := range registry.List() {
		names = append(names, tool.Name)
		assert.NotEmptyf(t, tool.Description, "tool %s has no description", tool.Name)
		assert.Equalf(t, "object", tool.InputSchema["type"], "tool %s input schema", tool.Name)
	}
	assert.ElementsMatch(t, tools.Names(), names)
}

func TestToolsContract_CapabilitiesAndRoles(t *testing.T) {
	registry, err := dispatch.NewToolRegistry(ToolsContract)
	require.NoError(t, err)

	order, ok := registry.Lookup(tools.CreateOrder)
	require.True(t, ok)
	assert.Equal(t, "write", order.Capability)
	assert.Equal(t, []string{"administrator", "order_manager"}, order.RequiredRoles)

	for _, name := range []string{tools.GetWeatherAlerts, tools.GetWeatherForecast, tools.GetUserInfo, tools.GetDepartmentStats} {
		spec, ok := registry.Lookup(name)
		require.Truef(t, ok, "missing %s", name)
		assert.Equal(t, "read", spec.Capability)
		assert.Empty(t, spec.RequiredRoles)
	}
}
