// Package api embeds the MCP tool contract served by the gateway.
package api

import _ "embed"

// ToolsContract contains the raw YAML tool contract.
//
//go:embed tools.yaml
var ToolsContract []byte
