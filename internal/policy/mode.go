// Package policy defines local guardrails applied to tool calls after the
// remote authorization check.
package policy

import (
	"fmt"
	"strings"
)

const (
	// ModeReadWrite allows read and write capability tools.
	ModeReadWrite = "read-write"
	// ModeReadOnly allows only read capability tools.
	ModeReadOnly = "read-only"

	// CapabilityRead marks tools without side effects.
	CapabilityRead = "read"
	// CapabilityWrite marks tools that create or change business records.
	CapabilityWrite = "write"
)

// Guard enforces mode-based tool execution policy.
type Guard struct {
	mode string
}

// NewGuard validates mode configuration and returns an execution guard.
func NewGuard(mode string) (*Guard, error) {
	normalized := strings.ToLower(strings.TrimSpace(mode))
	if normalized == "" {
		normalized = ModeReadWrite
	}

	switch normalized {
	case ModeReadOnly, ModeReadWrite:
		return &Guard{mode: normalized}, nil
	default:
		return nil, fmt.Errorf("invalid mode %q (allowed: %s|%s)", normalized, ModeReadWrite, ModeReadOnly)
	}
}

// Mode returns the resolved mode.
func (g *Guard) Mode() string {
	if g == nil {
		return ModeReadWrite
	}
	return g.mode
}

// AuthorizeTool allows or denies tool execution based on tool capability.
func (g *Guard) AuthorizeTool(name, capability string) error {
	mode := g.Mode()
	toolName := strings.TrimSpace(name)
	if toolName == "" {
		toolName = "unknown"
	}

	switch strings.ToLower(strings.TrimSpace(capability)) {
	case CapabilityRead:
		return nil
	case CapabilityWrite:
		if mode == ModeReadWrite {
			return nil
		}
		return fmt.Errorf("tool %s requires read-write mode", toolName)
	default:
		return fmt.Errorf("tool %s has unknown capability %q", toolName, strings.TrimSpace(capability))
	}
}
