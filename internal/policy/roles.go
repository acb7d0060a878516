package policy

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInsufficientRole is returned when a principal lacks every role a tool
// requires.
var ErrInsufficientRole = errors.New("insufficient role")

// RequireAnyRole validates that granted roles contain at least one required role.
//
// Empty required roles means no role gate.
func RequireAnyRole(toolName string, required, granted []string) error {
	requiredRoles := normalizeList(required)
	if len(requiredRoles) == 0 {
		return nil
	}

	grantedRoles := normalizeList(granted)
	for _, role := range requiredRoles {
		if slices.Contains(grantedRoles, role) {
			return nil
		}
	}

	tool := strings.TrimSpace(toolName)
	if tool == "" {
		tool = "unknown"
	}

	grantedSummary := "none"
	if len(grantedRoles) > 0 {
		grantedSummary = strings.Join(grantedRoles, ", ")
	}

	return fmt.Errorf(
		"%w: tool %s requires one of the roles %s (granted: %s)",
		ErrInsufficientRole,
		tool,
		strings.Join(requiredRoles, ", "),
		grantedSummary,
	)
}

// InsufficientRoleMessage is the user-visible text returned when the role gate
// refuses a call.
func InsufficientRoleMessage(toolName string, required []string) string {
	return fmt.Sprintf("❌ Insufficient privileges: %s requires one of the roles %s",
		strings.TrimSpace(toolName), strings.Join(normalizeList(required), ", "))
}

func normalizeList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}
