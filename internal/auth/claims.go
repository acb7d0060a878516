package auth

import (
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ClaimsHint carries identity labels read from an unverified JWT. The values are
// never used for authorization; the authorization service remains the only
// source of roles and permissions.
type ClaimsHint struct {
	Subject  string
	UserID   int64
	Username string
}

// Label returns the best human-readable caller label.
func (h ClaimsHint) Label() string {
	switch {
	case h.Username != "":
		return h.Username
	case h.Subject != "":
		return h.Subject
	case h.UserID != 0:
		return strconv.FormatInt(h.UserID, 10)
	default:
		return ""
	}
}

var unverifiedParser = jwt.NewParser()

// HintFromToken decodes identity claims from a JWT-shaped credential without
// verifying its signature. Opaque credentials return ok=false.
func HintFromToken(token string) (ClaimsHint, bool) {
	trimmed := strings.TrimSpace(token)
	if strings.Count(trimmed, ".") != 2 {
		return ClaimsHint{}, false
	}

	claims := jwt.MapClaims{}
	if _, _, err := unverifiedParser.ParseUnverified(trimmed, claims); err != nil {
		return ClaimsHint{}, false
	}

	hint := ClaimsHint{}
	if sub, err := claims.GetSubject(); err == nil {
		hint.Subject = strings.TrimSpace(sub)
	}
	if username, ok := claims["username"].(string); ok {
		hint.Username = strings.TrimSpace(username)
	}
	hint.UserID = int64Claim(claims["user_id"])
	return hint, true
}

func int64Claim(value any) int64 {
	switch typed := value.(type) {
	case float64:
		return int64(typed)
	case int64:
		return typed
	case int:
		return int64(typed)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}
