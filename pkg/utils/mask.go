package utils

import (
	"regexp"
	"strings"
)

var proxyPasswordRegex = regexp.MustCompile(`(:)([^:@/]+)(@)`)

// MaskProxy hides the password of a proxy URL or "user:pass@host:port" string.
func MaskProxy(proxy string) string {
	return proxyPasswordRegex.ReplaceAllString(proxy, ":***@")
}

// MaskToken keeps the scheme and the last four characters of a bearer credential.
func MaskToken(token string) string {
	scheme, value, found := strings.Cut(token, " ")
	if !found {
		scheme, value = "", token
	}
	if len(value) <= 4 {
		value = "****"
	} else {
		value = "****" + value[len(value)-4:]
	}
	if scheme == "" {
		return value
	}
	return scheme + " " + value
}

// MaskSecret replaces every character of s except the first with '*'.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	return s[:1] + strings.Repeat("*", len(s)-1)
}
