// Package util reads HealthPipe settings from the process environment.
package util

import (
	"log/slog"
	"os"
	"strings"
)

// FirstEnv returns the first non-blank value among keys, trimmed. Later keys act as
// fallbacks for older variable names.
func FirstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

var boolWords = map[string]bool{
	"true": true, "1": true, "yes": true, "on": true,
	"false": false, "0": false, "no": false, "off": false,
}

// ParseBoolEnv reads key as a switch. Unset or unrecognized values yield def.
func ParseBoolEnv(key string, def bool) bool {
	raw := FirstEnv(key)
	if raw == "" {
		return def
	}
	v, ok := boolWords[strings.ToLower(raw)]
	if !ok {
		slog.Warn("util: ignoring unrecognized boolean", "key", key, "value", raw, "default", def)
		return def
	}
	return v
}
