package env

import (
	"os"
	"strings"
)

// Prefix namespaces every variable read by the platform.
const Prefix = "HACKPORTAL"

// Get returns the value of the prefixed variable, then the bare variable, or a fallback.
func Get(key, fallback string) string {
	if val := os.Getenv(Prefix + "_" + key); val != "" {
		return val
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// Bool reports whether the variable holds a truthy value.
func Bool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(Get(key, ""))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
