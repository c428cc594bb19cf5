// Package envutil reads bounded configuration values from the environment.
package envutil

import (
	"os"
	"strconv"

	"github.com/githubnext/gh-uses/pkg/logger"
)

// GetIntFromEnv returns the integer value of name when it is set, parses and
// falls within [minValue, maxValue]; otherwise defaultValue. Rejected values
// are reported through log, which may be nil.
func GetIntFromEnv(name string, defaultValue, minValue, maxValue int, log *logger.Logger) int {
	raw := os.Getenv(name)
	if raw == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		if log != nil {
			log.Printf("Invalid %s value %q (not an integer), using default %d", name, raw, defaultValue)
		}
		return defaultValue
	}
	if value < minValue || value > maxValue {
		if log != nil {
			log.Printf("Invalid %s value %d (must be %d-%d), using default %d", name, value, minValue, maxValue, defaultValue)
		}
		return defaultValue
	}

	if log != nil {
		log.Printf("Using %s=%d", name, value)
	}
	return value
}

// LookupInt is like GetIntFromEnv but reports whether a valid value was found,
// so callers can tell an override apart from the default.
func LookupInt(name string, minValue, maxValue int, log *logger.Logger) (int, bool) {
	const sentinel = -1 << 31
	v := GetIntFromEnv(name, sentinel, minValue, maxValue, log)
	return v, v != sentinel
}
