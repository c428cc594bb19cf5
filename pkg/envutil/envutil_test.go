//go:build !integration

package envutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/githubnext/gh-uses/pkg/logger"
)

func TestGetIntFromEnv(t *testing.T) {
	const name = "GH_USES_TEST_INT_VALUE"

	tests := []struct {
		name         string
		envValue     string
		defaultValue int
		minValue     int
		maxValue     int
		expected     int
	}{
		{"unset uses default", "", 10, 1, 100, 10},
		{"within range", "50", 10, 1, 100, 50},
		{"at minimum", "1", 10, 1, 100, 1},
		{"at maximum", "100", 10, 1, 100, 100},
		{"non numeric", "many", 10, 1, 100, 10},
		{"below minimum", "0", 10, 1, 100, 10},
		{"above maximum", "101", 10, 1, 100, 10},
		{"negative", "-5", 10, 1, 100, 10},
		{"float", "2.5", 10, 1, 100, 10},
		{"whitespace", " 5", 10, 1, 100, 10},
	}

	log := logger.New("test:envutil")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(name, tt.envValue)
			assert.Equal(t, tt.expected, GetIntFromEnv(name, tt.defaultValue, tt.minValue, tt.maxValue, log))
		})
	}
}

func TestGetIntFromEnvNilLogger(t *testing.T) {
	const name = "GH_USES_TEST_INT_NO_LOG"
	t.Setenv(name, "42")
	assert.Equal(t, 42, GetIntFromEnv(name, 10, 1, 100, nil))

	t.Setenv(name, "nope")
	assert.Equal(t, 10, GetIntFromEnv(name, 10, 1, 100, nil))
}

func TestLookupInt(t *testing.T) {
	const name = "GH_USES_TEST_LOOKUP"

	t.Setenv(name, "")
	_, ok := LookupInt(name, 1, 10, nil)
	assert.False(t, ok)

	t.Setenv(name, "7")
	v, ok := LookupInt(name, 1, 10, nil)
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	t.Setenv(name, "70")
	_, ok = LookupInt(name, 1, 10, nil)
	assert.False(t, ok)
}
