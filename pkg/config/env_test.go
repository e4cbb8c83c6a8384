package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("LEDGER_TEST_STR", "value")
	assert.Equal(t, "value", GetEnv("LEDGER_TEST_STR", "def"))
	assert.Equal(t, "def", GetEnv("LEDGER_TEST_UNSET", "def"))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("LEDGER_TEST_INT", "42")
	t.Setenv("LEDGER_TEST_BAD_INT", "forty")
	assert.Equal(t, 42, GetEnvInt("LEDGER_TEST_INT", 1))
	assert.Equal(t, 1, GetEnvInt("LEDGER_TEST_BAD_INT", 1))
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("LEDGER_TEST_BOOL", "true")
	t.Setenv("LEDGER_TEST_BAD_BOOL", "sometimes")
	assert.True(t, GetEnvBool("LEDGER_TEST_BOOL", false))
	assert.False(t, GetEnvBool("LEDGER_TEST_BAD_BOOL", false))
	assert.True(t, GetEnvBool("LEDGER_TEST_UNSET", true))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("LEDGER_TEST_DUR", "250ms")
	assert.Equal(t, 250*time.Millisecond, GetEnvDuration("LEDGER_TEST_DUR", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("LEDGER_TEST_UNSET", time.Second))
}

func TestGetEnvFloat(t *testing.T) {
	t.Setenv("LEDGER_TEST_FLOAT", "2.5")
	assert.Equal(t, 2.5, GetEnvFloat("LEDGER_TEST_FLOAT", 1))
	assert.Equal(t, 1.0, GetEnvFloat("LEDGER_TEST_UNSET", 1))
}

func TestGetEnvTrimsWhitespace(t *testing.T) {
	t.Setenv("LEDGER_TEST_SPACED", "  7 ")
	t.Setenv("LEDGER_TEST_BLANK", "   ")
	assert.Equal(t, 7, GetEnvInt("LEDGER_TEST_SPACED", 1))
	assert.Equal(t, "def", GetEnv("LEDGER_TEST_BLANK", "def"))
}
