package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// lookup parses the value of key with parse, falling back to def when the
// variable is unset, blank or unparsable.
func lookup[T any](key string, def T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func GetEnv(key, def string) string {
	return lookup(key, def, func(s string) (string, error) { return s, nil })
}

func GetEnvInt(key string, def int) int {
	return lookup(key, def, strconv.Atoi)
}

// GetEnvDuration accepts Go duration strings ("250ms", "1h").
func GetEnvDuration(key string, def time.Duration) time.Duration {
	return lookup(key, def, time.ParseDuration)
}

func GetEnvBool(key string, def bool) bool {
	return lookup(key, def, strconv.ParseBool)
}

func GetEnvFloat(key string, def float64) float64 {
	return lookup(key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}
