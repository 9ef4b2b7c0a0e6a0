package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// envVal returns the trimmed value of an environment variable and
// whether it was set to anything non-empty.
func envVal(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

// envStr reads a string env var with a default.
func envStr(key, def string) string {
	if v, ok := envVal(key); ok {
		return v
	}
	return def
}

// envBool reads a bool env var with a default.
func envBool(key string, def bool) bool {
	v, ok := envVal(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// envInt reads a positive int env var with a default. The narrow-typed
// knobs (pool sizes) share this and narrow at the point of use.
func envInt(key string, def int) int {
	v, ok := envVal(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// envDur reads a duration env var with a default.
func envDur(key string, def time.Duration) time.Duration {
	v, ok := envVal(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
