package flagx

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvString overwrites *dst with the value of name when it is set and non-blank.
func EnvString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

// EnvInt overwrites *dst when name holds a valid integer. Invalid values are ignored.
func EnvInt(dst *int, name string) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return
	}
	*dst = parsed
}

// EnvDuration overwrites *dst when name holds a valid time.ParseDuration value.
func EnvDuration(dst *time.Duration, name string) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return
	}
	*dst = parsed
}
