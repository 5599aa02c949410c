package flagx

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		allowedFlags []string
		want         []string
	}{
		{
			name:         "short flag with separate value",
			args:         []string{"-c", "conf.json", "-a", "localhost"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"-c", "conf.json"},
		},
		{
			name:         "long flag with equals",
			args:         []string{"--config=alt.json", "-a", "localhost"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"--config=alt.json"},
		},
		{
			name:         "unknown flags ignored",
			args:         []string{"-x", "1", "--y=2", "positional"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{},
		},
		{
			name:         "flag without value at end is kept as-is",
			args:         []string{"-c"},
			allowedFlags: []string{"-c"},
			want:         []string{"-c"},
		},
		{
			name:         "flag followed by another flag (no value)",
			args:         []string{"-c", "-notvalue"},
			allowedFlags: []string{"-c"},
			want:         []string{"-c"},
		},
		{
			name:         "multiple allowed flags kept",
			args:         []string{"-a", "localhost:8080", "-x", "http://proxy", "--other", "x"},
			allowedFlags: []string{"-a", "-x"},
			want:         []string{"-a", "localhost:8080", "-x", "http://proxy"},
		},
		{
			name:         "repeated allowed flag is preserved in order",
			args:         []string{"-c", "one.json", "-c", "two.json"},
			allowedFlags: []string{"-c"},
			want:         []string{"-c", "one.json", "-c", "two.json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterArgs(tt.args, tt.allowedFlags)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("FilterArgs() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestConfigFileFlag(t *testing.T) {
	assert.Equal(t, "/path/short.json", ConfigFileFlag([]string{"-c", "/path/short.json"}))
	assert.Equal(t, "/path/long.json", ConfigFileFlag([]string{"-config", "/path/long.json"}))
	assert.Equal(t, "/path/eq.json", ConfigFileFlag([]string{"-a", ":80", "--config=/path/eq.json"}))
	assert.Empty(t, ConfigFileFlag([]string{"-x", "1", "-y", "2"}))
	assert.Equal(t, "/path/2.json", ConfigFileFlag([]string{"-c", "/path/1.json", "-config", "/path/2.json"}))
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("LETTERS_TEST_STR", "  value ")
	t.Setenv("LETTERS_TEST_BLANK", "   ")
	t.Setenv("LETTERS_TEST_INT", "42")
	t.Setenv("LETTERS_TEST_BAD_INT", "forty")
	t.Setenv("LETTERS_TEST_DUR", "1500ms")
	t.Setenv("LETTERS_TEST_BAD_DUR", "later")

	s := "default"
	EnvString(&s, "LETTERS_TEST_STR")
	assert.Equal(t, "value", s)

	blank := "keep"
	EnvString(&blank, "LETTERS_TEST_BLANK")
	EnvString(&blank, "LETTERS_TEST_UNSET")
	assert.Equal(t, "keep", blank)

	n := 1
	EnvInt(&n, "LETTERS_TEST_INT")
	assert.Equal(t, 42, n)
	EnvInt(&n, "LETTERS_TEST_BAD_INT")
	assert.Equal(t, 42, n)

	d := time.Second
	EnvDuration(&d, "LETTERS_TEST_DUR")
	assert.Equal(t, 1500*time.Millisecond, d)
	EnvDuration(&d, "LETTERS_TEST_BAD_DUR")
	assert.Equal(t, 1500*time.Millisecond, d)
}
