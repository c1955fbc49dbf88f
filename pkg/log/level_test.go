package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   Debug,
		"DEBUG":   Debug,
		" info ":  Info,
		"warn":    Warn,
		"warning": Warn,
		"error":   Error,
		"fatal":   Fatal,
		"":        Info,
		"bogus":   Info,
	}
	for input, want := range cases {
		assert.Equal(t, want, Parse(input), "Parse(%q)", input)
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", Debug.String())
	assert.Equal(t, "INFO", Info.String())
	assert.Equal(t, "WARN", Warn.String())
	assert.Equal(t, "ERROR", Error.String())
	assert.Equal(t, "FATAL", Fatal.String())
	assert.Equal(t, "INFO", LogLevel(42).String())
}
