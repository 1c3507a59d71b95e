package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSetup_Levels(t *testing.T) {
	t.Cleanup(func() { Setup("info", false) })

	Setup("debug", false)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	Setup("error", true)
	assert.Equal(t, zerolog.ErrorLevel, zerolog.GlobalLevel())

	// Garbage falls back to info rather than failing.
	Setup("shout", false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
