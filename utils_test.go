//go:build test_unit

package go_aurena

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatClock(0))
	assert.Equal(t, "00:00:00", FormatClock(-5))
	assert.Equal(t, "00:00:00", FormatClock(999))
	assert.Equal(t, "00:02:03", FormatClock(123_456))
	assert.Equal(t, "10:00:00", FormatClock(36_000_000))
}
