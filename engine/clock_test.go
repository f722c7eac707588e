//go:build test_unit

package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestServerClock(t *testing.T) {
	now := time.Unix(100, 0)
	c := serverClock{now: func() time.Time { return now }}

	_, ok := c.time()
	assert.False(t, ok)

	c.sync(5 * time.Second)
	now = now.Add(1500 * time.Millisecond)

	st, ok := c.time()
	assert.True(t, ok)
	assert.Equal(t, 6500*time.Millisecond, st)

	c.reset()
	_, ok = c.time()
	assert.False(t, ok)
}
