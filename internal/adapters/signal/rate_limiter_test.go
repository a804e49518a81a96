package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventLimiterQuota(t *testing.T) {
	rl := NewEventLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("c1"), "event %d should pass", i)
	}
	assert.False(t, rl.Allow("c1"), "fourth event must be blocked")

	// Other connections have their own quota.
	assert.True(t, rl.Allow("c2"))
}

func TestEventLimiterWindowExpiry(t *testing.T) {
	rl := NewEventLimiter(2, 30*time.Millisecond)

	assert.True(t, rl.Allow("c1"))
	assert.True(t, rl.Allow("c1"))
	assert.False(t, rl.Allow("c1"))

	time.Sleep(40 * time.Millisecond)
	assert.True(t, rl.Allow("c1"), "quota should refill after the window passes")
}

func TestEventLimiterForget(t *testing.T) {
	rl := NewEventLimiter(1, time.Minute)

	assert.True(t, rl.Allow("c1"))
	assert.False(t, rl.Allow("c1"))

	rl.Forget("c1")
	assert.True(t, rl.Allow("c1"))
}
