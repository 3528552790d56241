package limiter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// newTestWindow returns a limiter with a controllable clock.
func newTestWindow(maxRequests int, window time.Duration) (*SlidingWindow, *time.Time) {
	l := NewSlidingWindow(maxRequests, window)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }
	return l, &current
}

func TestSlidingWindowAllowsUpToLimit(t *testing.T) {
	l, _ := newTestWindow(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("1.2.3.4"), "request %d should be allowed", i+1)
	}
	assert.False(t, l.Allow("1.2.3.4"), "request over the limit should be rejected")
}

func TestSlidingWindowRejectionDoesNotConsumeQuota(t *testing.T) {
	l, current := newTestWindow(2, time.Minute)

	assert.True(t, l.Allow("ip"))
	assert.True(t, l.Allow("ip"))

	// Hammer the limiter while over the limit; rejected requests
	// must not be recorded, so the window drains on schedule.
	for i := 0; i < 10; i++ {
		assert.False(t, l.Allow("ip"))
	}

	*current = current.Add(61 * time.Second)
	assert.True(t, l.Allow("ip"), "window should be clear after the original requests expire")
}

func TestSlidingWindowSlides(t *testing.T) {
	l, current := newTestWindow(2, time.Minute)

	assert.True(t, l.Allow("ip"))

	*current = current.Add(30 * time.Second)
	assert.True(t, l.Allow("ip"))
	assert.False(t, l.Allow("ip"))

	// First request ages out, second is still inside the window.
	*current = current.Add(31 * time.Second)
	assert.True(t, l.Allow("ip"))
	assert.False(t, l.Allow("ip"))
}

func TestSlidingWindowIsolatesIdentities(t *testing.T) {
	l, _ := newTestWindow(1, time.Minute)

	assert.True(t, l.Allow("ip-a"))
	assert.False(t, l.Allow("ip-a"))
	assert.True(t, l.Allow("ip-b"), "a throttled identity must not affect others")
}

func TestSlidingWindowRemaining(t *testing.T) {
	l, current := newTestWindow(3, time.Minute)

	assert.Equal(t, 3, l.Remaining("ip"))
	l.Allow("ip")
	l.Allow("ip")
	assert.Equal(t, 1, l.Remaining("ip"))

	*current = current.Add(61 * time.Second)
	assert.Equal(t, 3, l.Remaining("ip"))
}

func TestSlidingWindowConcurrentAccess(t *testing.T) {
	l := NewSlidingWindow(50, time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared-ip") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed, "exactly the window capacity should be admitted")
}
