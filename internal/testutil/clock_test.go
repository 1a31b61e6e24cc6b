package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_StartsAtEpoch(t *testing.T) {
	c := NewManualClock()
	assert.Equal(t, Epoch, c.Now())
	assert.Equal(t, time.Duration(0), c.Elapsed())
}

func TestManualClock_FiresInDeadlineOrder(t *testing.T) {
	c := NewManualClock()
	var fired []string

	c.AfterFunc(30*time.Millisecond, func() { fired = append(fired, "c") })
	c.AfterFunc(10*time.Millisecond, func() { fired = append(fired, "a") })
	c.AfterFunc(10*time.Millisecond, func() { fired = append(fired, "b") })

	c.Advance(20 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 1, c.Pending())

	c.Advance(10 * time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, 30*time.Millisecond, c.Elapsed())
}

func TestManualClock_CallbackSeesItsDeadline(t *testing.T) {
	c := NewManualClock()
	var at time.Duration
	c.AfterFunc(15*time.Millisecond, func() { at = c.Elapsed() })

	c.Advance(time.Second)
	assert.Equal(t, 15*time.Millisecond, at)
	assert.Equal(t, time.Second, c.Elapsed())
}

func TestManualClock_Stop(t *testing.T) {
	c := NewManualClock()
	fired := false
	timer := c.AfterFunc(time.Millisecond, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	c.Advance(time.Second)
	assert.False(t, fired)
}

func TestManualClock_RescheduleFromCallback(t *testing.T) {
	c := NewManualClock()
	count := 0
	var tick func()
	tick = func() {
		count++
		c.AfterFunc(10*time.Millisecond, tick)
	}
	c.AfterFunc(10*time.Millisecond, tick)

	c.Advance(35 * time.Millisecond)
	assert.Equal(t, 3, count)
	assert.Equal(t, 1, c.Pending())
}

func TestManualClock_ThreadSafe(t *testing.T) {
	c := NewManualClock()
	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.AfterFunc(time.Duration(j)*time.Millisecond, func() {})
				_ = c.Now()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1000, c.Pending())
}
