package tscache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetMissReturnsFalse(t *testing.T) {
	c := New()
	_, ok := c.Get(100)
	assert.False(t, ok)
}

func TestPutThenGet(t *testing.T) {
	c := New()
	now := time.Unix(1700000000, 0).UTC()
	c.Put(100, now)

	got, ok := c.Get(100)
	assert.True(t, ok)
	assert.True(t, now.Equal(got))
}

func TestConcurrentPutsAreSafe(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		h := uint64(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Put(h, time.Unix(int64(h), 0))
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, c.Len())
}
