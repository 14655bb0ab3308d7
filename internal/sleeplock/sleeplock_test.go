package sleeplock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	l := NewLock()
	assert.False(t, l.Holding())

	l.Acquire()
	assert.True(t, l.Holding())

	l.Release()
	assert.False(t, l.Holding())
}

func TestReleaseUnheldPanics(t *testing.T) {
	l := NewLock()
	assert.Panics(t, func() { l.Release() })
}

func TestAcquireBlocksSecondHolder(t *testing.T) {
	l := NewLock()
	l.Acquire()

	acquired := make(chan struct{})
	go func() {
		l.Acquire()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire should have blocked while lock is held")
	case <-time.After(20 * time.Millisecond):
	}

	l.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never completed after Release")
	}
	require.True(t, l.Holding())
}
