package concurrency

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorRunsAllTasks(t *testing.T) {
	e := NewExecutor(4)
	defer e.Close()

	var sum atomic.Int64
	var wg sync.WaitGroup
	for i := 1; i <= 1000; i++ {
		wg.Add(1)
		v := int64(i)
		require.NoError(t, e.Submit(func() {
			defer wg.Done()
			sum.Add(v)
		}))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for tasks")
	}
	assert.Equal(t, int64(500500), sum.Load())
	assert.Equal(t, 4, e.NumWorkers())
}

func TestExecutorSurvivesPanic(t *testing.T) {
	e := NewExecutor(1)
	defer e.Close()

	require.NoError(t, e.Submit(func() { panic("lane crashed") }))
	ran := make(chan struct{})
	require.NoError(t, e.Submit(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive panic")
	}
	assert.Eventually(t, func() bool { return e.Stats()["panics"] == 1 }, time.Second, time.Millisecond)
}

func TestExecutorSubmitAfterClose(t *testing.T) {
	e := NewExecutor(2)
	e.Close()
	assert.ErrorIs(t, e.Submit(func() {}), ErrExecutorClosed)
	// second close is a no-op
	e.Close()
}
