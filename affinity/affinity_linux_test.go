//go:build linux

package affinity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPinCurrentGoroutine(t *testing.T) {
	allowed, err := CurrentAffinity()
	require.NoError(t, err)
	require.NotEmpty(t, allowed)

	var got []int
	var pinErr, readErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		// goroutine exits still locked, so the pinned thread is discarded
		if _, pinErr = PinCurrentGoroutine(allowed[0]); pinErr != nil {
			return
		}
		got, readErr = CurrentAffinity()
	}()
	<-done

	require.NoError(t, pinErr)
	require.NoError(t, readErr)
	assert.Equal(t, []int{allowed[0]}, got)
}

func TestSetAffinityRejectsOutOfRange(t *testing.T) {
	assert.Error(t, SetAffinity(-1))
	assert.Error(t, SetAffinity(maxCPU()))
}
