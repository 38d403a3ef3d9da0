package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFault = errors.New("transient fault")

func alwaysFailure(error) bool { return true }

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, RecoveryTimeout: time.Hour})

	for i := 0; i < 3; i++ {
		err := b.Call(func() error { return errFault }, alwaysFailure)
		assert.ErrorIs(t, err, errFault)
	}

	assert.Equal(t, StateOpen, b.State())

	calls := 0
	err := b.Call(func() error { calls++; return nil }, alwaysFailure)
	require.Error(t, err)
	assert.Equal(t, 0, calls, "fn must not be invoked while open")
}

func TestBreakerSuccessResetsCounter(t *testing.T) {
	b := New(Config{FailureThreshold: 2, RecoveryTimeout: time.Hour})

	assert.ErrorIs(t, b.Call(func() error { return errFault }, alwaysFailure), errFault)
	assert.NoError(t, b.Call(func() error { return nil }, alwaysFailure))
	assert.Equal(t, StateClosed, b.State())

	// A single further failure should not trip it — the success reset the streak.
	err := b.Call(func() error { return errFault }, alwaysFailure)
	assert.ErrorIs(t, err, errFault)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenProbeSucceeds(t *testing.T) {
	b := New(Config{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond})

	assert.ErrorIs(t, b.Call(func() error { return errFault }, alwaysFailure), errFault)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	err := b.Call(func() error { return nil }, alwaysFailure)
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond})

	assert.ErrorIs(t, b.Call(func() error { return errFault }, alwaysFailure), errFault)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	err := b.Call(func() error { return errFault }, alwaysFailure)
	assert.ErrorIs(t, err, errFault)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerHalfOpenAdmitsSingleProbe(t *testing.T) {
	b := New(Config{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond})

	assert.ErrorIs(t, b.Call(func() error { return errFault }, alwaysFailure), errFault)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = b.Call(func() error {
			close(started)
			<-release
			return nil
		}, alwaysFailure)
	}()
	<-started

	err := b.Call(func() error { return nil }, alwaysFailure)
	assert.ErrorIs(t, err, ErrOpen)

	close(release)
}

func TestBreakerUnclassifiedErrorsDoNotCount(t *testing.T) {
	b := New(Config{FailureThreshold: 1, RecoveryTimeout: time.Hour})

	err := b.Call(func() error { return errFault }, func(error) bool { return false })
	assert.ErrorIs(t, err, errFault)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerReset(t *testing.T) {
	b := New(Config{FailureThreshold: 1, RecoveryTimeout: time.Hour})
	assert.ErrorIs(t, b.Call(func() error { return errFault }, alwaysFailure), errFault)
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
}
