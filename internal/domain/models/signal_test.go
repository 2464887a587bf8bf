package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalStatusTransitions(t *testing.T) {
	allowed := []struct {
		from, to SignalStatus
	}{
		{SignalStatusGenerated, SignalStatusValidated},
		{SignalStatusGenerated, SignalStatusRejected},
		{SignalStatusGenerated, SignalStatusExpired},
		{SignalStatusGenerated, SignalStatusCancelled},
		{SignalStatusValidated, SignalStatusQueued},
		{SignalStatusValidated, SignalStatusRejected},
		{SignalStatusValidated, SignalStatusExpired},
		{SignalStatusValidated, SignalStatusCancelled},
		{SignalStatusQueued, SignalStatusExecuting},
		{SignalStatusQueued, SignalStatusValidated},
		{SignalStatusQueued, SignalStatusCancelled},
		{SignalStatusExecuting, SignalStatusExecuted},
		{SignalStatusExecuting, SignalStatusValidated}, // broker-failure retry path
	}
	for _, tc := range allowed {
		assert.True(t, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}

	denied := []struct {
		from, to SignalStatus
	}{
		{SignalStatusGenerated, SignalStatusQueued},
		{SignalStatusGenerated, SignalStatusExecuting},
		{SignalStatusValidated, SignalStatusExecuted},
		{SignalStatusQueued, SignalStatusRejected},
		{SignalStatusExecuting, SignalStatusCancelled},
		{SignalStatusExecuted, SignalStatusValidated},
		{SignalStatusRejected, SignalStatusGenerated},
		{SignalStatusCancelled, SignalStatusValidated},
		{SignalStatusExpired, SignalStatusGenerated},
	}
	for _, tc := range denied {
		assert.False(t, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestSignalStatusIsTerminal(t *testing.T) {
	for _, st := range []SignalStatus{SignalStatusExecuted, SignalStatusRejected, SignalStatusCancelled, SignalStatusExpired} {
		assert.True(t, st.IsTerminal(), string(st))
	}
	for _, st := range []SignalStatus{SignalStatusGenerated, SignalStatusValidated, SignalStatusQueued, SignalStatusExecuting} {
		assert.False(t, st.IsTerminal(), string(st))
	}
}

func TestSignalTransition(t *testing.T) {
	now := time.Now()
	sig := &Signal{Status: SignalStatusGenerated}

	require.NoError(t, sig.Transition(SignalStatusValidated, now))
	assert.Equal(t, SignalStatusValidated, sig.Status)
	assert.Equal(t, now, sig.UpdatedAt)

	err := sig.Transition(SignalStatusExecuted, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, SignalStatusValidated, sig.Status)
}

func TestSignalFail(t *testing.T) {
	now := time.Now()
	sig := &Signal{Status: SignalStatusGenerated}

	require.NoError(t, sig.Fail(SignalStatusRejected, ReasonNotionalExceeded, "too big", now))
	assert.Equal(t, SignalStatusRejected, sig.Status)
	assert.Equal(t, ReasonNotionalExceeded, sig.Reason)
	assert.Equal(t, "too big", sig.ReasonDetail)

	// A failed Fail leaves the reason untouched.
	err := sig.Fail(SignalStatusExpired, ReasonTTLElapsed, "late", now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, ReasonNotionalExceeded, sig.Reason)
}

func TestSignalLiveness(t *testing.T) {
	now := time.Now()
	sig := &Signal{Status: SignalStatusGenerated, ExpiresAt: now.Add(time.Hour)}
	assert.True(t, sig.IsLive(now))
	assert.False(t, sig.IsExpired(now))

	assert.False(t, sig.IsLive(now.Add(2*time.Hour)))
	assert.True(t, sig.IsExpired(now.Add(2*time.Hour)))

	sig = &Signal{Status: SignalStatusRejected, ExpiresAt: now.Add(time.Hour)}
	assert.False(t, sig.IsLive(now))

	// Zero ExpiresAt means no TTL.
	sig = &Signal{Status: SignalStatusGenerated}
	assert.False(t, sig.IsExpired(now))
	assert.True(t, sig.IsLive(now))
}

func TestDirectionOpposite(t *testing.T) {
	assert.Equal(t, DirectionShort, DirectionLong.Opposite())
	assert.Equal(t, DirectionLong, DirectionShort.Opposite())
}

func TestSetMeta(t *testing.T) {
	sig := &Signal{}
	sig.SetMeta("k", "v")
	assert.Equal(t, "v", sig.Metadata["k"])
}
