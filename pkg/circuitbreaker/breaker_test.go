package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errUpstream = errors.New("upstream down")

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newTestBreaker(c *clock) *CircuitBreaker {
	return New("test", Config{
		MaxRequests:      1,
		Timeout:          time.Second,
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Now:              c.Now,
	})
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	c := &clock{now: time.Unix(1000, 0)}
	cb := newTestBreaker(c)

	assert.ErrorIs(t, cb.Execute(func() error { return errUpstream }), errUpstream)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(func() error { return errUpstream }), errUpstream)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	c := &clock{now: time.Unix(1000, 0)}
	cb := newTestBreaker(c)

	_ = cb.Execute(func() error { return errUpstream })
	_ = cb.Execute(func() error { return errUpstream })
	assert.Equal(t, StateOpen, cb.State())

	c.now = c.now.Add(2 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerIgnoresNonFailures(t *testing.T) {
	c := &clock{now: time.Unix(1000, 0)}
	cb := New("test", Config{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, errUpstream) },
		Now:              c.Now,
	})

	_ = cb.Execute(func() error { return errUpstream })
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, uint32(1), cb.Counts().TotalSuccesses)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
