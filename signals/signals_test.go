package signals

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/dnscache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errLookup = errors.New("no such host")

func TestBool_SetNotifiesOnlyOnChange(t *testing.T) {
	t.Parallel()

	b := NewBool("ready", false)

	var calls atomic.Int32

	cancel := b.Subscribe(func() { calls.Add(1) })

	b.Set(false)
	assert.Equal(t, int32(0), calls.Load())

	b.Set(true)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, b.Value())

	b.Notify()
	assert.Equal(t, int32(2), calls.Load())

	cancel()
	cancel()

	b.Set(false)
	assert.Equal(t, int32(2), calls.Load())
	assert.Zero(t, b.Subscribers())
}

func TestAll(t *testing.T) {
	t.Parallel()

	a := NewBool("a", true)
	b := NewBool("b", false)

	assert.True(t, All())
	assert.False(t, All(a, b))

	b.Set(true)
	assert.True(t, All(a, b))
}

func TestLockState(t *testing.T) {
	t.Parallel()

	lock := NewLockState(true)
	unlocked := lock.Unlocked()

	require.Equal(t, UnlockedSignal, unlocked.Name())
	assert.True(t, lock.Locked())
	assert.False(t, unlocked.Value())

	var calls atomic.Int32

	unlocked.Subscribe(func() { calls.Add(1) })

	lock.Recheck(t.Context())
	assert.Equal(t, int32(1), calls.Load(), "recheck always notifies")

	lock.SetLocked(false)
	assert.True(t, unlocked.Value())
	assert.Equal(t, int32(2), calls.Load())
}

func TestLockState_RecheckUsesProbe(t *testing.T) {
	t.Parallel()

	var locked atomic.Bool

	locked.Store(true)

	lock := NewLockState(true, WithLockProbe(func(context.Context) (bool, error) {
		return locked.Load(), nil
	}))

	locked.Store(false)
	assert.True(t, lock.Locked(), "probe is only consulted on recheck")

	lock.Recheck(t.Context())
	assert.False(t, lock.Locked())
}

type fakeResolver struct {
	fail atomic.Bool
}

func (f *fakeResolver) LookupHost(context.Context, string) ([]string, error) {
	if f.fail.Load() {
		return nil, errLookup
	}

	return []string{"192.0.2.1"}, nil
}

func TestProber(t *testing.T) {
	t.Parallel()

	reach := NewReachability(false)
	resolver := &fakeResolver{}
	prober := NewProber(reach, "example.test", WithResolver(resolver), WithInterval(5*time.Millisecond))

	assert.True(t, prober.Probe(t.Context()))
	assert.True(t, reach.IsReachable())

	resolver.fail.Store(true)
	assert.False(t, prober.Probe(t.Context()))
	assert.False(t, reach.Reachable().Value())

	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)

	go func() { done <- prober.Run(ctx) }()

	resolver.fail.Store(false)
	require.Eventually(t, reach.IsReachable, time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

type countingDNS struct {
	lookups atomic.Int32
	fail    atomic.Bool
}

func (c *countingDNS) LookupHost(context.Context, string) ([]string, error) {
	c.lookups.Add(1)

	if c.fail.Load() {
		return nil, errLookup
	}

	return []string{"192.0.2.1"}, nil
}

func (c *countingDNS) LookupAddr(context.Context, string) ([]string, error) {
	return nil, errLookup
}

func TestProber_CachesBetweenRefreshes(t *testing.T) {
	t.Parallel()

	upstream := &countingDNS{}
	reach := NewReachability(false)
	prober := NewProber(reach, "example.test",
		WithResolver(&dnscache.Resolver{Resolver: upstream}),
		WithInterval(time.Millisecond),
		WithCacheRefresh(20*time.Millisecond))

	for range 5 {
		assert.True(t, prober.Probe(t.Context()))
	}

	assert.Equal(t, int32(1), upstream.lookups.Load(), "probes are answered from the cache")

	upstream.fail.Store(true)
	assert.True(t, prober.Probe(t.Context()), "the cached answer holds until a refresh")

	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)

	go func() { done <- prober.Run(ctx) }()

	require.Eventually(t, func() bool { return !reach.IsReachable() }, time.Second, time.Millisecond)
	assert.Greater(t, upstream.lookups.Load(), int32(1))

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestProber_RequiresHost(t *testing.T) {
	t.Parallel()

	err := NewProber(NewReachability(true), "").Run(t.Context())
	require.ErrorIs(t, err, ErrNoProbeHost)
}
