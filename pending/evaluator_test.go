package pending

import (
	"sync"
	"testing"
	"time"

	"github.com/amp-labs/statekeeper/executor"
	"github.com/amp-labs/statekeeper/flags"
	"github.com/amp-labs/statekeeper/scheduler"
	"github.com/amp-labs/statekeeper/signals"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	exec *executor.Serial
	eval *Evaluator

	mu       sync.Mutex
	promoted []flags.Flag
}

func newHarness(t *testing.T, sigs ...signals.Signal) *harness {
	t.Helper()

	h := &harness{exec: executor.New(t.Context(), t.Name())}
	h.eval = NewEvaluator(h.exec.Submit, func(p Flag) {
		h.mu.Lock()
		h.promoted = append(h.promoted, p.Flag)
		h.mu.Unlock()
	}, sigs...)

	t.Cleanup(h.exec.Stop)

	return h
}

func (h *harness) register(t *testing.T, p Flag) error {
	t.Helper()

	var err error

	require.NoError(t, h.exec.Do(t.Context(), func() { err = h.eval.Register(p) }))

	return err
}

func (h *harness) sync(t *testing.T) {
	t.Helper()

	require.NoError(t, h.exec.Do(t.Context(), func() {}))
}

func (h *harness) got() []flags.Flag {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]flags.Flag(nil), h.promoted...)
}

func TestEvaluator_NoGatesPromotesImmediately(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	require.NoError(t, h.register(t, New("go")))
	assert.Equal(t, []flags.Flag{"go"}, h.got())
	assert.Empty(t, h.eval.Pending())
}

func TestEvaluator_Delay(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	start := time.Now()

	require.NoError(t, h.register(t, New("later", WithDelay(40*time.Millisecond))))
	assert.Empty(t, h.got())
	assert.Equal(t, []flags.Flag{"later"}, h.eval.Flags())

	require.Eventually(t, func() bool { return len(h.got()) == 1 }, time.Second, time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestEvaluator_ConditionPromotesWhenSignalTrue(t *testing.T) {
	t.Parallel()

	lock := signals.NewLockState(true)
	h := newHarness(t, lock.Unlocked())

	require.NoError(t, h.register(t, New("fetch", WithConditions(signals.UnlockedSignal))))
	h.sync(t)
	assert.Empty(t, h.got())

	lock.SetLocked(false)

	require.Eventually(t, func() bool { return len(h.got()) == 1 }, time.Second, time.Millisecond)
}

func TestEvaluator_ConditionsReadFresh(t *testing.T) {
	t.Parallel()

	// unlock, lock, recheck: the flag must still be pending.
	lock := signals.NewLockState(true)
	h := newHarness(t, lock.Unlocked())

	require.NoError(t, h.register(t, New("fetch",
		WithDelay(30*time.Millisecond),
		WithConditions(signals.UnlockedSignal))))

	lock.SetLocked(false)
	lock.SetLocked(true)
	time.Sleep(50 * time.Millisecond)
	lock.Recheck(t.Context())
	h.sync(t)

	assert.Empty(t, h.got())
	assert.Len(t, h.eval.Pending(), 1)

	lock.SetLocked(false)
	require.Eventually(t, func() bool { return len(h.got()) == 1 }, time.Second, time.Millisecond)
}

func TestEvaluator_DelayThenCondition(t *testing.T) {
	t.Parallel()

	reach := signals.NewReachability(false)
	h := newHarness(t, reach.Reachable())

	require.NoError(t, h.register(t, New("sync",
		WithDelay(10*time.Millisecond),
		WithConditions(signals.ReachableSignal))))

	time.Sleep(30 * time.Millisecond)
	h.sync(t)
	assert.Empty(t, h.got())

	reach.SetReachable(true)
	require.Eventually(t, func() bool { return len(h.got()) == 1 }, time.Second, time.Millisecond)
}

func TestEvaluator_ConditionThenDelay(t *testing.T) {
	t.Parallel()

	reach := signals.NewReachability(false)
	h := newHarness(t, reach.Reachable())

	require.NoError(t, h.register(t, New("sync",
		WithDelay(40*time.Millisecond),
		WithConditions(signals.ReachableSignal))))

	reach.SetReachable(true)
	h.sync(t)
	assert.Empty(t, h.got(), "delay has not elapsed")

	require.Eventually(t, func() bool { return len(h.got()) == 1 }, time.Second, time.Millisecond)
}

func TestEvaluator_SchedulerGate(t *testing.T) {
	t.Parallel()

	sched := scheduler.New("zone", 20*time.Millisecond)
	h := newHarness(t)

	require.NoError(t, h.register(t, New("zone-fetch", WithScheduler(sched))))
	require.NoError(t, h.register(t, New("zone-other", WithScheduler(sched))))
	assert.True(t, sched.Armed())
	assert.Empty(t, h.got())

	require.Eventually(t, func() bool { return len(h.got()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []flags.Flag{"zone-fetch", "zone-other"}, h.got())
	assert.Equal(t, uint64(1), sched.Fires())
}

func TestEvaluator_SharedSchedulerPromotesInRegistrationOrder(t *testing.T) {
	t.Parallel()

	sched := scheduler.New("shared", time.Millisecond)
	h := newHarness(t)
	order := []flags.Flag{"a", "b", "c", "d"}

	for round := range 50 {
		for _, f := range order {
			require.NoError(t, h.register(t, New(f, WithScheduler(sched))))
		}

		want := 4 * (round + 1)
		require.Eventually(t, func() bool { return len(h.got()) == want }, time.Second, time.Millisecond)
		assert.Equal(t, order, h.got()[want-4:], "round %d", round)
	}
}

func TestEvaluator_RegistrationOrderOnSimultaneousPromotion(t *testing.T) {
	t.Parallel()

	reach := signals.NewReachability(false)
	h := newHarness(t, reach.Reachable())

	for _, f := range []flags.Flag{"c", "a", "b"} {
		require.NoError(t, h.register(t, New(f, WithConditions(signals.ReachableSignal))))
	}

	reach.SetReachable(true)

	require.Eventually(t, func() bool { return len(h.got()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []flags.Flag{"c", "a", "b"}, h.got())
}

func TestEvaluator_Supersede(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	require.NoError(t, h.register(t, New("retry", WithDelay(time.Hour))))
	require.NoError(t, h.register(t, New("retry", WithDelay(10*time.Millisecond))))

	pend := h.eval.Pending()
	require.Len(t, pend, 1)
	assert.Equal(t, 10*time.Millisecond, pend[0].Delay)

	require.Eventually(t, func() bool { return len(h.got()) == 1 }, time.Second, time.Millisecond)
}

func TestEvaluator_CancelAll(t *testing.T) {
	t.Parallel()

	reach := signals.NewReachability(false)
	sched := scheduler.New("cancel", 20*time.Millisecond)
	h := newHarness(t, reach.Reachable())

	require.NoError(t, h.register(t, New("a", WithDelay(20*time.Millisecond))))
	require.NoError(t, h.register(t, New("b", WithConditions(signals.ReachableSignal))))
	require.NoError(t, h.register(t, New("c", WithScheduler(sched))))

	require.NoError(t, h.exec.Do(t.Context(), h.eval.CancelAll))

	reach.SetReachable(true)
	time.Sleep(50 * time.Millisecond)
	h.sync(t)

	assert.Empty(t, h.got())
	assert.Empty(t, h.eval.Pending())
	assert.False(t, sched.Armed())
	assert.Zero(t, reach.Reachable().(*signals.Bool).Subscribers())

	require.ErrorIs(t, h.register(t, New("d")), ErrCancelled)
}

func TestEvaluator_UnknownCondition(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	err := h.register(t, New("x", WithConditions("charging")))
	require.ErrorIs(t, err, ErrUnknownCondition)
	assert.Empty(t, h.eval.Pending())
}
