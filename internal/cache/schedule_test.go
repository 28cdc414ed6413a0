package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulePeriodicInvalidation(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "stats_sales", 1))
	require.NoError(t, m.Set(ctx, "qa_sales_a", 2))
	require.NoError(t, m.Set(ctx, "qa_sales_b", 3))
	require.NoError(t, m.Set(ctx, "keep", 4))

	s, err := m.SchedulePeriodicInvalidation(ctx, []string{"stats_sales", "qa_sales_*"}, 20*time.Millisecond)
	require.NoError(t, err)
	defer s.Stop()

	// The first pass runs immediately.
	require.Eventually(t, func() bool { return s.Passes() >= 1 }, time.Second, 5*time.Millisecond)
	for _, k := range []string{"stats_sales", "qa_sales_a", "qa_sales_b"} {
		_, ok := m.Get(ctx, k)
		assert.False(t, ok, k)
	}
	_, ok := m.Get(ctx, "keep")
	assert.True(t, ok)

	// Later passes pick up entries written in between.
	require.NoError(t, m.Set(ctx, "qa_sales_c", 5))
	require.Eventually(t, func() bool {
		_, ok := m.Get(ctx, "qa_sales_c")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestScheduleStop(t *testing.T) {
	m, _, _ := newTestManager(t)
	s, err := m.SchedulePeriodicInvalidation(context.Background(), []string{"x"}, 5*time.Millisecond)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Passes() >= 2 }, time.Second, time.Millisecond)

	s.Stop()
	stopped := s.Passes()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, s.Passes())
	s.Stop()
}

func TestScheduleStopsWithContext(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	s, err := m.SchedulePeriodicInvalidation(ctx, []string{"x"}, 5*time.Millisecond)
	require.NoError(t, err)

	cancel()
	done := make(chan struct{})
	go func() { s.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("schedule did not stop after cancellation")
	}
}

func TestScheduleSurvivesFailingTarget(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "b", 1))

	// "bad/key" is rejected as a key and reported as not found; "b" still goes.
	s, err := m.SchedulePeriodicInvalidation(ctx, []string{"bad/key", "b"}, time.Hour)
	require.NoError(t, err)
	defer s.Stop()

	require.Eventually(t, func() bool { return s.Passes() >= 1 }, time.Second, 5*time.Millisecond)
	_, ok := m.Get(ctx, "b")
	assert.False(t, ok)
}

func TestScheduleRejectsBadArguments(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, err := m.SchedulePeriodicInvalidation(context.Background(), []string{"x"}, 0)
	assert.Error(t, err)
	_, err = m.SchedulePeriodicInvalidation(context.Background(), nil, time.Second)
	assert.Error(t, err)
}

func TestInvalidateTargetRecoversPanics(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.disk.files = nil // any persistent access now panics

	_, err := m.invalidateTarget(context.Background(), "x*")
	assert.ErrorContains(t, err, "panic")
}
