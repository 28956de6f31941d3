package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubExpirer struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
	panic bool
}

func (s *stubExpirer) ExpireLapsed(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	s.calls = append(s.calls, now)
	s.mu.Unlock()
	if s.panic {
		panic("boom")
	}
	return 1, s.err
}

func (s *stubExpirer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestPremiumExpiryRunsUntilCancelled(t *testing.T) {
	exp := &stubExpirer{}
	w := NewPremiumExpiry(exp, 10*time.Millisecond, zap.NewNop())
	fixed := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return exp.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
	exp.mu.Lock()
	assert.Equal(t, fixed, exp.calls[0])
	exp.mu.Unlock()
}

func TestPremiumExpirySweepSurvivesErrorsAndPanics(t *testing.T) {
	w := NewPremiumExpiry(&stubExpirer{err: errors.New("firestore down")}, time.Second, zap.NewNop())
	assert.NotPanics(t, func() { w.sweep(context.Background()) })

	w = NewPremiumExpiry(&stubExpirer{panic: true}, time.Second, zap.NewNop())
	assert.NotPanics(t, func() { w.sweep(context.Background()) })
}

func TestPremiumExpiryDisabledByZeroInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		exp := &stubExpirer{}
		w := NewPremiumExpiry(exp, interval, zap.NewNop())
		assert.NotPanics(t, func() { w.Run(context.Background()) })
		assert.Zero(t, exp.count())
	}
}
