package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lewisedginton/financial_qa/pkg/logger"
)

// WildcardSuffix marks a periodic invalidation target as a prefix.
const WildcardSuffix = "*"

// Schedule is a running periodic invalidation task.
type Schedule struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	passes int64
	mu     sync.Mutex
}

// Stop cancels the task and waits for the current pass to finish.
func (s *Schedule) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Passes reports how many passes have completed.
func (s *Schedule) Passes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passes
}

// SchedulePeriodicInvalidation starts a background task that invalidates each
// target immediately and then every interval. Targets ending in "*" are
// prefixes, the rest exact keys. A failing or panicking target is logged and
// the task keeps going. It stops on Stop or when ctx is cancelled.
func (m *Manager) SchedulePeriodicInvalidation(ctx context.Context, targets []string, interval time.Duration) (*Schedule, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalidation interval must be positive, got %s", interval)
	}
	if len(targets) == 0 {
		return nil, errors.New("no invalidation targets")
	}
	targets = append([]string(nil), targets...)

	ctx, cancel := context.WithCancel(ctx)
	s := &Schedule{cancel: cancel}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		m.log.Info("Periodic cache invalidation started",
			logger.Field("targets", targets), logger.DurationField("interval", interval))
		for {
			m.invalidationPass(ctx, targets)
			s.mu.Lock()
			s.passes++
			s.mu.Unlock()

			select {
			case <-ctx.Done():
				m.log.Info("Periodic cache invalidation stopped")
				return
			case <-ticker.C:
			}
		}
	}()
	return s, nil
}

func (m *Manager) invalidationPass(ctx context.Context, targets []string) {
	for _, target := range targets {
		if ctx.Err() != nil {
			return
		}
		n, err := m.invalidateTarget(ctx, target)
		if err != nil {
			m.log.Error("Periodic invalidation target failed",
				logger.StringField("target", target), logger.ErrorField(err))
			continue
		}
		m.log.Debug("Periodic invalidation",
			logger.StringField("target", target), logger.IntField("count", n))
	}
}

func (m *Manager) invalidateTarget(ctx context.Context, target string) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if prefix, ok := strings.CutSuffix(target, WildcardSuffix); ok {
		return m.InvalidateByPrefix(ctx, prefix)
	}
	found, err := m.Invalidate(ctx, target)
	if found {
		n = 1
	}
	return n, err
}
