// Package health runs named liveness and readiness checks with a per-check
// timeout and a consecutive-failure threshold.
package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lewisedginton/financial_qa/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Check represents a single health check that can succeed or fail.
type Check interface {
	Name() string
	// Check returns nil if healthy.
	Check(ctx context.Context) error
}

// CheckFunc adapts a plain function to the Check interface.
type CheckFunc struct {
	name string
	fn   func(context.Context) error
}

// NewCheckFunc creates a new CheckFunc with the given name and function.
func NewCheckFunc(name string, fn func(context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

func (c *CheckFunc) Name() string { return c.name }

func (c *CheckFunc) Check(ctx context.Context) error { return c.fn(ctx) }

// Kind separates checks that decide restarts from checks that gate traffic.
type Kind string

const (
	Liveness  Kind = "liveness"
	Readiness Kind = "readiness"
)

// CheckResult represents the result of a single health check execution.
type CheckResult struct {
	Name     string
	Healthy  bool
	Error    string
	Failures int
	Latency  time.Duration
}

// Status is the aggregate of one round of checks.
type Status struct {
	Healthy bool
	Checks  []CheckResult
}

// Checker manages and executes health checks.
type Checker struct {
	mu               sync.Mutex
	checks           map[Kind][]Check
	failures         map[string]int
	timeout          time.Duration
	failureThreshold int
	log              logger.Logger
}

// Option is a functional option for configuring Checker.
type Option func(*Checker)

// WithTimeout sets the timeout for individual checks. Default is 5 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger for check failures.
func WithLogger(l logger.Logger) Option {
	return func(c *Checker) {
		if l != nil {
			c.log = l
		}
	}
}

// WithFailureThreshold sets how many consecutive failures are tolerated before
// a check reports unhealthy. Default is 1, i.e. the first failure counts.
func WithFailureThreshold(threshold int) Option {
	return func(c *Checker) {
		if threshold > 0 {
			c.failureThreshold = threshold
		}
	}
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{
		checks:           make(map[Kind][]Check),
		failures:         make(map[string]int),
		timeout:          5 * time.Second,
		failureThreshold: 1,
		log:              logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Add registers a check under kind.
func (c *Checker) Add(kind Kind, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[kind] = append(c.checks[kind], check)
}

// Run executes every check of kind concurrently. The returned error lists the
// failing check names; the status is always populated.
func (c *Checker) Run(ctx context.Context, kind Kind) (*Status, error) {
	c.mu.Lock()
	checks := append([]Check(nil), c.checks[kind]...)
	c.mu.Unlock()

	results := make([]CheckResult, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	for i, chk := range checks {
		g.Go(func() error {
			results[i] = c.runOne(gctx, chk)
			return nil
		})
	}
	_ = g.Wait()

	status := &Status{Healthy: true, Checks: results}
	var failed []string
	for _, r := range results {
		if !r.Healthy {
			status.Healthy = false
			failed = append(failed, r.Name)
		}
	}
	if !status.Healthy {
		sort.Strings(failed)
		return status, fmt.Errorf("%s checks failed: %v", kind, failed)
	}
	return status, nil
}

func (c *Checker) runOne(parent context.Context, check Check) CheckResult {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	start := time.Now()
	err := check.Check(ctx)
	result := CheckResult{Name: check.Name(), Healthy: true, Latency: time.Since(start)}

	c.mu.Lock()
	if err == nil {
		c.failures[result.Name] = 0
	} else {
		c.failures[result.Name]++
	}
	result.Failures = c.failures[result.Name]
	c.mu.Unlock()

	if err == nil {
		return result
	}
	if result.Failures >= c.failureThreshold {
		result.Healthy = false
		result.Error = err.Error()
		c.log.Warn("Health check failed",
			logger.StringField("check", result.Name),
			logger.ErrorField(err),
			logger.IntField("failures", result.Failures),
			logger.DurationField("latency", result.Latency))
	} else {
		c.log.Debug("Health check failed but below threshold",
			logger.StringField("check", result.Name),
			logger.ErrorField(err),
			logger.IntField("failures", result.Failures),
			logger.IntField("threshold", c.failureThreshold))
	}
	return result
}
