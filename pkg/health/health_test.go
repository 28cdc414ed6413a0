package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCheck struct {
	name      string
	err       error
	sleepTime time.Duration
}

func (m *mockCheck) Name() string { return m.name }

func (m *mockCheck) Check(ctx context.Context) error {
	if m.sleepTime > 0 {
		select {
		case <-time.After(m.sleepTime):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.err
}

func TestNew(t *testing.T) {
	h := New()
	assert.Equal(t, 5*time.Second, h.timeout)
	assert.Equal(t, 1, h.failureThreshold)

	h = New(WithTimeout(time.Second), WithFailureThreshold(3))
	assert.Equal(t, time.Second, h.timeout)
	assert.Equal(t, 3, h.failureThreshold)

	h = New(WithTimeout(0), WithFailureThreshold(0))
	assert.Equal(t, 5*time.Second, h.timeout)
	assert.Equal(t, 1, h.failureThreshold)
}

func TestRun(t *testing.T) {
	testCases := []struct {
		name        string
		checks      []Check
		wantHealthy bool
	}{
		{name: "no checks", wantHealthy: true},
		{
			name:        "all passing",
			checks:      []Check{&mockCheck{name: "a"}, NewCheckFunc("b", func(context.Context) error { return nil })},
			wantHealthy: true,
		},
		{
			name:        "one failing",
			checks:      []Check{&mockCheck{name: "a"}, &mockCheck{name: "b", err: errors.New("down")}},
			wantHealthy: false,
		},
		{
			name:        "timeout",
			checks:      []Check{&mockCheck{name: "slow", sleepTime: time.Second}},
			wantHealthy: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := New(WithTimeout(50 * time.Millisecond))
			for _, c := range tc.checks {
				h.Add(Readiness, c)
			}

			status, err := h.Run(context.Background(), Readiness)
			require.NotNil(t, status)
			assert.Equal(t, tc.wantHealthy, status.Healthy)
			assert.Len(t, status.Checks, len(tc.checks))
			if tc.wantHealthy {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestKindsAreIndependent(t *testing.T) {
	h := New()
	h.Add(Readiness, &mockCheck{name: "store", err: errors.New("unwritable")})

	live, err := h.Run(context.Background(), Liveness)
	require.NoError(t, err)
	assert.True(t, live.Healthy)

	_, err = h.Run(context.Background(), Readiness)
	assert.Error(t, err)
}

func TestFailureThreshold(t *testing.T) {
	check := &mockCheck{name: "flaky", err: errors.New("nope")}
	h := New(WithFailureThreshold(2))
	h.Add(Liveness, check)

	status, err := h.Run(context.Background(), Liveness)
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Equal(t, 1, status.Checks[0].Failures)

	status, err = h.Run(context.Background(), Liveness)
	assert.Error(t, err)
	assert.False(t, status.Healthy)
	assert.Equal(t, "nope", status.Checks[0].Error)

	check.err = nil
	status, err = h.Run(context.Background(), Liveness)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Checks[0].Failures)
}

func TestHandler(t *testing.T) {
	h := New()
	h.Add(Liveness, &mockCheck{name: "ok"})
	h.Add(Readiness, &mockCheck{name: "ok"})
	h.Add(Readiness, &mockCheck{name: "index", err: errors.New("read-only")})

	rec := httptest.NewRecorder()
	h.Handler(Liveness).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	h.Handler(Readiness).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "ok", resp.Checks["ok"].Status)
	assert.Equal(t, "error", resp.Checks["index"].Status)
	assert.Equal(t, "read-only", resp.Checks["index"].Error)
	assert.Contains(t, resp.Message, "index")
}
