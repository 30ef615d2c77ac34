package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel) // Suppress logs during testing
	return logger
}

func ok(context.Context) (map[string]any, error) { return nil, nil }

func failing(context.Context) (map[string]any, error) { return nil, errors.New("connection refused") }

func TestChecker_Run(t *testing.T) {
	tests := []struct {
		name    string
		checks  []Check
		overall State
	}{
		{
			name:    "All healthy",
			checks:  []Check{{Name: "knowledge", Critical: true, Probe: ok}, {Name: "sqlite", Probe: ok}},
			overall: StateHealthy,
		},
		{
			name:    "Optional failure degrades",
			checks:  []Check{{Name: "knowledge", Critical: true, Probe: ok}, {Name: "postgres", Probe: failing}},
			overall: StateDegraded,
		},
		{
			name:    "Critical failure is unhealthy",
			checks:  []Check{{Name: "knowledge", Critical: true, Probe: failing}, {Name: "postgres", Probe: failing}},
			overall: StateUnhealthy,
		},
		{
			name: "Disabled components are not probed",
			checks: []Check{{
				Name:    "sparql",
				Enabled: func() bool { return false },
				Probe:   func(context.Context) (map[string]any, error) { panic("probed") },
			}},
			overall: StateHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker("1.0.0", time.Second, testLogger())
			for _, check := range tt.checks {
				c.Register(check)
			}
			status := c.Run(context.Background())
			assert.Equal(t, tt.overall, status.Overall)
			assert.Equal(t, "1.0.0", status.Version)
			assert.Len(t, status.Components, len(tt.checks))
		})
	}
}

func TestChecker_ComponentDetails(t *testing.T) {
	c := NewChecker("v", 20*time.Millisecond, testLogger())
	c.Register(Check{Name: "b-slow", Probe: func(ctx context.Context) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})
	c.Register(Check{Name: "a-meta", Probe: func(context.Context) (map[string]any, error) {
		return map[string]any{"pending": 3}, nil
	}})
	c.Register(Check{Name: "c-panic", Probe: func(context.Context) (map[string]any, error) { panic("bad") }})
	c.Register(Check{Name: "d-off", Enabled: func() bool { return false }, Probe: ok})

	status := c.Run(context.Background())
	require.Len(t, status.Components, 4)

	byName := map[string]ComponentHealth{}
	for _, comp := range status.Components {
		byName[comp.Name] = comp
	}
	assert.Equal(t, "a-meta", status.Components[0].Name, "sorted by name")
	assert.Equal(t, 3, byName["a-meta"].Metadata["pending"])
	assert.Equal(t, StateUnhealthy, byName["b-slow"].Status)
	assert.Contains(t, byName["b-slow"].Message, "deadline exceeded")
	assert.Equal(t, StateUnhealthy, byName["c-panic"].Status)
	assert.Contains(t, byName["c-panic"].Message, "panicked: bad")
	assert.Equal(t, StateDisabled, byName["d-off"].Status)
	assert.Equal(t, StateDegraded, status.Overall)
}
