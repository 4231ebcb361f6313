package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/mohitkumar/flowengine/config"
	"github.com/stretchr/testify/require"
)

func TestFixed(t *testing.T) {
	p := NewFixed(time.Second)
	for attempt := 1; attempt <= 5; attempt++ {
		require.Equal(t, time.Second, p.Sleep(attempt, errors.New("boom")))
	}
	require.Equal(t, time.Duration(0), NewFixed(-time.Second).Sleep(1, nil))
}

func TestExponential(t *testing.T) {
	p := NewExponential(100*time.Millisecond, time.Second, 2)
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{500, time.Second},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, p.Sleep(tt.attempt, nil), "attempt %d", tt.attempt)
	}
}

func TestExponentialIsMonotonic(t *testing.T) {
	p := NewExponential(10*time.Millisecond, time.Minute, 1.5)
	prev := time.Duration(0)
	for attempt := 1; attempt < 100; attempt++ {
		d := p.Sleep(attempt, nil)
		require.GreaterOrEqual(t, d, prev)
		require.LessOrEqual(t, d, time.Minute)
		prev = d
	}
}

func TestExponentialClampsConfig(t *testing.T) {
	p := NewExponential(time.Second, time.Millisecond, 0.5)
	require.Equal(t, time.Second, p.Max)
	require.Equal(t, 1.0, p.Multiplier)
	require.Equal(t, time.Second, p.Sleep(3, nil))
}

func TestFromConfig(t *testing.T) {
	fixed := FromConfig(config.RetryConfig{Policy: config.RETRY_POLICY_FIXED, Initial: time.Second})
	require.IsType(t, Fixed{}, fixed)

	exp := FromConfig(config.Default().RetryConfig)
	require.IsType(t, Exponential{}, exp)
	require.Equal(t, 2*time.Second, exp.Sleep(2, nil))
}
