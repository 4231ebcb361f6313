package retry

import (
	"math"
	"time"

	"github.com/mohitkumar/flowengine/config"
)

// Policy decides how long to wait before the given retry attempt. attempt starts at 1.
type Policy interface {
	Sleep(attempt int, cause error) time.Duration
}

var _ Policy = Fixed{}
var _ Policy = Exponential{}

type Fixed struct {
	Interval time.Duration
}

func NewFixed(interval time.Duration) Fixed {
	if interval < 0 {
		interval = 0
	}
	return Fixed{Interval: interval}
}

func (f Fixed) Sleep(attempt int, cause error) time.Duration {
	return f.Interval
}

// Exponential waits initial*multiplier^(attempt-1), capped at max.
type Exponential struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func NewExponential(initial, max time.Duration, multiplier float64) Exponential {
	if initial < 0 {
		initial = 0
	}
	if max < initial {
		max = initial
	}
	if multiplier < 1.0 {
		multiplier = 1.0
	}
	return Exponential{Initial: initial, Max: max, Multiplier: multiplier}
}

func (e Exponential) Sleep(attempt int, cause error) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(e.Initial) * math.Pow(e.Multiplier, float64(attempt-1))
	if d >= float64(e.Max) || math.IsInf(d, 0) || math.IsNaN(d) {
		return e.Max
	}
	return time.Duration(d)
}

func FromConfig(conf config.RetryConfig) Policy {
	switch conf.Policy {
	case config.RETRY_POLICY_FIXED:
		return NewFixed(conf.Initial)
	default:
		return NewExponential(conf.Initial, conf.Max, conf.Multiplier)
	}
}
