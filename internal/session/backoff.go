package session

import (
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff"
)

// Strategy names how the delay before retry n grows.
type Strategy string

const (
	StrategyLinear      Strategy = "linear"
	StrategyExponential Strategy = "exponential"
	StrategyConstant    Strategy = "constant"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategyLinear:
		return StrategyLinear, nil
	case StrategyExponential, StrategyConstant:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown backoff strategy %q", s)
}

// newBackOff returns the retry delay source. After Reset, the n-th call to
// NextBackOff yields the delay before retry n.
func newBackOff(cfg Config) backoff.BackOff {
	var b backoff.BackOff
	switch cfg.Strategy {
	case StrategyExponential:
		e := backoff.NewExponentialBackOff()
		e.InitialInterval = cfg.BaseDelay
		e.RandomizationFactor = 0
		e.Multiplier = cfg.Multiplier
		e.MaxInterval = time.Duration(math.MaxInt64)
		e.MaxElapsedTime = 0
		e.Reset()
		b = e
	case StrategyConstant:
		b = backoff.NewConstantBackOff(cfg.BaseDelay)
	default:
		b = &linearBackOff{base: cfg.BaseDelay}
	}

	if cfg.MaxDelay > 0 {
		b = &cappedBackOff{BackOff: b, max: cfg.MaxDelay}
	}
	return b
}

type linearBackOff struct {
	base time.Duration
	n    int
}

func (l *linearBackOff) NextBackOff() time.Duration {
	l.n++
	return time.Duration(l.n) * l.base
}

func (l *linearBackOff) Reset() {
	l.n = 0
}

type cappedBackOff struct {
	backoff.BackOff
	max time.Duration
}

func (c *cappedBackOff) NextBackOff() time.Duration {
	d := c.BackOff.NextBackOff()
	if d == backoff.Stop || d > c.max {
		return c.max
	}
	return d
}
