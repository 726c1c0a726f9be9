package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// InboundPolicy decides what happens to a message that arrives while an
// earlier one is still displayed.
type InboundPolicy string

const (
	InboundQueue   InboundPolicy = "queue"
	InboundReplace InboundPolicy = "replace"
)

const (
	DefaultMaxRetries       = 5
	DefaultBaseDelay        = time.Second
	DefaultMultiplier       = 2.0
	DefaultOpenTimeout      = 5 * time.Second
	DefaultConfirmTimeout   = 4 * time.Second
	DefaultMaxMessageLength = 50
)

type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	Strategy   Strategy
	Multiplier float64
	// MaxDelay caps every retry delay. Zero means no cap.
	MaxDelay       time.Duration
	OpenTimeout    time.Duration
	ConfirmTimeout time.Duration
	// MaxMessageLength limits user text in characters. Zero disables it.
	MaxMessageLength int
	InboundPolicy    InboundPolicy
	Logger           *logrus.Logger
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:       DefaultMaxRetries,
		BaseDelay:        DefaultBaseDelay,
		Strategy:         StrategyLinear,
		Multiplier:       DefaultMultiplier,
		OpenTimeout:      DefaultOpenTimeout,
		ConfirmTimeout:   DefaultConfirmTimeout,
		MaxMessageLength: DefaultMaxMessageLength,
		InboundPolicy:    InboundQueue,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must not be negative, got %d", c.MaxRetries))
	}
	if c.BaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("base delay must be positive, got %v", c.BaseDelay))
	}
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		errs = append(errs, err)
	}
	if c.Strategy == StrategyExponential && c.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("multiplier must be at least 1, got %v", c.Multiplier))
	}
	if c.MaxDelay < 0 {
		errs = append(errs, fmt.Errorf("max delay must not be negative, got %v", c.MaxDelay))
	}
	if c.OpenTimeout <= 0 {
		errs = append(errs, fmt.Errorf("open timeout must be positive, got %v", c.OpenTimeout))
	}
	if c.ConfirmTimeout <= 0 {
		errs = append(errs, fmt.Errorf("confirm timeout must be positive, got %v", c.ConfirmTimeout))
	}
	if c.MaxMessageLength < 0 {
		errs = append(errs, fmt.Errorf("max message length must not be negative, got %d", c.MaxMessageLength))
	}
	switch c.InboundPolicy {
	case "", InboundQueue, InboundReplace:
	default:
		errs = append(errs, fmt.Errorf("unknown inbound policy %q", c.InboundPolicy))
	}
	return errors.Join(errs...)
}

func (c Config) normalized() Config {
	if c.Strategy == "" {
		c.Strategy = StrategyLinear
	}
	if c.InboundPolicy == "" {
		c.InboundPolicy = InboundQueue
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c
}
