package resilience

import "time"

// BackoffConfig parameterizes exponential retry delays: base doubles per
// attempt up to Cap. Attempts counts total tries, not retries.
type BackoffConfig struct {
	Base     time.Duration
	Cap      time.Duration
	Attempts int
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Base:     500 * time.Millisecond,
		Cap:      8 * time.Second,
		Attempts: 3,
	}
}

func NormalizeBackoffConfig(cfg BackoffConfig) BackoffConfig {
	defaults := DefaultBackoffConfig()
	if cfg.Base <= 0 {
		cfg.Base = defaults.Base
	}
	if cfg.Cap <= 0 {
		cfg.Cap = defaults.Cap
	}
	if cfg.Cap < cfg.Base {
		cfg.Cap = cfg.Base
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = defaults.Attempts
	}
	return cfg
}

// Delay returns the wait before retry number attempt (0-based: the delay
// after the first failure is Delay(0)).
func (c BackoffConfig) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := c.Base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= c.Cap {
			return c.Cap
		}
	}
	if delay > c.Cap {
		return c.Cap
	}
	return delay
}
