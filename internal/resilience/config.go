package resilience

import (
	"time"

	"github.com/sells-group/doc-intake/internal/config"
)

// Policy is the retry and breaker setup for one outbound service.
type Policy struct {
	Retry   RetryConfig
	Breaker CircuitBreakerConfig
}

// PolicyFor builds the Policy for service from the retry section of the
// config. Unset keys keep the package defaults.
func PolicyFor(service string, c config.RetryConfig) Policy {
	p := Policy{
		Retry:   DefaultRetryConfig(),
		Breaker: DefaultCircuitBreakerConfig(),
	}
	p.Breaker.Name = service

	if c.MaxAttempts > 0 {
		p.Retry.MaxAttempts = c.MaxAttempts
	}
	overrideDuration(&p.Retry.InitialBackoff, c.InitialBackoffMs, time.Millisecond)
	overrideDuration(&p.Retry.MaxBackoff, c.MaxBackoffMs, time.Millisecond)

	if c.CircuitFailureThreshold > 0 {
		p.Breaker.FailureThreshold = c.CircuitFailureThreshold
	}
	overrideDuration(&p.Breaker.ResetTimeout, c.CircuitResetSecs, time.Second)
	return p
}

func overrideDuration(d *time.Duration, n int, unit time.Duration) {
	if n > 0 {
		*d = time.Duration(n) * unit
	}
}
