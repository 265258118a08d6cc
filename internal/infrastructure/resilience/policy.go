package resilience

import "time"

// Policy bounds how hard the service leans on a flaky dependency:
// a capped exponential retry, then a per-operation circuit breaker.
// The merge pipeline itself is deterministic and never retried; only
// transport calls (queue publish) run under a policy.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	DelayFactor float64

	BreakerEnabled bool
	// TripAfter is how many calls the breaker observes before the
	// failure ratio applies.
	TripAfter      uint32
	TripRatio      float64
	Cooldown       time.Duration
	HalfOpenProbes uint32
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    400 * time.Millisecond,
		DelayFactor: 2.0,

		BreakerEnabled: true,
		TripAfter:      10,
		TripRatio:      0.5,
		Cooldown:       30 * time.Second,
		HalfOpenProbes: 2,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()

	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.DelayFactor < 1.0 {
		p.DelayFactor = def.DelayFactor
	}

	if p.TripAfter == 0 {
		p.TripAfter = def.TripAfter
	}
	if p.TripRatio <= 0 || p.TripRatio > 1 {
		p.TripRatio = def.TripRatio
	}
	if p.Cooldown <= 0 {
		p.Cooldown = def.Cooldown
	}
	if p.HalfOpenProbes == 0 {
		p.HalfOpenProbes = def.HalfOpenProbes
	}

	return p
}
