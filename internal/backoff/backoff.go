// Package backoff computes reconnection delays: exponential growth with
// randomized jitter, clamped so that the sequence never decreases and never
// exceeds a ceiling.
package backoff

import (
	"time"

	cbackoff "github.com/cenkalti/backoff/v5"
)

// Config parameterizes a Policy.
type Config struct {
	// Initial is the base delay before the first retry.
	Initial time.Duration `mapstructure:"initial"`
	// Multiplier scales the base delay after every attempt; values below 1 are treated as 1.
	Multiplier float64 `mapstructure:"multiplier"`
	// Max is the ceiling no delay may exceed.
	Max time.Duration `mapstructure:"max"`
	// Randomization is the jitter fraction in [0, 1): each delay is drawn from
	// base*(1±Randomization) before clamping.
	Randomization float64 `mapstructure:"randomization"`
}

// DefaultConfig returns the delays used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Initial:       time.Second,
		Multiplier:    2.0,
		Max:           60 * time.Second,
		Randomization: 0.5,
	}
}

// Policy yields the delay sequence for one run of reconnection attempts.
// A Policy is not safe for concurrent use; create one per attempt sequence.
type Policy struct {
	exp  *cbackoff.ExponentialBackOff
	max  time.Duration
	last time.Duration
}

// New returns a Policy in its initial state.
//
// Precondition: cfg.Max >= cfg.Initial > 0.
func New(cfg Config) *Policy {
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	if cfg.Randomization < 0 {
		cfg.Randomization = 0
	}
	exp := cbackoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.Initial
	exp.Multiplier = cfg.Multiplier
	exp.MaxInterval = cfg.Max
	exp.RandomizationFactor = cfg.Randomization
	exp.Reset()
	return &Policy{exp: exp, max: cfg.Max}
}

// Next returns the next delay.
//
// Postcondition: result >= every previous result and result <= the configured Max.
func (p *Policy) Next() time.Duration {
	d := p.exp.NextBackOff()
	if d < p.last {
		d = p.last
	}
	if d > p.max {
		d = p.max
	}
	p.last = d
	return d
}
