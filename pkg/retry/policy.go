// Package retry owns the reconnection backoff arithmetic and attempt
// bookkeeping for the configuration stream client.
package retry

import (
	cryptorand "crypto/rand"
	"math"
	"math/big"
	"sync"
	"time"
)

// Defaults match the shipped listener configuration
const (
	DefaultBaseDelay    = 1 * time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultJitterFactor = 0.1
)

// Policy computes backoff delays for consecutive connection failures.
// The zero value is not usable; construct with NewPolicy.
type Policy struct {
	// BaseDelay is the delay after the first failure
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth
	MaxDelay time.Duration

	// JitterFactor perturbs each delay by up to ±JitterFactor of its value
	// so a fleet of clients does not retry in lockstep.
	JitterFactor float64

	// rand yields values in [0, 1); injectable so backoff sequences are
	// reproducible in tests.
	rand func() float64
}

// PolicyOption configures a Policy
type PolicyOption func(*Policy)

// WithBaseDelay sets the first-failure delay
func WithBaseDelay(d time.Duration) PolicyOption {
	return func(p *Policy) {
		if d > 0 {
			p.BaseDelay = d
		}
	}
}

// WithMaxDelay sets the delay cap
func WithMaxDelay(d time.Duration) PolicyOption {
	return func(p *Policy) {
		if d > 0 {
			p.MaxDelay = d
		}
	}
}

// WithJitterFactor sets the jitter bound as a fraction of the delay
func WithJitterFactor(f float64) PolicyOption {
	return func(p *Policy) {
		if f >= 0 && f < 1 {
			p.JitterFactor = f
		}
	}
}

// WithRandSource injects the randomness source used for jitter
func WithRandSource(rand func() float64) PolicyOption {
	return func(p *Policy) {
		if rand != nil {
			p.rand = rand
		}
	}
}

// NewPolicy creates a backoff policy with the given options
func NewPolicy(opts ...PolicyOption) Policy {
	p := Policy{
		BaseDelay:    DefaultBaseDelay,
		MaxDelay:     DefaultMaxDelay,
		JitterFactor: DefaultJitterFactor,
		rand:         secureRandFloat64,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Delay returns the backoff before reconnect attempt number attempt, where
// attempt counts consecutive failures starting at 1:
//
//	min(BaseDelay * 2^(attempt-1), MaxDelay) ± jitter
//
// The jittered result never exceeds MaxDelay and never drops below zero.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	backoff := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}

	if p.JitterFactor > 0 {
		jitter := backoff * p.JitterFactor * (p.rand()*2 - 1)
		backoff += jitter
	}

	if backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}
	if backoff < 0 {
		backoff = 0
	}

	return time.Duration(backoff)
}

// State tracks consecutive connection failures for one listener. It is safe
// for concurrent use: the orchestrator increments between connections while
// the dispatcher resets on successful delivery.
type State struct {
	mu         sync.Mutex
	attempt    int
	maxRetries int
	hint       time.Duration
}

// NewState creates attempt bookkeeping with the given retry budget
func NewState(maxRetries int) *State {
	return &State{maxRetries: maxRetries}
}

// Attempt returns the current consecutive-failure count
func (s *State) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// RecordFailure increments the consecutive-failure count and reports whether
// the retry budget still allows another attempt.
func (s *State) RecordFailure() (attempt int, exhausted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempt++
	return s.attempt, s.attempt > s.maxRetries
}

// Reset clears the failure count. Called after any successfully delivered
// event: one good event proves the connection works, so the next failure
// starts the backoff schedule over.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempt = 0
}

// SetHint records a server-provided delay override for the next backoff only
func (s *State) SetHint(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hint = d
}

// TakeHint returns and clears the pending delay override
func (s *State) TakeHint() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hint := s.hint
	s.hint = 0
	return hint, hint > 0
}

// secureRandFloat64 generates a cryptographically secure random float64 in [0, 1)
func secureRandFloat64() float64 {
	max := big.NewInt(1 << 53)
	n, err := cryptorand.Int(cryptorand.Reader, max)
	if err != nil {
		return 0.5
	}
	return float64(n.Int64()) / float64(1<<53)
}
