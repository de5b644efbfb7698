package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"igengage/pkg/config"
	"igengage/pkg/logger"
)

// Tier names the band a delay was drawn from
type Tier int

const (
	TierBase Tier = iota
	TierShortBreak
	TierLongBreak
)

func (t Tier) String() string {
	switch t {
	case TierShortBreak:
		return "short_break"
	case TierLongBreak:
		return "long_break"
	default:
		return "base"
	}
}

// Sleeper blocks for d or until ctx is done
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f(ctx, d)
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// TimerSleeper sleeps on a real timer
type TimerSleeper struct{}

// Sleep waits for d or until ctx is done
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pacer spaces consecutive requests with randomized human-like delays
type Pacer struct {
	cfg     config.RateLimitConfig
	sleeper Sleeper
	log     logger.Logger

	mu        sync.Mutex
	rng       *rand.Rand
	modulus   int
	lastBreak int
}

// Option configures a Pacer
type Option func(*Pacer)

// WithSleeper replaces the real timer, mainly for tests
func WithSleeper(s Sleeper) Option {
	return func(p *Pacer) { p.sleeper = s }
}

// WithRand sets the random source
func WithRand(r *rand.Rand) Option {
	return func(p *Pacer) { p.rng = r }
}

// WithLogger sets the logger
func WithLogger(l logger.Logger) Option {
	return func(p *Pacer) { p.log = l }
}

// NewPacer creates a pacer for the given tiers
func NewPacer(cfg config.RateLimitConfig, opts ...Option) *Pacer {
	p := &Pacer{
		cfg:     cfg,
		sleeper: TimerSleeper{},
		log:     logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.rng == nil {
		p.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	p.modulus = p.drawModulus()
	return p
}

// Modulus returns the current short-break modulus
func (p *Pacer) Modulus() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.modulus
}

// Next picks the tier and delay for the item at index without sleeping.
// index counts items fetched so far; forceLong always selects a break.
func (p *Pacer) Next(index int, forceLong bool) (Tier, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case forceLong || p.breakDue(index):
		d := p.uniform(p.cfg.ShortBreakMin, p.cfg.ShortBreakMax)
		p.lastBreak = index
		if p.cfg.RandomizeModulus {
			p.modulus = p.drawModulus()
		}
		return TierShortBreak, d
	case index > 0 && p.cfg.LongModulus > 0 && index%p.cfg.LongModulus == 0:
		return TierLongBreak, p.uniform(p.cfg.LongBreakMin, p.cfg.LongBreakMax)
	default:
		return TierBase, p.jitter(p.uniform(p.cfg.BaseMin, p.cfg.BaseMax))
	}
}

// Delay picks a delay for index and sleeps through it.
// It returns the chosen delay, or the context error if the sleep was interrupted.
func (p *Pacer) Delay(ctx context.Context, index int, forceLong bool) (time.Duration, error) {
	tier, d := p.Next(index, forceLong)

	fields := map[string]interface{}{
		"index": index,
		"tier":  tier.String(),
		"delay": d,
	}
	if tier == TierBase {
		p.log.DebugWithFields("Pacing request", fields)
	} else {
		p.log.InfoWithFields("Taking a break", fields)
	}

	if err := p.sleeper.Sleep(ctx, d); err != nil {
		return d, err
	}
	return d, nil
}

// breakDue must be called with mu held. A randomized modulus counts items
// since the previous break; a fixed one uses multiples of the index.
func (p *Pacer) breakDue(index int) bool {
	if index <= 0 || p.modulus <= 0 {
		return false
	}
	if !p.cfg.RandomizeModulus {
		return index%p.modulus == 0
	}
	if index < p.lastBreak {
		// a new phase restarts the count
		p.lastBreak = 0
	}
	return index-p.lastBreak >= p.modulus
}

// drawModulus must be called with mu held or before the pacer is shared
func (p *Pacer) drawModulus() int {
	if !p.cfg.RandomizeModulus {
		return p.cfg.Modulus
	}
	lo, hi := p.cfg.ModulusMin, p.cfg.ModulusMax
	if hi <= lo {
		return lo
	}
	return lo + p.rng.Intn(hi-lo+1)
}

func (p *Pacer) uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(p.rng.Int63n(int64(max-min)+1))
}

func (p *Pacer) jitter(d time.Duration) time.Duration {
	if !p.cfg.Jitter {
		return d
	}
	if f := p.cfg.JitterFactor; f > 0 {
		scale := 1 + (p.rng.Float64()*2-1)*f
		d = time.Duration(float64(d) * scale)
	}
	if p.cfg.AdditiveJitter > 0 {
		d += time.Duration(p.rng.Int63n(int64(p.cfg.AdditiveJitter) + 1))
	}
	if d < 0 {
		d = 0
	}
	return d
}
