// Package controller implements the supply feedback loop: a PID controller
// over the normalized price error that proposes bounded mint/burn
// adjustments, and the agent that executes them through the gateway.
package controller

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

// ErrCooldownActive is returned when a proposal is requested before the
// minimum interval since the last adjustment has elapsed.
var ErrCooldownActive = errors.New("controller: adjustment cooldown active")

// Config holds the controller gains and limits.
type Config struct {
	Kp float64
	Ki float64
	Kd float64

	TargetPrice  float64
	ToleranceBps float64 // dead band around target, in basis points

	IntegralMin float64
	IntegralMax float64
	OutputMin   float64
	OutputMax   float64

	MaxMintRate float64 // fraction of supply mintable per day (0.02 = 2%)
	MaxBurnRate float64 // fraction of supply burnable per day

	Cooldown time.Duration

	// Adaptive gain tuning: kp is nudged up when recent tracking error stays
	// high and down when it stays low, within [KpMin, KpMax].
	Adaptive    bool
	KpMin       float64
	KpMax       float64
	ErrorWindow int
}

// DefaultConfig returns conservative production gains.
func DefaultConfig() Config {
	return Config{
		Kp:           0.5,
		Ki:           0.1,
		Kd:           0.05,
		ToleranceBps: 100,
		IntegralMin:  -1,
		IntegralMax:  1,
		OutputMin:    -1,
		OutputMax:    1,
		MaxMintRate:  0.02,
		MaxBurnRate:  0.02,
		Cooldown:     time.Hour,
		Adaptive:     true,
		KpMin:        0.1,
		KpMax:        2.0,
		ErrorWindow:  20,
	}
}

// PID proposes supply adjustments from price error. The integral accumulator
// and previous error are owned exclusively by this struct; all entry points
// hold the mutex, so concurrent callers serialize.
type PID struct {
	mu  sync.Mutex
	cfg Config

	kp        float64 // live gain; diverges from cfg.Kp when adaptive
	integral  float64
	prevError float64
	lastTick  time.Time
	lastAdj   time.Time

	recentErrors []float64

	totalMinted float64
	totalBurned float64
	cycles      int64
}

// NewPID creates a controller with the given config.
func NewPID(cfg Config) *PID {
	if cfg.ErrorWindow <= 0 {
		cfg.ErrorWindow = DefaultConfig().ErrorWindow
	}
	return &PID{cfg: cfg, kp: cfg.Kp}
}

// Propose runs one control cycle at the given time and returns the supply
// adjustment for the current price and circulating supply. Cadence is driven
// by the caller and may be irregular; the integral and derivative terms are
// scaled by the actual elapsed interval.
func (p *PID) Propose(now time.Time, currentPrice, currentSupply float64) (domain.SupplyAdjustment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if currentPrice <= 0 || math.IsNaN(currentPrice) {
		return domain.SupplyAdjustment{}, fmt.Errorf("controller: invalid price %v", currentPrice)
	}
	if p.cfg.TargetPrice <= 0 {
		return domain.SupplyAdjustment{}, errors.New("controller: target price not configured")
	}
	if !p.lastAdj.IsZero() && now.Sub(p.lastAdj) < p.cfg.Cooldown {
		return domain.SupplyAdjustment{}, ErrCooldownActive
	}

	// Normalized error: positive when price sits below target.
	err := (p.cfg.TargetPrice - currentPrice) / p.cfg.TargetPrice

	p.observeError(err)

	// Dead band to prevent oscillation around the target.
	if math.Abs(err) < p.cfg.ToleranceBps/10_000 {
		p.prevError = err
		p.lastTick = now
		return domain.SupplyAdjustment{
			Type:   domain.AdjustmentNone,
			Reason: "price within tolerance",
		}, nil
	}

	dt := 1.0
	if !p.lastTick.IsZero() {
		dt = math.Max(now.Sub(p.lastTick).Seconds(), 1)
	}

	// Integral with anti-windup clamp.
	p.integral += err * dt
	p.integral = clamp(p.integral, p.cfg.IntegralMin, p.cfg.IntegralMax)

	var derivative float64
	if !p.lastTick.IsZero() {
		derivative = (err - p.prevError) / dt
	}

	output := p.kp*err + p.cfg.Ki*p.integral + p.cfg.Kd*derivative
	output = clamp(output, p.cfg.OutputMin, p.cfg.OutputMax)

	// Positive error (price below target) yields positive output, which maps
	// to a negative adjustment percentage: burn to reduce supply.
	var adjType domain.AdjustmentType
	var rate float64
	if output > 0 {
		adjType = domain.AdjustmentBurn
		rate = p.cfg.MaxBurnRate
	} else {
		adjType = domain.AdjustmentMint
		rate = p.cfg.MaxMintRate
	}
	amount := currentSupply * math.Abs(output) * rate

	p.prevError = err
	p.lastTick = now
	p.lastAdj = now
	p.cycles++
	switch adjType {
	case domain.AdjustmentMint:
		p.totalMinted += amount
	case domain.AdjustmentBurn:
		p.totalBurned += amount
	}

	return domain.SupplyAdjustment{
		Type:   adjType,
		Amount: amount,
		Output: output,
		Reason: fmt.Sprintf("pid output %.4f, price error %.2f%%, integral %.4f", output, err*100, p.integral),
	}, nil
}

// observeError records the tracking error and adapts kp. Sustained error
// above 5% speeds the controller up; error under 1% slows it to avoid
// overshoot. Must be called with the mutex held.
func (p *PID) observeError(err float64) {
	if !p.cfg.Adaptive {
		return
	}

	p.recentErrors = append(p.recentErrors, math.Abs(err))
	if len(p.recentErrors) > p.cfg.ErrorWindow {
		p.recentErrors = p.recentErrors[1:]
	}
	if len(p.recentErrors) < 5 {
		return
	}

	var sum float64
	for _, e := range p.recentErrors {
		sum += e
	}
	avg := sum / float64(len(p.recentErrors))

	switch {
	case avg > 0.05:
		p.kp *= 1.1
	case avg < 0.01:
		p.kp *= 0.9
	}
	p.kp = clamp(p.kp, p.cfg.KpMin, p.cfg.KpMax)
}

// SetTarget updates the price the controller steers toward. The floor
// ratchets upward over time, so the caller refreshes the target from each
// snapshot. Non-positive values are ignored.
func (p *PID) SetTarget(price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if price > 0 {
		p.cfg.TargetPrice = price
	}
}

// Reset clears the accumulated controller state but keeps gains and totals.
func (p *PID) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.integral = 0
	p.prevError = 0
	p.lastTick = time.Time{}
}

// Kp returns the live proportional gain, which drifts from the configured
// value under adaptive tuning.
func (p *PID) Kp() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kp
}

// Totals reports cumulative minted and burned amounts proposed so far.
func (p *PID) Totals() (minted, burned float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalMinted, p.totalBurned
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
