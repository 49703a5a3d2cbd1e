package fraud

import (
	"math"
	"strings"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

// Indicator type names.
const (
	IndStakeVelocity   = "stake_velocity"
	IndWalletCycling   = "wallet_cycling"
	IndWalletChurn     = "ip_wallet_churn"
	IndAmountSpike     = "amount_spike"
	IndRepeatedAmounts = "repeated_amounts"
	IndTimePattern     = "time_pattern"
	IndClickPattern    = "click_pattern"
	IndGeoDispersion   = "geo_dispersion"
	IndBotUserAgent    = "bot_user_agent"
	IndSuspiciousUA    = "suspicious_user_agent"
	IndSuspiciousRef   = "suspicious_referrer"
)

// stakeChecks is the fixed battery run on every stake analysis. Each entry
// is independent; a panic-free nil return means the indicator did not fire.
func (e *Engine) stakeChecks() []func(stakeContext) *domain.FraudIndicator {
	return []func(stakeContext) *domain.FraudIndicator{
		e.checkStakeVelocity,
		e.checkWalletCycling,
		e.checkWalletChurn,
		e.checkAmountSpike,
		e.checkRepeatedAmounts,
		e.checkTimePattern,
	}
}

// clickChecks is the fixed battery run on every click analysis.
func (e *Engine) clickChecks() []func(clickContext) *domain.FraudIndicator {
	return []func(clickContext) *domain.FraudIndicator{
		e.checkClickPattern,
		e.checkGeoDispersion,
		e.checkBotUserAgent,
		e.checkShortUserAgent,
		e.checkReferrer,
	}
}

// checkStakeVelocity fires when a subject stakes more often than the hourly
// limit.
func (e *Engine) checkStakeVelocity(sc stakeContext) *domain.FraudIndicator {
	cutoff := sc.now.Add(-e.cfg.VelocityWindow)
	count := 1 // the event under analysis
	for _, ev := range sc.subjectHistory {
		if !ev.Timestamp.Before(cutoff) {
			count++
		}
	}
	if count <= e.cfg.VelocityMax {
		return nil
	}
	return &domain.FraudIndicator{
		Type:       IndStakeVelocity,
		Severity:   domain.SeverityHigh,
		Confidence: 90,
		Details: map[string]any{
			"count":  count,
			"limit":  e.cfg.VelocityMax,
			"window": e.cfg.VelocityWindow.String(),
		},
	}
}

// checkWalletCycling fires when one counterparty wallet is shared across
// multiple subjects. Zero tolerance: any reuse is critical with no minimum
// window.
func (e *Engine) checkWalletCycling(sc stakeContext) *domain.FraudIndicator {
	distinct := make(map[string]struct{}, len(sc.walletSubjects)+1)
	distinct[sc.event.Subject] = struct{}{}
	for _, s := range sc.walletSubjects {
		distinct[s] = struct{}{}
	}
	if len(distinct) < 2 {
		return nil
	}
	return &domain.FraudIndicator{
		Type:       IndWalletCycling,
		Severity:   domain.SeverityCritical,
		Confidence: 95,
		Details: map[string]any{
			"wallet":   sc.event.CounterpartyWallet,
			"subjects": len(distinct),
		},
	}
}

// checkWalletChurn fires when one IP rotates through too many counterparty
// wallets in a day.
func (e *Engine) checkWalletChurn(sc stakeContext) *domain.FraudIndicator {
	if sc.walletsFromIP <= e.cfg.MaxWalletsPerIP {
		return nil
	}
	return &domain.FraudIndicator{
		Type:       IndWalletChurn,
		Severity:   domain.SeverityHigh,
		Confidence: 80,
		Details: map[string]any{
			"ip":      sc.event.IP,
			"wallets": sc.walletsFromIP,
			"limit":   e.cfg.MaxWalletsPerIP,
		},
	}
}

// checkAmountSpike fires when the staked amount is a sudden multiple of the
// subject's own average.
func (e *Engine) checkAmountSpike(sc stakeContext) *domain.FraudIndicator {
	if len(sc.subjectHistory) < 3 {
		return nil
	}
	var sum float64
	for _, ev := range sc.subjectHistory {
		sum += ev.Amount
	}
	avg := sum / float64(len(sc.subjectHistory))
	if avg <= 0 || sc.event.Amount < avg*e.cfg.AmountSpikeMult {
		return nil
	}

	sev := domain.SeverityMedium
	conf := 70.0
	if sc.event.Amount >= avg*2*e.cfg.AmountSpikeMult {
		sev = domain.SeverityHigh
		conf = 85
	}
	return &domain.FraudIndicator{
		Type:       IndAmountSpike,
		Severity:   sev,
		Confidence: conf,
		Details: map[string]any{
			"amount":  sc.event.Amount,
			"average": avg,
		},
	}
}

// checkRepeatedAmounts fires when the exact amount repeats beyond the limit,
// a signature of scripted staking.
func (e *Engine) checkRepeatedAmounts(sc stakeContext) *domain.FraudIndicator {
	count := 1
	for _, ev := range sc.subjectHistory {
		if ev.Amount == sc.event.Amount {
			count++
		}
	}
	if count <= e.cfg.RepeatedAmountMax {
		return nil
	}
	return &domain.FraudIndicator{
		Type:       IndRepeatedAmounts,
		Severity:   domain.SeverityMedium,
		Confidence: 75,
		Details: map[string]any{
			"amount": sc.event.Amount,
			"count":  count,
		},
	}
}

// checkTimePattern fires on metronome-like staking: low variance of
// inter-event intervals combined with a short mean interval.
func (e *Engine) checkTimePattern(sc stakeContext) *domain.FraudIndicator {
	events := append(append([]domain.StakeEvent{}, sc.subjectHistory...), sc.event)
	if len(events) < e.cfg.TimePatternMinEvents {
		return nil
	}
	events = events[len(events)-e.cfg.TimePatternMinEvents:]

	intervals := make([]float64, 0, len(events)-1)
	for i := 1; i < len(events); i++ {
		intervals = append(intervals, events[i].Timestamp.Sub(events[i-1].Timestamp).Seconds())
	}

	var mean float64
	for _, v := range intervals {
		mean += v
	}
	mean /= float64(len(intervals))

	var variance float64
	for _, v := range intervals {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(intervals))
	std := math.Sqrt(variance)

	if std >= e.cfg.TimePatternMaxStd.Seconds() || mean >= e.cfg.TimePatternMaxMean.Seconds() {
		return nil
	}
	return &domain.FraudIndicator{
		Type:       IndTimePattern,
		Severity:   domain.SeverityHigh,
		Confidence: 85,
		Details: map[string]any{
			"mean_interval_s": mean,
			"stddev_s":        std,
		},
	}
}

// checkClickPattern fires when one IP hammers one link past the per-minute
// limit. Always critical; the engine blocks the click.
func (e *Engine) checkClickPattern(cc clickContext) *domain.FraudIndicator {
	cutoff := cc.now.Add(-time.Minute)
	count := 1
	for _, ev := range cc.ipClicks {
		if ev.LinkID == cc.event.LinkID && !ev.Timestamp.Before(cutoff) {
			count++
		}
	}
	if count <= e.cfg.ClickRateMax {
		return nil
	}
	return &domain.FraudIndicator{
		Type:       IndClickPattern,
		Severity:   domain.SeverityCritical,
		Confidence: 95,
		Details: map[string]any{
			"ip":    cc.event.IP,
			"link":  cc.event.LinkID,
			"count": count,
			"limit": e.cfg.ClickRateMax,
		},
	}
}

// checkGeoDispersion fires when a link's clicks span more countries than its
// modest volume plausibly explains.
func (e *Engine) checkGeoDispersion(cc clickContext) *domain.FraudIndicator {
	countries := make(map[string]struct{})
	if cc.event.Country != "" {
		countries[cc.event.Country] = struct{}{}
	}
	for _, ev := range cc.linkClicks {
		if ev.Country != "" {
			countries[ev.Country] = struct{}{}
		}
	}
	total := len(cc.linkClicks) + 1
	if len(countries) <= e.cfg.GeoCountryMax || total >= e.cfg.GeoMinVolume {
		return nil
	}
	return &domain.FraudIndicator{
		Type:       IndGeoDispersion,
		Severity:   domain.SeverityMedium,
		Confidence: 60,
		Details: map[string]any{
			"countries": len(countries),
			"clicks":    total,
		},
	}
}

// checkBotUserAgent fires on known automation signatures in the user agent.
func (e *Engine) checkBotUserAgent(cc clickContext) *domain.FraudIndicator {
	ua := strings.ToLower(cc.event.UserAgent)
	for _, sig := range e.cfg.BotUASignatures {
		if strings.Contains(ua, sig) {
			return &domain.FraudIndicator{
				Type:       IndBotUserAgent,
				Severity:   domain.SeverityHigh,
				Confidence: 90,
				Details:    map[string]any{"signature": sig},
			}
		}
	}
	return nil
}

// checkShortUserAgent fires on a missing or implausibly short user agent.
func (e *Engine) checkShortUserAgent(cc clickContext) *domain.FraudIndicator {
	if len(cc.event.UserAgent) >= e.cfg.MinUALength {
		return nil
	}
	return &domain.FraudIndicator{
		Type:       IndSuspiciousUA,
		Severity:   domain.SeverityMedium,
		Confidence: 60,
		Details:    map[string]any{"user_agent": cc.event.UserAgent},
	}
}

// checkReferrer fires on referrers associated with click farms and paid
// redirect chains.
func (e *Engine) checkReferrer(cc clickContext) *domain.FraudIndicator {
	ref := strings.ToLower(cc.event.Referrer)
	if ref == "" {
		return nil
	}
	for _, sig := range e.cfg.SuspiciousReferrers {
		if strings.Contains(ref, sig) {
			return &domain.FraudIndicator{
				Type:       IndSuspiciousRef,
				Severity:   domain.SeverityMedium,
				Confidence: 65,
				Details:    map[string]any{"referrer": cc.event.Referrer},
			}
		}
	}
	return nil
}
