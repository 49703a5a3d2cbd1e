// Package fraud scores behavioral events (stakes, link clicks) against a
// battery of independent indicator checks and turns the weighted result into
// an allow/review/block recommendation.
package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/twistlabs/guardian/internal/domain"
)

// stakeContext is the pre-fetched history a stake analysis runs over. All
// indicator checks are pure functions of this struct, so they parallelize
// and unit-test without storage.
type stakeContext struct {
	event domain.StakeEvent
	now   time.Time

	// Trailing week of the subject's stakes, oldest first, excluding the
	// event under analysis.
	subjectHistory []domain.StakeEvent

	// Subjects seen using the same counterparty wallet in the cycling
	// window, including this event's subject.
	walletSubjects []string

	// Distinct counterparty wallets seen from this IP in the past day.
	walletsFromIP int
}

// clickContext is the pre-fetched history a click analysis runs over.
type clickContext struct {
	event domain.ClickEvent
	now   time.Time

	// Clicks from the same IP in the short-rate window, excluding the event
	// under analysis.
	ipClicks []domain.ClickEvent

	// Clicks on the same link over the dispersion window.
	linkClicks []domain.ClickEvent
}

// hydrateStake loads the history windows for one stake event.
func (e *Engine) hydrateStake(ctx context.Context, ev domain.StakeEvent, now time.Time) (stakeContext, error) {
	sc := stakeContext{event: ev, now: now}

	history, err := e.events.ListStakesBySubject(ctx, ev.Subject, now.Add(-e.cfg.CyclingWindow))
	if err != nil {
		return sc, fmt.Errorf("fraud: load subject history: %w", err)
	}
	sc.subjectHistory = history

	if ev.CounterpartyWallet != "" {
		subjects, err := e.events.ListSubjectsByWallet(ctx, ev.CounterpartyWallet, now.Add(-e.cfg.CyclingWindow))
		if err != nil {
			return sc, fmt.Errorf("fraud: load wallet subjects: %w", err)
		}
		sc.walletSubjects = subjects
	}

	if ev.IP != "" {
		count, err := e.events.CountWalletsByIP(ctx, ev.IP, now.Add(-24*time.Hour))
		if err != nil {
			return sc, fmt.Errorf("fraud: count wallets by ip: %w", err)
		}
		sc.walletsFromIP = count
	}
	return sc, nil
}

// hydrateClick loads the history windows for one click event.
func (e *Engine) hydrateClick(ctx context.Context, ev domain.ClickEvent, now time.Time) (clickContext, error) {
	cc := clickContext{event: ev, now: now}

	ipClicks, err := e.events.ListClicksByIP(ctx, ev.IP, now.Add(-e.cfg.ClickRateWindow))
	if err != nil {
		return cc, fmt.Errorf("fraud: load ip clicks: %w", err)
	}
	cc.ipClicks = ipClicks

	linkClicks, err := e.events.ListClicksByLink(ctx, ev.LinkID, now.Add(-e.cfg.GeoWindow))
	if err != nil {
		return cc, fmt.Errorf("fraud: load link clicks: %w", err)
	}
	cc.linkClicks = linkClicks
	return cc, nil
}
