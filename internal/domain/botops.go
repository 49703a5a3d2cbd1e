package domain

import "time"

// BotOperation is one append-only record of a state-changing action taken by
// an automated agent. The coordinator scans these for temporal conflicts.
type BotOperation struct {
	ID        int64
	Agent     string // "buyback_bot", "supply_bot", "market_maker", ...
	OpType    string // "buyback", "mint", "burn", "quote", ...
	Target    string // resource the operation acted on (pool, mint)
	Detail    map[string]any
	Timestamp time.Time
}

// OpConflict pairs two operations from different agents that hit the same
// target within the conflict window.
type OpConflict struct {
	First  BotOperation
	Second BotOperation
	Gap    time.Duration
}
