package validation

import "context"

// SanctionsMatch is one hit returned by a SanctionsScreener.
type SanctionsMatch struct {
	EntityName string
	ListName   string
	Score      float64 // 0..1, 1 being an exact match
}

// SanctionsScreener is the FRAUD group's injected lookup port, adapted
// from the teacher's compliance.SanctionsScreener.Screen but stripped of
// its database/sql backing — the engine itself performs no I/O (§4.2).
type SanctionsScreener interface {
	Screen(ctx context.Context, name string) ([]SanctionsMatch, error)
}

// VelocityCounter is the RISK group's injected lookup port for
// transaction-velocity scoring (count of recent payments for an account
// within a window).
type VelocityCounter interface {
	CountRecent(ctx context.Context, account string, window string) (int, error)
}

// RuleContext bundles every external dependency a Rule may need. Rules
// receive it by value at Evaluate time; the engine never holds it itself,
// keeping the engine I/O-free and deterministic given a fixed RuleContext.
type RuleContext struct {
	Ctx        context.Context
	Sanctions  SanctionsScreener
	Velocity   VelocityCounter
	SupportedCurrencies []string
	MinAmount  string
	MaxAmount  string
}
