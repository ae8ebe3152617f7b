package routing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/deltran/coordinator/internal/domain"
)

// Engine evaluates tenant-scoped routing rules concurrently and returns a
// cached RoutingDecision (§4.3).
type Engine struct {
	cache                   *decisionCache
	ruleEvaluationTimeout   time.Duration
	fallbackClearingSystem  string
}

// NewEngine builds an Engine with the given per-rule evaluation timeout
// and fallback clearing system (§6 config knobs).
func NewEngine(ruleEvaluationTimeout time.Duration, fallbackClearingSystem string) *Engine {
	return &Engine{
		cache:                  newDecisionCache(),
		ruleEvaluationTimeout:  ruleEvaluationTimeout,
		fallbackClearingSystem: fallbackClearingSystem,
	}
}

// matchResult is one rule's outcome, used to pick a winner after all rules
// have been evaluated concurrently.
type matchResult struct {
	rule    RoutingRule
	matched bool
}

// Evaluate runs the rule-selection pipeline (§4.3): fetch is the caller's
// responsibility (RoutingRulesPort); rules passed in must already be
// ACTIVE and effective at req.CreatedAt.
func (e *Engine) Evaluate(ctx context.Context, req Request, rules []RoutingRule) (Decision, error) {
	if cached, ok := e.cache.get(req.PaymentId); ok {
		return cached, nil
	}

	results := make([]matchResult, len(rules))
	g, gctx := errgroup.WithContext(ctx)

	for i, rule := range rules {
		i, rule := i, rule
		g.Go(func() error {
			results[i] = matchResult{rule: rule, matched: e.evaluateRule(gctx, rule, req)}
			return nil
		})
	}
	// errgroup.Go never returns an error here (evaluateRule recovers its
	// own panics and timeouts), so Wait cannot fail.
	_ = g.Wait()

	winner, found := selectWinner(results)
	if !found {
		decision := Decision{
			PaymentId:      req.PaymentId,
			ClearingSystem: e.fallbackClearingSystem,
			Priority:       req.Priority,
			DecisionReason: "No matching rule found",
			Fallback:       true,
		}
		e.cache.put(req.PaymentId, decision)
		return decision, nil
	}

	decision := executeActions(winner, req, e.fallbackClearingSystem)
	e.cache.put(req.PaymentId, decision)
	return decision, nil
}

// evaluateRule runs one rule's condition tree with its own timeout and
// panic recovery: a misbehaving rule is skipped, never fails the batch
// (§4.3).
func (e *Engine) evaluateRule(ctx context.Context, rule RoutingRule, req Request) (matched bool) {
	timeout := e.ruleEvaluationTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		defer func() {
			if recover() != nil {
				done <- false
			}
		}()
		done <- evaluateConditions(rule.Conditions, req)
	}()

	select {
	case <-rctx.Done():
		return false
	case result := <-done:
		return result
	}
}

// selectWinner picks the matching rule with the smallest priority,
// breaking ties by id (§4.3 step 4).
func selectWinner(results []matchResult) (RoutingRule, bool) {
	var winners []RoutingRule
	for _, r := range results {
		if r.matched {
			winners = append(winners, r.rule)
		}
	}
	if len(winners) == 0 {
		return RoutingRule{}, false
	}

	sort.Slice(winners, func(i, j int) bool {
		if winners[i].Priority != winners[j].Priority {
			return winners[i].Priority < winners[j].Priority
		}
		return winners[i].ID < winners[j].ID
	})
	return winners[0], true
}

// executeActions runs the winning rule's actions in declared order (§4.3
// step 5).
func executeActions(rule RoutingRule, req Request, fallbackClearingSystem string) Decision {
	decision := Decision{
		PaymentId: req.PaymentId,
		RuleId:    rule.ID,
		RuleName:  rule.RuleName,
		Priority:  req.Priority,
		Metadata:  map[string]string{},
	}

	hasPrimaryClearing := false
	for _, action := range rule.Actions {
		switch action.ActionType {
		case ActionRouteToClearingSystem:
			if action.IsPrimary {
				decision.ClearingSystem = action.ClearingSystem
				hasPrimaryClearing = true
			}
		case ActionSetPriority:
			decision.Priority = action.RoutingPriority
		case ActionAddMetadata:
			for k, v := range action.Parameters {
				decision.Metadata[k] = v
			}
		case ActionRejectPayment:
			decision.Rejected = true
			decision.DecisionReason = reasonOrDefault(action, "payment rejected by routing rule "+rule.RuleName)
		case ActionHoldPayment:
			decision.Held = true
			decision.DecisionReason = reasonOrDefault(action, "payment held by routing rule "+rule.RuleName)
		case ActionNotify:
			decision.Notifications = append(decision.Notifications, notifyTarget(action))
		}
	}

	if !hasPrimaryClearing {
		decision.ClearingSystem = fallbackClearingSystem
		decision.Fallback = true
	}
	if decision.DecisionReason == "" {
		decision.DecisionReason = fmt.Sprintf("matched rule %s", rule.RuleName)
	}

	return decision
}

func reasonOrDefault(action RoutingAction, fallback string) string {
	if reason, ok := action.Parameters["reason"]; ok && reason != "" {
		return reason
	}
	return fallback
}

func notifyTarget(action RoutingAction) string {
	if target, ok := action.Parameters["target"]; ok {
		return target
	}
	return "default"
}

// Invalidate drops a single payment's cached decision.
func (e *Engine) Invalidate(id domain.PaymentId) { e.cache.invalidate(id) }

// InvalidateAll clears the entire decision cache.
func (e *Engine) InvalidateAll() { e.cache.invalidateAll() }
