package routing

import (
	"sync"

	"github.com/deltran/coordinator/internal/domain"
)

// decisionCache is a mutex-guarded, TTL-less decision cache keyed by
// PaymentId (§4.3): entries live until explicitly invalidated, matching
// the spec's "positive decision may be cached... invalidate/invalidateAll"
// contract rather than a time-based eviction policy.
type decisionCache struct {
	mu    sync.Mutex
	byPay map[domain.PaymentId]Decision
}

func newDecisionCache() *decisionCache {
	return &decisionCache{byPay: make(map[domain.PaymentId]Decision)}
}

func (c *decisionCache) get(id domain.PaymentId) (Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.byPay[id]
	return d, ok
}

func (c *decisionCache) put(id domain.PaymentId, d Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byPay[id] = d
}

// invalidate removes a single payment's cached decision.
func (c *decisionCache) invalidate(id domain.PaymentId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byPay, id)
}

// invalidateAll clears the entire cache.
func (c *decisionCache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byPay = make(map[domain.PaymentId]Decision)
}
