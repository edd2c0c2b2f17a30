package scraper

import (
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/content-orchestrator/internal/apperr"
	"github.com/JakeFAU/content-orchestrator/internal/leads"
)

const defaultLeaseTTL = time.Hour

// Lease grants one holder exclusive use of a squid until ExpiresAt.
type Lease struct {
	SquidID   string    `json:"squid_id"`
	Holder    string    `json:"holder"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Leaser hands out in-process squid leases.
type Leaser struct {
	mu     sync.Mutex
	ttl    time.Duration
	clock  leads.Clock
	ids    leads.IDGenerator
	leases map[string]Lease
}

// NewLeaser builds a Leaser. A non-positive ttl uses one hour.
func NewLeaser(ttl time.Duration, clock leads.Clock, ids leads.IDGenerator) *Leaser {
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &Leaser{ttl: ttl, clock: clock, ids: ids, leases: make(map[string]Lease)}
}

// Acquire grants or renews the lease on squidID for holder. A live lease of
// another holder yields a CONFLICT error.
func (l *Leaser) Acquire(squidID, holder string) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	if cur, ok := l.leases[squidID]; ok && now.Before(cur.ExpiresAt) {
		if cur.Holder != holder {
			return Lease{}, apperr.Newf(apperr.CodeConflict, "acquire squid lease",
				"squid %s is in use by another run until %s", squidID, cur.ExpiresAt.UTC().Format(time.RFC3339)).
				WithDetail("squid_id", squidID)
		}
		cur.ExpiresAt = now.Add(l.ttl)
		l.leases[squidID] = cur
		return cur, nil
	}
	token, err := l.ids.NewID()
	if err != nil {
		return Lease{}, fmt.Errorf("lease token: %w", err)
	}
	lease := Lease{SquidID: squidID, Holder: holder, Token: token, ExpiresAt: now.Add(l.ttl)}
	l.leases[squidID] = lease
	return lease, nil
}

// Check fails with CONFLICT when another holder has a live lease, or when
// token is set and differs from the live lease's token. An empty token is
// checked by holder alone.
func (l *Leaser) Check(squidID, holder, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.leases[squidID]
	if !ok || !l.clock.Now().Before(cur.ExpiresAt) {
		return nil
	}
	if cur.Holder != holder {
		return apperr.Newf(apperr.CodeConflict, "check squid lease", "squid %s is in use by another run", squidID).
			WithDetail("squid_id", squidID)
	}
	if token != "" && token != cur.Token {
		return apperr.Newf(apperr.CodeConflict, "check squid lease", "lease token for squid %s is stale", squidID).
			WithDetail("squid_id", squidID)
	}
	return nil
}

// Release drops holder's lease on squidID. It reports whether a lease was
// released.
func (l *Leaser) Release(squidID, holder string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.leases[squidID]
	if !ok || cur.Holder != holder {
		return false
	}
	delete(l.leases, squidID)
	return true
}

// Current returns the live lease on squidID, if any.
func (l *Leaser) Current(squidID string) (Lease, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cur, ok := l.leases[squidID]
	if !ok || !l.clock.Now().Before(cur.ExpiresAt) {
		return Lease{}, false
	}
	return cur, true
}
