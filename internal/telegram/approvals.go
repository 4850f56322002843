package telegram

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// pendingApprovals holds in-flight approval requests keyed by an opaque id
// carried in the inline-button callback data. Entries expire after the TTL;
// an expired or unknown key resolves to a denial.
type pendingApprovals struct {
	mu      sync.Mutex
	ttl     time.Duration
	waiting map[string]chan bool
}

func newPendingApprovals(ttl time.Duration) *pendingApprovals {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &pendingApprovals{ttl: ttl, waiting: make(map[string]chan bool)}
}

// create registers a new pending request and returns its key.
func (p *pendingApprovals) create() (string, chan bool) {
	key := newApprovalKey()
	ch := make(chan bool, 1)
	p.mu.Lock()
	p.waiting[key] = ch
	p.mu.Unlock()
	return key, ch
}

// await blocks until the request is resolved, the TTL elapses, or the context
// is cancelled. Timeout counts as a denial, not an error.
func (p *pendingApprovals) await(ctx context.Context, key string, ch chan bool) (bool, error) {
	timer := time.NewTimer(p.ttl)
	defer timer.Stop()
	defer p.drop(key)

	select {
	case approved := <-ch:
		return approved, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// resolve answers a pending request. It reports false when the key is unknown
// or already resolved.
func (p *pendingApprovals) resolve(key string, approved bool) bool {
	p.mu.Lock()
	ch, ok := p.waiting[key]
	if ok {
		delete(p.waiting, key)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- approved
	return true
}

func (p *pendingApprovals) drop(key string) {
	p.mu.Lock()
	delete(p.waiting, key)
	p.mu.Unlock()
}

func newApprovalKey() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return hex.EncodeToString([]byte(time.Now().Format("150405.000000")))
	}
	return hex.EncodeToString(buf)
}
