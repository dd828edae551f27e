package ratelimit

import (
	"sync"
	"time"
)

// TokenBudget tracks model tokens spent per refill period.
type TokenBudget struct {
	sync.Mutex
	capacity     int           // max token per period
	remaining    int           // sisa token saat ini
	refillPeriod time.Duration // biasanya 1 menit
	lastRefill   time.Time
	now          func() time.Time
}

// NewTokenBudget returns a budget refilled every minute. A non-positive
// capacity disables the budget.
func NewTokenBudget(tokensPerMinute int) *TokenBudget {
	return &TokenBudget{
		capacity:     tokensPerMinute,
		remaining:    tokensPerMinute,
		refillPeriod: time.Minute,
		lastRefill:   time.Now(),
		now:          time.Now,
	}
}

// Reserve takes tokens from the budget without blocking.
func (b *TokenBudget) Reserve(tokens int) bool {
	if b.capacity <= 0 {
		return true
	}
	b.refill()

	b.Lock()
	defer b.Unlock()
	if b.remaining < tokens {
		return false
	}
	b.remaining -= tokens
	return true
}

// Release gives back tokens that were reserved but not used.
func (b *TokenBudget) Release(tokens int) {
	if b.capacity <= 0 || tokens <= 0 {
		return
	}
	b.Lock()
	defer b.Unlock()
	b.remaining += tokens
	if b.remaining > b.capacity {
		b.remaining = b.capacity
	}
}

func (b *TokenBudget) refill() {
	b.Lock()
	defer b.Unlock()

	now := b.now()
	if now.Sub(b.lastRefill) >= b.refillPeriod {
		b.remaining = b.capacity
		b.lastRefill = now
	}
}

func (b *TokenBudget) GetRemaining() int {
	b.Lock()
	defer b.Unlock()
	return b.remaining
}
