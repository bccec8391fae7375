package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Guard keeps two sessions from buying the same product for the same email
// at the same time. Acquire reports false when another owner holds key.
type Guard interface {
	Acquire(ctx context.Context, key, owner string) (bool, error)
	Release(ctx context.Context, key, owner string) error
}

func GuardKey(email, productID string) string {
	return fmt.Sprintf("%s:%s", strings.ToLower(email), productID)
}

// MemoryGuard is a process-local Guard.
type MemoryGuard struct {
	mu     sync.Mutex
	owners map[string]string
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{owners: map[string]string{}}
}

func (g *MemoryGuard) Acquire(_ context.Context, key, owner string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.owners[key]; ok && cur != owner {
		return false, nil
	}
	g.owners[key] = owner
	return true, nil
}

func (g *MemoryGuard) Release(_ context.Context, key, owner string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.owners[key] == owner {
		delete(g.owners, key)
	}
	return nil
}
