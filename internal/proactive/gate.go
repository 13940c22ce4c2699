package proactive

import (
	"math/rand/v2"
	"sync"

	"github.com/ashita-ai/xiaoban/internal/rules"
)

// Gate applies a rule's firing probability once its condition holds, so a
// true condition does not fire every time.
type Gate struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGate creates a gate drawing from src. A nil src gets a PCG seeded once
// per process from the runtime's random source.
func NewGate(src rand.Source) *Gate {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64()) //nolint:gosec // firing jitter doesn't need crypto-strength randomness
	}
	return &Gate{rng: rand.New(src)} //nolint:gosec // see above
}

// ShouldFire draws once from [0,1) and passes iff the draw is below the
// rule's probability. Probability 0 never passes; 1 always does.
func (g *Gate) ShouldFire(r rules.Rule) bool {
	g.mu.Lock()
	draw := g.rng.Float64()
	g.mu.Unlock()
	return draw < r.Probability
}
