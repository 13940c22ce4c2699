package proactive

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGateBounds(t *testing.T) {
	g := NewGate(rand.NewPCG(1, 2))

	never := alwaysRule("never", 0, 0)
	always := alwaysRule("always", 1, 0)
	for range 1000 {
		assert.False(t, g.ShouldFire(never))
		assert.True(t, g.ShouldFire(always))
	}
}

func TestGateRoughlyMatchesProbability(t *testing.T) {
	g := NewGate(rand.NewPCG(42, 7))
	r := alwaysRule("half", 0.5, 0)

	passed := 0
	for range 10000 {
		if g.ShouldFire(r) {
			passed++
		}
	}
	assert.InDelta(t, 5000, passed, 300)
}

func TestGateDefaultSource(t *testing.T) {
	g := NewGate(nil)
	assert.True(t, g.ShouldFire(alwaysRule("always", 1, 0)))
}
