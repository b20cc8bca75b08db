package ops

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate bounds how many probes run at once. Release must be called exactly once
// for every successful Acquire.
type Gate interface {
	Acquire(ctx context.Context) error
	Release()
}

// GateFactory builds a gate admitting at most n holders
type GateFactory func(n int) Gate

type weightedGate struct {
	sem *semaphore.Weighted
}

// NewGate returns a semaphore-backed gate with n slots
func NewGate(n int) Gate {
	if n < 1 {
		n = 1
	}
	return &weightedGate{sem: semaphore.NewWeighted(int64(n))}
}

func (g *weightedGate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

func (g *weightedGate) Release() {
	g.sem.Release(1)
}
