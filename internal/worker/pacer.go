package worker

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/JakeFAU/linkplayer/internal/config"
)

// Pacer turns configured delays into randomized, cancellable waits.
type Pacer struct {
	clock Clock
	mu    sync.Mutex
	rnd   *rand.Rand
}

// NewPacer returns a Pacer drawing from rnd. A nil rnd uses a time-seeded source.
func NewPacer(clock Clock, rnd *rand.Rand) *Pacer {
	if rnd == nil {
		seed := uint64(time.Now().UnixNano())
		rnd = rand.New(rand.NewPCG(seed, seed>>1|1))
	}
	return &Pacer{clock: clock, rnd: rnd}
}

// Duration returns Base plus a uniform draw from [0, Jitter).
func (p *Pacer) Duration(d config.Delay) time.Duration {
	if d.Jitter <= 0 {
		return d.Base
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return d.Base + time.Duration(p.rnd.Int64N(int64(d.Jitter)))
}

// Wait sleeps for a draw of d, returning early with ctx's error.
func (p *Pacer) Wait(ctx context.Context, d config.Delay) error {
	return p.clock.Sleep(ctx, p.Duration(d))
}

// Chance reports true with probability prob.
func (p *Pacer) Chance(prob float64) bool {
	if prob <= 0 {
		return false
	}
	if prob >= 1 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.Float64() < prob
}
