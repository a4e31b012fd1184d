package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Pool runs background wait tasks on a bounded number of goroutines. Tasks
// are detached from the spawning request: they run on the pool's context and
// only process shutdown cancels them.
type Pool struct {
	ctx    context.Context
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	logger zerolog.Logger
}

func NewPool(ctx context.Context, size int, logger zerolog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		ctx:    ctx,
		sem:    semaphore.NewWeighted(int64(size)),
		logger: logger.With().Str("component", "worker_pool").Logger(),
	}
}

// Spawn schedules fn on the pool. It blocks only while the pool is at
// capacity; fn itself runs asynchronously.
func (p *Pool) Spawn(name string, fn func(ctx context.Context)) {
	if err := p.sem.Acquire(p.ctx, 1); err != nil {
		p.logger.Warn().Str("task", name).Err(err).Msg("pool is shut down, task dropped")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().Str("task", name).Any("panic", r).Msg("background task panicked")
			}
		}()
		fn(p.ctx)
	}()
}

// Wait blocks until every spawned task has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}
