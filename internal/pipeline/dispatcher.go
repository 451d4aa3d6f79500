// Copyright (C) 2026 the-crypt-keeper
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/the-crypt-keeper/scribe/internal/config"
	"github.com/the-crypt-keeper/scribe/internal/logger"
	"github.com/the-crypt-keeper/scribe/internal/store"
)

// pool is one step's bounded worker pool: a semaphore capping concurrent
// in-flight Run calls, and the set of ids currently in flight (Q, in the
// set-difference I \ (O ∪ Q)).
type pool struct {
	sem      *semaphore.Weighted
	mu       sync.Mutex
	inFlight map[string]bool
	wg       sync.WaitGroup
}

func newPool(depth int) *pool {
	if depth < 1 {
		depth = 1
	}
	return &pool{
		sem:      semaphore.NewWeighted(int64(depth)),
		inFlight: make(map[string]bool),
	}
}

func (p *pool) snapshot() map[string]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]bool, len(p.inFlight))
	for k := range p.inFlight {
		out[k] = true
	}
	return out
}

func (p *pool) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

func (p *pool) add(id string) {
	p.mu.Lock()
	p.inFlight[id] = true
	p.mu.Unlock()
}

func (p *pool) remove(id string) {
	p.mu.Lock()
	delete(p.inFlight, id)
	p.mu.Unlock()
}

// Dispatcher drives every registered Step to quiescence: each pass it
// pulls at most one pending input per step (subject to that step's
// QDepth) and submits it to the step's worker pool. It sleeps
// SmallDelay between passes that did work, and BigDelay while waiting on
// futures it expects to complete. It returns once no step has pending
// work and no future is in flight anywhere.
//
// The control goroutine (the one calling RunToQuiescence) never runs
// step.Run itself; all step work and outbound HTTP happen on worker
// goroutines blocked inside a pool.
type Dispatcher struct {
	store store.Store
	steps []Step
	pools map[string]*pool
	cfg   config.DispatcherConfig
}

// NewDispatcher builds a Dispatcher over the given steps, each getting
// its own worker pool sized by its Parallel().
func NewDispatcher(st store.Store, steps []Step, cfg config.DispatcherConfig) *Dispatcher {
	pools := make(map[string]*pool, len(steps))
	for _, s := range steps {
		pools[s.Name()] = newPool(s.Parallel())
	}
	return &Dispatcher{store: st, steps: steps, pools: pools, cfg: cfg}
}

// RunToQuiescence drives the dispatcher's main loop. ctx cancellation
// stops new submissions; in-flight futures are always awaited before
// returning, so a cancelled run never leaves a partially-committed row.
func (d *Dispatcher) RunToQuiescence(ctx context.Context) error {
	log := logger.GetDispatcherLogger()

	for {
		if ctx.Err() != nil {
			log.Info().Msg("context cancelled, draining in-flight work")
			break
		}

		didWork := false
		for _, step := range d.steps {
			p := d.pools[step.Name()]

			if p.count() >= step.QDepth() {
				continue
			}

			inFlight := p.snapshot()
			pending, err := step.PendingInputs(ctx, d.store, inFlight)
			if err != nil {
				log.Error().Err(err).Str("step", step.Name()).Msg("pending_inputs failed")
				continue
			}
			if len(pending) == 0 {
				continue
			}

			item := pending[0]
			claimed, err := d.store.Claim(ctx, step.OutKey(), item.ID)
			if err != nil {
				log.Error().Err(err).Str("step", step.Name()).Str("id", item.ID).Msg("claim failed")
				continue
			}
			if !claimed {
				// Lost the race to another engine sharing this store; try
				// a different id next pass.
				continue
			}

			if err := p.sem.Acquire(ctx, 1); err != nil {
				// ctx cancelled while waiting for a slot; release the claim.
				if abortErr := d.store.Abort(ctx, step.OutKey(), item.ID); abortErr != nil {
					log.Error().Err(abortErr).Str("step", step.Name()).Str("id", item.ID).Msg("abort after cancel failed")
				}
				continue
			}

			didWork = true
			p.add(item.ID)
			p.wg.Add(1)
			go d.runOne(ctx, step, p, item)
		}

		if didWork {
			sleepOrDone(ctx, d.cfg.SmallDelay)
			continue
		}

		if d.anyInFlight() {
			sleepOrDone(ctx, d.cfg.BigDelay)
			continue
		}

		break
	}

	d.waitAll()
	log.Info().Msg("dispatcher reached quiescence")
	return nil
}

func (d *Dispatcher) runOne(ctx context.Context, step Step, p *pool, item WorkItem) {
	defer p.wg.Done()
	defer p.sem.Release(1)
	defer p.remove(item.ID)

	log := logger.ForStep(step.Name(), item.ID)

	payload, meta, err := step.Run(ctx, item.ID, item.Input)
	if err != nil {
		log.Error().Err(err).Msg("step run failed, aborting claim")
		if abortErr := d.store.Abort(context.WithoutCancel(ctx), step.OutKey(), item.ID); abortErr != nil {
			log.Error().Err(abortErr).Msg("abort after run failure failed")
		}
		return
	}

	if err := d.store.Commit(context.WithoutCancel(ctx), step.OutKey(), item.ID, payload, meta); err != nil {
		log.Error().Err(err).Msg("commit failed, aborting claim")
		if abortErr := d.store.Abort(context.WithoutCancel(ctx), step.OutKey(), item.ID); abortErr != nil {
			log.Error().Err(abortErr).Msg("abort after commit failure failed")
		}
	}
}

func (d *Dispatcher) anyInFlight() bool {
	for _, p := range d.pools {
		if p.count() > 0 {
			return true
		}
	}
	return false
}

func (d *Dispatcher) waitAll() {
	for _, p := range d.pools {
		p.wg.Wait()
	}
}

// sleepOrDone sleeps for d, waking early if ctx is cancelled.
func sleepOrDone(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
