// workers/pos_sync_worker.go
package workers

import (
	"context"
	"log"
	"sync"

	"frequent-buyer-system/services"
)

type syncKind string

const (
	syncActivate   syncKind = "activate"
	syncDeactivate syncKind = "deactivate"
)

type syncTask struct {
	Kind     syncKind
	RewardID string
}

// POSSyncPool runs POS activations/deactivations on a fixed number of worker
// goroutines, outside the ledger transaction. Failures are logged and left to
// the reconciliation sweep — they never propagate back to the ledger.
type POSSyncPool struct {
	sync    *services.POSSyncService
	tasks   chan syncTask
	workers int
	wg      sync.WaitGroup
}

// NewPOSSyncPool creates the pool. workers bounds concurrency against the
// external platform; buffer absorbs bursts of earns.
func NewPOSSyncPool(syncService *services.POSSyncService, workers, buffer int) *POSSyncPool {
	if workers < 1 {
		workers = 4
	}
	if buffer < workers {
		buffer = workers * 16
	}
	return &POSSyncPool{
		sync:    syncService,
		tasks:   make(chan syncTask, buffer),
		workers: workers,
	}
}

// Start launches the workers. They drain until ctx is cancelled.
func (p *POSSyncPool) Start(ctx context.Context) {
	log.Printf("🔁 Starting POS sync pool (%d workers)…", p.workers)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
}

// Wait blocks until all workers have exited.
func (p *POSSyncPool) Wait() {
	p.wg.Wait()
}

func (p *POSSyncPool) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-p.tasks:
			p.execute(ctx, task)
		}
	}
}

func (p *POSSyncPool) execute(ctx context.Context, task syncTask) {
	var err error
	switch task.Kind {
	case syncActivate:
		err = p.sync.Activate(ctx, task.RewardID)
	case syncDeactivate:
		err = p.sync.Deactivate(ctx, task.RewardID)
	}
	if err != nil {
		// reward state stays authoritative; the reconciliation sweep retries
		log.Printf("❌ POS %s failed for reward %s: %v", task.Kind, task.RewardID, err)
	}
}

// EnqueueActivate implements services.POSDispatcher. Non-blocking: when the
// queue is full the task is dropped and the reconciliation sweep picks the
// reward up later.
func (p *POSSyncPool) EnqueueActivate(rewardID string) {
	p.enqueue(syncTask{Kind: syncActivate, RewardID: rewardID})
}

// EnqueueDeactivate implements services.POSDispatcher.
func (p *POSSyncPool) EnqueueDeactivate(rewardID string) {
	p.enqueue(syncTask{Kind: syncDeactivate, RewardID: rewardID})
}

func (p *POSSyncPool) enqueue(task syncTask) {
	select {
	case p.tasks <- task:
	default:
		log.Printf("⚠️ POS sync queue full, dropping %s for reward %s (reconciliation will retry)", task.Kind, task.RewardID)
	}
}
