package ingress

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/autopeer-io/plantd/pkg/log"
)

type job func(ctx context.Context)

// keyedPool runs jobs on a fixed set of workers. Jobs with the same key always
// land on the same worker, so they run one at a time in submission order.
type keyedPool struct {
	queues []chan job
	logger log.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func newKeyedPool(workers, queueSize int, logger log.Logger) *keyedPool {
	queues := make([]chan job, workers)
	for i := range queues {
		queues[i] = make(chan job, queueSize)
	}
	return &keyedPool{queues: queues, logger: logger}
}

// Start launches the workers. They run until Stop.
func (p *keyedPool) Start(ctx context.Context) {
	for i, q := range p.queues {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for fn := range q {
				p.run(ctx, i, fn)
			}
		}()
	}
}

func (p *keyedPool) run(ctx context.Context, worker int, fn job) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(fmt.Errorf("panic: %v", r), "Ingress job panicked", "worker", worker)
		}
	}()
	fn(ctx)
}

// Submit queues fn without blocking. It returns false when the worker queue
// for key is full or the pool is stopped.
func (p *keyedPool) Submit(key string, fn job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false
	}
	select {
	case p.queues[p.shard(key)] <- fn:
		return true
	default:
		return false
	}
}

// Stop closes the queues and waits for queued jobs to finish.
func (p *keyedPool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		for _, q := range p.queues {
			close(q)
		}
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *keyedPool) shard(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.queues)))
}
