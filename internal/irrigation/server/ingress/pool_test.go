package ingress

import (
	"context"
	"sync"
	"testing"

	"github.com/autopeer-io/plantd/pkg/log"
)

func TestKeyedPoolKeepsPerKeyOrder(t *testing.T) {
	p := newKeyedPool(4, 64, log.NewNopLogger())
	p.Start(context.Background())

	var (
		mu  sync.Mutex
		got = map[string][]int{}
	)
	for i := 0; i < 50; i++ {
		for _, key := range []string{"dev-1", "dev-2", "dev-3"} {
			if !p.Submit(key, func(context.Context) {
				mu.Lock()
				got[key] = append(got[key], i)
				mu.Unlock()
			}) {
				t.Fatalf("submit %s/%d rejected", key, i)
			}
		}
	}
	p.Stop()

	for key, seq := range got {
		if len(seq) != 50 {
			t.Fatalf("%s ran %d jobs, want 50", key, len(seq))
		}
		for i, v := range seq {
			if v != i {
				t.Fatalf("%s job %d ran out of order: %v", key, i, seq)
			}
		}
	}
}

func TestKeyedPoolDropsWhenFull(t *testing.T) {
	p := newKeyedPool(1, 1, log.NewNopLogger())
	release := make(chan struct{})
	started := make(chan struct{})
	p.Start(context.Background())

	p.Submit("dev-1", func(context.Context) {
		close(started)
		<-release
	})
	<-started

	if !p.Submit("dev-1", func(context.Context) {}) {
		t.Fatal("queue slot should be free")
	}
	if p.Submit("dev-1", func(context.Context) {}) {
		t.Fatal("submit should fail while the queue is full")
	}

	close(release)
	p.Stop()

	if p.Submit("dev-1", func(context.Context) {}) {
		t.Fatal("submit should fail after stop")
	}
}

func TestKeyedPoolRecoversPanics(t *testing.T) {
	p := newKeyedPool(1, 4, log.NewNopLogger())
	p.Start(context.Background())

	ran := make(chan struct{})
	p.Submit("dev-1", func(context.Context) { panic("bad payload") })
	p.Submit("dev-1", func(context.Context) { close(ran) })
	p.Stop()

	select {
	case <-ran:
	default:
		t.Fatal("worker died after a panic")
	}
}
