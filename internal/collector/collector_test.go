package collector

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bscott/ts-tunnel/internal/config"
)

func TestConfirmStartsEngineOnce(t *testing.T) {
	var calls int32
	got := make(chan config.StartupConfig, 4)
	c := New(EngineFunc(func(cfg config.StartupConfig) {
		atomic.AddInt32(&calls, 1)
		got <- cfg
	}))

	cfg, ok := c.Confirm(config.RawInput{Name: "Server1", Password: "secret", MaxClients: 5000, Register: true})
	if !ok {
		t.Fatalf("first confirmation should dispatch")
	}
	if cfg.MaxClients() != 999 {
		t.Fatalf("expected clamped capacity, got %d", cfg.MaxClients())
	}

	select {
	case started := <-got:
		if started != cfg {
			t.Fatalf("engine got %+v, want %+v", started, cfg)
		}
	case <-time.After(time.Second):
		t.Fatalf("engine was not started")
	}

	if _, ok := c.Confirm(config.RawInput{Name: "Other", MaxClients: 4}); ok {
		t.Fatalf("second confirmation should not dispatch")
	}

	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("engine started %d times, want 1", n)
	}
}

func TestConfirmDoesNotBlockOnEngine(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	c := New(EngineFunc(func(config.StartupConfig) {
		<-release
	}))

	done := make(chan struct{})
	go func() {
		c.Confirm(config.RawInput{MaxClients: 8, Register: true})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Confirm blocked on the engine")
	}
}

func TestConcurrentConfirmDispatchesOnce(t *testing.T) {
	var calls int32
	c := New(EngineFunc(func(config.StartupConfig) {
		atomic.AddInt32(&calls, 1)
	}))

	var (
		wg         sync.WaitGroup
		dispatched int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, ok := c.Confirm(config.RawInput{MaxClients: n}); ok {
				atomic.AddInt32(&dispatched, 1)
			}
		}(i)
	}
	wg.Wait()

	if dispatched != 1 {
		t.Fatalf("%d confirmations dispatched, want 1", dispatched)
	}

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&calls) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("engine calls = %d, want 1", atomic.LoadInt32(&calls))
		}
		time.Sleep(5 * time.Millisecond)
	}
}
