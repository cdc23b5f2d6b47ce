package workpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitAndProcessFIFO(t *testing.T) {
	var order []int
	done := make(chan struct{}, 10)

	p := New(Config{
		WorkerCount: 1,
		Capacity:    16,
		Process: func(workerID int, item Item) {
			order = append(order, item.Request.(int))
			done <- struct{}{}
		},
	})
	p.Start()
	defer p.Stop()

	for i := 0; i < 5; i++ {
		if res := p.Submit(Item{Request: i}, Normal); res != SubmitOK {
			t.Fatalf("Submit(%d) = %v", i, res)
		}
	}
	for i := 0; i < 5; i++ {
		<-done
	}

	for i, v := range order {
		if v != i {
			t.Errorf("order[%d] = %d, want %d (FIFO violated): %v", i, v, i, order)
		}
	}
}

func TestSubmitQueueFull(t *testing.T) {
	block := make(chan struct{})
	p := New(Config{
		WorkerCount: 1,
		Capacity:    1,
		Process: func(workerID int, item Item) {
			<-block
		},
	})
	p.Start()
	defer func() {
		close(block)
		p.Stop()
	}()

	// First item is picked up by the single worker and blocks; queue
	// capacity 1 means the next submit should still succeed (it occupies
	// the one queue slot) and the one after that should report full.
	if res := p.Submit(Item{Request: 1}, Normal); res != SubmitOK {
		t.Fatalf("submit 1 = %v", res)
	}
	time.Sleep(20 * time.Millisecond) // let the worker dequeue item 1

	if res := p.Submit(Item{Request: 2}, Normal); res != SubmitOK {
		t.Fatalf("submit 2 = %v", res)
	}
	if res := p.Submit(Item{Request: 3}, Normal); res != SubmitQueueFull {
		t.Fatalf("submit 3 = %v, want QueueFull", res)
	}
}

func TestSubmitAfterStopIsRejected(t *testing.T) {
	p := New(Config{
		WorkerCount: 1,
		Capacity:    4,
		Process:     func(workerID int, item Item) {},
	})
	p.Start()
	p.Stop()

	if res := p.Submit(Item{Request: 1}, Normal); res != SubmitStopped {
		t.Fatalf("submit after stop = %v, want Stopped", res)
	}
}

func TestStopDrainsQueuedItems(t *testing.T) {
	var processed int64
	release := make(chan struct{})

	p := New(Config{
		WorkerCount: 1,
		Capacity:    8,
		Process: func(workerID int, item Item) {
			<-release
			atomic.AddInt64(&processed, 1)
		},
	})
	p.Start()

	for i := 0; i < 3; i++ {
		p.Submit(Item{Request: i}, Normal)
	}
	time.Sleep(10 * time.Millisecond)

	stopDone := make(chan struct{})
	go func() {
		p.Stop()
		close(stopDone)
	}()

	close(release)
	<-stopDone

	if got := atomic.LoadInt64(&processed); got != 3 {
		t.Fatalf("processed = %d, want 3 (Stop must drain queued items)", got)
	}
}

func TestForceStopDiscardsQueueAndRunsCleanup(t *testing.T) {
	var cleaned int64
	release := make(chan struct{})

	p := New(Config{
		WorkerCount: 1,
		Capacity:    8,
		Process: func(workerID int, item Item) {
			<-release
		},
		Cleanup: func(item Item) {
			atomic.AddInt64(&cleaned, 1)
		},
	})
	p.Start()

	for i := 0; i < 4; i++ {
		p.Submit(Item{Request: i}, Normal)
	}
	time.Sleep(10 * time.Millisecond) // first item picked up and blocked in Process

	forceDone := make(chan struct{})
	go func() {
		p.ForceStop()
		close(forceDone)
	}()
	time.Sleep(10 * time.Millisecond) // let ForceStop take the queued items before the worker is released
	close(release)
	<-forceDone

	if got := atomic.LoadInt64(&cleaned); got != 3 {
		t.Fatalf("cleaned = %d, want 3 queued-but-unexecuted items", got)
	}
}

func TestPriorityOrderingHighBeforeLow(t *testing.T) {
	block := make(chan struct{})
	var order []string

	p := New(Config{
		WorkerCount:  1,
		Capacity:     16,
		PriorityMode: true,
		Process: func(workerID int, item Item) {
			order = append(order, item.Request.(string))
		},
	})
	p.Start()

	// Hold the single worker with a blocking item first so the rest queue up.
	p.Submit(Item{Request: "block", fn: func(int) (any, error) { <-block; return nil, nil }}, Normal)
	time.Sleep(10 * time.Millisecond)

	p.Submit(Item{Request: "low"}, Low)
	p.Submit(Item{Request: "high"}, High)
	p.Submit(Item{Request: "normal"}, Normal)
	time.Sleep(10 * time.Millisecond)

	close(block)
	p.Stop()

	if len(order) != 3 || order[0] != "high" || order[1] != "normal" || order[2] != "low" {
		t.Fatalf("order = %v, want [high normal low]", order)
	}
}

func TestCancelFlagSkipsExecutionAndRunsCleanup(t *testing.T) {
	var executed, cleaned int64
	p := New(Config{
		WorkerCount: 1,
		Capacity:    8,
		Process: func(workerID int, item Item) {
			atomic.AddInt64(&executed, 1)
		},
		Cleanup: func(item Item) {
			atomic.AddInt64(&cleaned, 1)
		},
	})

	var cancel atomic.Bool
	cancel.Store(true)
	p.Start()
	defer p.Stop()

	p.Submit(Item{Request: 1, CancelFlag: &cancel}, Normal)
	time.Sleep(20 * time.Millisecond)

	if atomic.LoadInt64(&executed) != 0 {
		t.Errorf("executed = %d, want 0 (canceled item must not run)", executed)
	}
	if atomic.LoadInt64(&cleaned) != 1 {
		t.Errorf("cleaned = %d, want 1", cleaned)
	}
}

func TestSubmitSyncReturnsResult(t *testing.T) {
	p := New(Config{
		WorkerCount: 2,
		Capacity:    8,
		Process:     func(workerID int, item Item) {},
	})
	p.Start()
	defer p.Stop()

	got, err := p.SubmitSync(context.Background(), Normal, time.Second, func(workerID int) (any, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("SubmitSync: %v", err)
	}
	if got.(int) != 42 {
		t.Fatalf("got %v, want 42", got)
	}
}

func TestSubmitSyncTimesOut(t *testing.T) {
	p := New(Config{
		WorkerCount: 1,
		Capacity:    8,
		Process:     func(workerID int, item Item) {},
	})
	p.Start()
	defer p.Stop()

	_, err := p.SubmitSync(context.Background(), Normal, 20*time.Millisecond, func(workerID int) (any, error) {
		time.Sleep(200 * time.Millisecond)
		return nil, nil
	})
	if err != errTimeout {
		t.Fatalf("err = %v, want errTimeout", err)
	}
}

func TestStatsReflectProcessedAndFailed(t *testing.T) {
	p := New(Config{
		WorkerCount: 1,
		Capacity:    8,
		Process: func(workerID int, item Item) {
			if item.Request.(int)%2 == 0 {
				panic("boom")
			}
		},
	})
	p.Start()

	p.Submit(Item{Request: 1}, Normal)
	p.Submit(Item{Request: 2}, Normal)
	p.Stop()

	stats := p.Stats()
	if stats.Processed != 2 {
		t.Errorf("Processed = %d, want 2", stats.Processed)
	}
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
}
