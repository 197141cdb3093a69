package batch

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestWorkerPoolBasicOperations(t *testing.T) {
	pool, err := NewWorkerPool(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer pool.Close()

	ok := pool.Submit(Job{ID: "one", Run: func() (any, error) { return 42, nil }})
	if !ok {
		t.Fatal("task submission failed")
	}

	res := <-pool.Results()
	if res.ID != "one" || res.Value != 42 || res.Err != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestWorkerPoolConcurrentSubmissions(t *testing.T) {
	pool, err := NewWorkerPool(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer pool.Close()

	numTasks := 100
	var wg sync.WaitGroup
	for i := 0; i < numTasks; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			pool.Submit(Job{ID: fmt.Sprintf("job-%d", id), Run: func() (any, error) { return id, nil }})
		}(i)
	}
	wg.Wait()

	seen := 0
	for i := 0; i < numTasks; i++ {
		<-pool.Results()
		seen++
	}
	if seen != numTasks {
		t.Errorf("expected %d results, got %d", numTasks, seen)
	}
}

func TestWorkerPoolSubmitAfterClose(t *testing.T) {
	pool, err := NewWorkerPool(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok := pool.Submit(Job{ID: "before", Run: func() (any, error) {
		time.Sleep(time.Millisecond)
		return nil, nil
	}})
	if !ok {
		t.Fatal("submission before close should succeed")
	}
	<-pool.Results()

	pool.Close()

	ok = pool.Submit(Job{ID: "after", Run: func() (any, error) {
		t.Error("this task should never execute")
		return nil, nil
	}})
	if ok {
		t.Error("submission after close should return false")
	}
}

func TestWorkerPoolMultipleClose(t *testing.T) {
	pool, err := NewWorkerPool(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 0; i < 10; i++ {
		pool.Submit(Job{ID: fmt.Sprintf("j%d", i), Run: func() (any, error) { return nil, nil }})
	}

	pool.Close()
	pool.Close()
	pool.Close()
}

func TestWorkerPoolRecoversPanics(t *testing.T) {
	pool, err := NewWorkerPool(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer pool.Close()

	pool.Submit(Job{ID: "boom", Run: func() (any, error) {
		panic("intentional panic")
	}})
	pool.Submit(Job{ID: "fine", Run: func() (any, error) { return "ok", nil }})

	results := map[string]JobResult{}
	for i := 0; i < 2; i++ {
		r := <-pool.Results()
		results[r.ID] = r
	}

	if results["boom"].Err == nil {
		t.Fatal("expected panic to surface as an error")
	}
	if results["fine"].Err != nil || results["fine"].Value != "ok" {
		t.Fatalf("unrelated job should be unaffected by the panic, got %+v", results["fine"])
	}
}

func TestRunAllCollectsEveryResult(t *testing.T) {
	jobs := make([]Job, 20)
	for i := range jobs {
		id := i
		jobs[i] = Job{ID: fmt.Sprintf("r%d", id), Run: func() (any, error) { return id * 2, nil }}
	}

	results, err := RunAll(5, jobs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != len(jobs) {
		t.Fatalf("expected %d results, got %d", len(jobs), len(results))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("unexpected job error: %v", r.Err)
		}
	}
}
