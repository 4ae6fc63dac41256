package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ObjectivityLtd/PSCI/internal/deploy"
)

// fakeRunner records deployments and blocks until released when blocking.
type fakeRunner struct {
	mu   sync.Mutex
	runs []string
}

func (f *fakeRunner) Deploy(_ context.Context, environment string, _ bool) (*deploy.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, environment)
	return &deploy.Result{
		DeploymentID: "dep-" + environment,
		Environment:  environment,
		Status:       "completed",
		FinishedAt:   time.Now(),
	}, nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.runs)
}

func TestQueueRunsJobs(t *testing.T) {
	runner := &fakeRunner{}
	queue := NewQueue(runner, 4)

	results := make(chan *deploy.Result, 4)
	queue.OnResult(func(_ Job, result *deploy.Result, err error) {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		results <- result
	})

	ctx, cancel := context.WithCancel(t.Context())
	go queue.Run(ctx)

	if _, err := queue.Enqueue("uat", TriggerManual, false); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case result := <-results:
		if result.Environment != "uat" {
			t.Errorf("ran wrong environment: %s", result.Environment)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}

	cancel()
	queue.Wait()
}

func TestQueueDropsDuplicatePending(t *testing.T) {
	runner := &fakeRunner{}
	queue := NewQueue(runner, 4)

	// Queue not running: both jobs stay pending.
	id1, err := queue.Enqueue("uat", TriggerSchedule, false)
	if err != nil || id1 == "" {
		t.Fatalf("first enqueue: %q, %v", id1, err)
	}
	id2, err := queue.Enqueue("uat", TriggerWatch, false)
	if err != nil {
		t.Fatalf("duplicate enqueue errored: %v", err)
	}
	if id2 != "" {
		t.Error("duplicate pending job should be dropped")
	}

	// A different environment still queues.
	id3, err := queue.Enqueue("production", TriggerSchedule, false)
	if err != nil || id3 == "" {
		t.Fatalf("other environment enqueue: %q, %v", id3, err)
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "finance.project.xml")
	if err := os.WriteFile(target, []byte("<Project/>"), 0o644); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	fired := 0
	watcher, err := NewWatcher([]string{target}, 50*time.Millisecond, func() {
		mu.Lock()
		fired++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	t.Cleanup(watcher.Stop)

	if err := watcher.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}

	for range 5 {
		if err := os.WriteFile(target, []byte("<Project name='x'/>"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		n := fired
		mu.Unlock()
		if n >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher never fired")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// A burst of writes must coalesce into few callbacks.
	mu.Lock()
	n := fired
	mu.Unlock()
	if n > 2 {
		t.Errorf("debounce failed: callback fired %d times", n)
	}
}

func TestStatusReportsQueueDepth(t *testing.T) {
	queue := NewQueue(&fakeRunner{}, 4)
	status := NewStatusServer(nil)
	status.QueueDepth(queue.Pending)
	srv := httptest.NewServer(status.Handler())
	t.Cleanup(srv.Close)

	// Queue not running: both jobs stay pending.
	if _, err := queue.Enqueue("uat", TriggerManual, false); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := queue.Enqueue("production", TriggerSchedule, false); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	var got Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	_ = resp.Body.Close()
	if got.QueuedNow != 2 {
		t.Errorf("queued_now = %d, want 2", got.QueuedNow)
	}
}

func TestStatusServerEndpoints(t *testing.T) {
	status := NewStatusServer(nil)
	srv := httptest.NewServer(status.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d", resp.StatusCode)
	}

	// No deployment yet.
	resp, err = http.Get(srv.URL + "/summary")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("summary before deployment = %d, want 404", resp.StatusCode)
	}

	status.RecordResult(&deploy.Result{
		DeploymentID: "dep-1",
		Environment:  "uat",
		Status:       "completed",
		FinishedAt:   time.Now(),
	})

	resp, err = http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	var got Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	_ = resp.Body.Close()
	if got.LastDeployment != "dep-1" || got.LastStatus != "completed" {
		t.Errorf("status = %+v", got)
	}

	resp, err = http.Get(srv.URL + "/summary")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("summary = %d", resp.StatusCode)
	}
}
