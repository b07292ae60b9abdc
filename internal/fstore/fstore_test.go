package fstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AlbertoV5/workstream/internal/errors"
)

func testLocker() *Locker {
	return &Locker{
		StaleAfter:    2 * time.Second,
		RetryInterval: 5 * time.Millisecond,
		MaxRetries:    200,
	}
}

func TestAtomicWriteCreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "tasks.json")

	if err := AtomicWrite(path, []byte(`{"ok":true}`), 0644); err != nil {
		t.Fatalf("AtomicWrite: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("unexpected content: %s", data)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 file, found %d", len(entries))
	}
}

func TestAtomicWriteReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")

	if err := AtomicWrite(path, []byte("first"), 0644); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := AtomicWrite(path, []byte("second"), 0644); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "second" {
		t.Errorf("expected replacement, got %s", data)
	}
}

func TestReadWriteJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")

	type doc struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	if err := WriteJSON(path, doc{Name: "demo", Count: 3}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var got doc
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Name != "demo" || got.Count != 3 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestReadJSONMissingFile(t *testing.T) {
	err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &struct{}{})
	if !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestWithLockReleasesOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	locker := testLocker()

	wantErr := errors.New("mutation failed")
	err := locker.WithLock(path, func() error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected fn error to propagate, got %v", err)
	}

	if _, statErr := os.Stat(path + ".lock"); !os.IsNotExist(statErr) {
		t.Error("lock file should be removed after fn error")
	}
}

func TestWithLockMutualExclusion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	locker := testLocker()

	type window struct {
		enter, exit time.Time
	}
	var mu sync.Mutex
	var windows []window

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(path, func() error {
				w := window{enter: time.Now()}
				time.Sleep(20 * time.Millisecond)
				w.exit = time.Now()
				mu.Lock()
				windows = append(windows, w)
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Errorf("WithLock: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(windows) != 4 {
		t.Fatalf("expected 4 critical sections, got %d", len(windows))
	}
	for i := range windows {
		for j := range windows {
			if i == j {
				continue
			}
			a, b := windows[i], windows[j]
			if a.enter.Before(b.exit) && b.enter.Before(a.exit) {
				t.Fatalf("critical sections overlap: [%v-%v] and [%v-%v]",
					a.enter, a.exit, b.enter, b.exit)
			}
		}
	}
}

func TestWithLockSurfacesContention(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	locker := &Locker{
		StaleAfter:    time.Minute,
		RetryInterval: time.Millisecond,
		MaxRetries:    3,
	}

	// Simulate an active holder on this host: our own live PID, fresh file.
	holder, _ := json.Marshal(HolderInfo{
		PID:        os.Getpid(),
		Hostname:   currentHostname(),
		AcquiredAt: time.Now(),
	})
	if err := os.WriteFile(path+".lock", holder, 0644); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	err := locker.WithLock(path, func() error {
		t.Error("callback must not run while lock is held elsewhere")
		return nil
	})
	if !errors.Is(err, errors.ErrLocked) {
		t.Errorf("expected ErrLocked after retries exhausted, got %v", err)
	}
}

func TestWithLockReclaimsStaleLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	locker := testLocker()

	// Dead-process lock: PID that cannot exist.
	holder, _ := json.Marshal(HolderInfo{
		PID:        1 << 30,
		Hostname:   currentHostname(),
		AcquiredAt: time.Now().Add(-time.Hour),
	})
	if err := os.WriteFile(path+".lock", holder, 0644); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	ran := false
	err := locker.WithLock(path, func() error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock should reclaim stale lock: %v", err)
	}
	if !ran {
		t.Error("callback did not run")
	}
}

func TestWithLockReclaimsAgedLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.json")
	locker := &Locker{
		StaleAfter:    10 * time.Millisecond,
		RetryInterval: 5 * time.Millisecond,
		MaxRetries:    20,
	}

	// Live PID but the lock file predates the staleness threshold.
	holder, _ := json.Marshal(HolderInfo{
		PID:        os.Getpid(),
		Hostname:   currentHostname(),
		AcquiredAt: time.Now().Add(-time.Minute),
	})
	lockPath := path + ".lock"
	if err := os.WriteFile(lockPath, holder, 0644); err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	old := time.Now().Add(-time.Minute)
	if err := os.Chtimes(lockPath, old, old); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	if err := locker.WithLock(path, func() error { return nil }); err != nil {
		t.Fatalf("WithLock should reclaim aged lock: %v", err)
	}
}
