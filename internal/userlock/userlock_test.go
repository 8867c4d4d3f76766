package userlock

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAcquireSerializesSameUser(t *testing.T) {
	r := New(time.Minute)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	counter := 0
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			release, err := r.Acquire(ctx, "u1")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			defer release()
			// non-atomic increment; only safe if the lock serializes us
			v := counter
			time.Sleep(time.Millisecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	if counter != workers {
		t.Fatalf("counter = %d, want %d", counter, workers)
	}
}

func TestDifferentUsersDoNotContend(t *testing.T) {
	r := New(time.Minute)
	ctx := context.Background()

	releaseA, err := r.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB, err := r.Acquire(ctx, "b")
		if err != nil {
			t.Errorf("acquire b: %v", err)
			return
		}
		releaseB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("user b blocked behind user a's lock")
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	r := New(time.Minute)
	release, err := r.Acquire(context.Background(), "u1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.Acquire(ctx, "u1"); err == nil {
		t.Fatalf("expected context error while lock held")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	r := New(time.Minute)
	release, err := r.Acquire(context.Background(), "u1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()
	release() // second call must not release someone else's turn

	release2, err := r.Acquire(context.Background(), "u1")
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	release2()
}

func TestEvictIdleDropsOnlyIdleEntries(t *testing.T) {
	r := New(10 * time.Millisecond)
	ctx := context.Background()

	release, err := r.Acquire(ctx, "busy")
	if err != nil {
		t.Fatalf("acquire busy: %v", err)
	}
	idleRelease, err := r.Acquire(ctx, "idle")
	if err != nil {
		t.Fatalf("acquire idle: %v", err)
	}
	idleRelease()

	evicted := r.EvictIdle(time.Now().Add(time.Second))
	if evicted != 1 {
		t.Fatalf("evicted %d entries, want 1", evicted)
	}
	if r.Len() != 1 {
		t.Fatalf("registry holds %d entries, want 1", r.Len())
	}
	release()
}
