package registry

import (
	"fmt"
	"sync"
	"testing"
)

func TestBindAndResolve(t *testing.T) {
	r := New()

	if _, ok := r.Resolve("c1"); ok {
		t.Error("Resolve on empty registry should report not found")
	}

	r.Bind("c1", "T1")
	id, ok := r.Resolve("c1")
	if !ok {
		t.Fatal("Resolve after Bind should find the alias")
	}
	if id != "T1" {
		t.Errorf("Resolve returned %q, want %q", id, "T1")
	}
}

func TestBindOverwrites(t *testing.T) {
	r := New()
	r.Bind("c1", "T1")
	r.Bind("c1", "T2")

	id, ok := r.Resolve("c1")
	if !ok {
		t.Fatal("alias should still be bound after overwrite")
	}
	if id != "T2" {
		t.Errorf("Resolve returned %q, want the later binding %q", id, "T2")
	}
	if r.Len() != 1 {
		t.Errorf("Len returned %d, want 1", r.Len())
	}
}

func TestConcurrentBinds(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.Bind("shared", fmt.Sprintf("T%d", n))
			r.Bind(fmt.Sprintf("alias-%d", n), "T0")
		}(i)
	}
	wg.Wait()

	// Final value must be one of the written values.
	id, ok := r.Resolve("shared")
	if !ok {
		t.Fatal("shared alias should be bound")
	}
	if len(id) < 2 || id[0] != 'T' {
		t.Errorf("unexpected final value %q", id)
	}
	if r.Len() != 51 {
		t.Errorf("Len returned %d, want 51", r.Len())
	}
}
