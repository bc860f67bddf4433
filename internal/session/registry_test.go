package session

import (
	"sync"
	"testing"
)

type stubHandle struct {
	mu       sync.Mutex
	disposes int
}

func (h *stubHandle) Dispose() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disposes++
}

func (h *stubHandle) disposed() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disposes
}

func TestReplaceDisposesPredecessor(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil)
	first := &stubHandle{}
	second := &stubHandle{}

	r.Replace("deck", first)
	r.Replace("deck", second)

	if first.disposed() != 1 {
		t.Fatalf("superseded session disposed %d times, want 1", first.disposed())
	}
	if second.disposed() != 0 {
		t.Fatal("new session must not be disposed on registration")
	}
	if r.Get("deck") != second {
		t.Fatal("replacement not registered")
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil)
	h := &stubHandle{}

	r.Replace("deck", h)
	r.Remove("deck")

	if h.disposed() != 1 {
		t.Fatalf("disposed %d times, want 1", h.disposed())
	}
	if r.Get("deck") != nil {
		t.Fatal("session still registered after Remove")
	}

	// Removing an absent key is a no-op.
	r.Remove("deck")
	if h.disposed() != 1 {
		t.Fatal("Remove of absent key must not re-dispose")
	}
}

func TestClose(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil)
	a := &stubHandle{}
	b := &stubHandle{}

	r.Replace("a", a)
	r.Replace("b", b)
	r.Close()

	if a.disposed() != 1 || b.disposed() != 1 {
		t.Fatalf("expected both sessions disposed once, got %d and %d", a.disposed(), b.disposed())
	}
	if len(r.Keys()) != 0 {
		t.Fatal("registry not empty after Close")
	}
}
