package render

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/samsaffron/markview/internal/markdown"
)

func result(raw ...string) markdown.Result {
	res := markdown.Result{HTML: "<p>x</p>"}
	for i, r := range raw {
		res.Blocks = append(res.Blocks, markdown.CodeBlock{ID: fmt.Sprintf("code-block-%d", i), Raw: r})
	}
	return res
}

func TestStore_PutAndGet(t *testing.T) {
	s := NewStore(3)
	if err := s.Put("m1", 1, result("a")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := s.Get("m1")
	if !ok {
		t.Fatal("Get(m1) not found")
	}
	if got.Generation != 1 || got.MessageID != "m1" {
		t.Errorf("entry = %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
	if _, ok := s.Get("missing"); ok {
		t.Error("Get(missing) found")
	}
}

func TestStore_Generations(t *testing.T) {
	s := NewStore(3)
	if err := s.Put("m", 5, result("five")); err != nil {
		t.Fatalf("Put gen 5: %v", err)
	}

	err := s.Put("m", 4, result("four"))
	if !errors.Is(err, ErrStaleGeneration) {
		t.Fatalf("Put gen 4 error = %v, want ErrStaleGeneration", err)
	}
	if b, _ := s.Block("m", "code-block-0"); b.Raw != "five" {
		t.Fatalf("stale put replaced entry: raw = %q", b.Raw)
	}

	if err := s.Put("m", 5, result("five again")); err != nil {
		t.Fatalf("Put equal generation: %v", err)
	}
	if b, _ := s.Block("m", "code-block-0"); b.Raw != "five again" {
		t.Fatalf("equal generation did not replace: raw = %q", b.Raw)
	}

	if err := s.Put("m", 6, result()); err != nil {
		t.Fatalf("Put gen 6: %v", err)
	}
	if _, ok := s.Block("m", "code-block-0"); ok {
		t.Fatal("block from an older pass still visible")
	}
}

func TestStore_Block(t *testing.T) {
	s := NewStore(3)
	_ = s.Put("m", 1, result("first\n", "second\n"))

	tests := []struct {
		message, block string
		want           string
		ok             bool
	}{
		{"m", "code-block-0", "first\n", true},
		{"m", "code-block-1", "second\n", true},
		{"m", "code-block-2", "", false},
		{"other", "code-block-0", "", false},
	}
	for _, tt := range tests {
		b, ok := s.Block(tt.message, tt.block)
		if ok != tt.ok || b.Raw != tt.want {
			t.Errorf("Block(%q, %q) = %q, %v; want %q, %v", tt.message, tt.block, b.Raw, ok, tt.want, tt.ok)
		}
	}
}

func TestStore_LRUEviction(t *testing.T) {
	s := NewStore(3)
	_ = s.Put("a", 1, result())
	_ = s.Put("b", 1, result())
	_ = s.Put("c", 1, result())

	s.Get("a")
	_ = s.Put("d", 1, result())

	for _, id := range []string{"a", "c", "d"} {
		if _, ok := s.Get(id); !ok {
			t.Errorf("%q should not have been evicted", id)
		}
	}
	if _, ok := s.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d, want 3", s.Len())
	}
}

func TestStore_RemoveAndClear(t *testing.T) {
	s := NewStore(0)
	_ = s.Put("a", 1, result())
	_ = s.Put("b", 1, result())

	s.Remove("a")
	s.Remove("nope")
	if s.Len() != 1 {
		t.Fatalf("Len after Remove = %d, want 1", s.Len())
	}
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("Len after Clear = %d, want 0", s.Len())
	}
}

func TestStore_Concurrent(t *testing.T) {
	s := NewStore(16)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("m%d", i%4)
			for gen := uint64(0); gen < 50; gen++ {
				_ = s.Put(id, gen, result("x"))
				s.Block(id, "code-block-0")
			}
		}(i)
	}
	wg.Wait()
	if s.Len() != 4 {
		t.Fatalf("Len = %d, want 4", s.Len())
	}
}
