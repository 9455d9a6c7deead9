package decoder

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/zsiec/scrub/decode/testsrc"
)

func testOpen(path string) (Config, error) {
	if path == "missing.mp4" {
		return Config{}, fmt.Errorf("no such file: %s", path)
	}
	s := testsrc.New(testsrc.Config{})
	return Config{
		Source:    s,
		Decoder:   s.NewDecoder(),
		Converter: s.NewConverter(),
	}, nil
}

func TestManagerAcquireAndGet(t *testing.T) {
	t.Parallel()
	m := NewManager(testOpen, nil)
	defer m.Shutdown()

	d, err := m.Acquire("clip-a.mp4")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if d == nil {
		t.Fatal("Acquire returned nil decoder")
	}

	got, ok := m.Get("clip-a.mp4")
	if !ok || got != d {
		t.Error("Get should return the acquired decoder")
	}
	if _, ok := m.Get("clip-b.mp4"); ok {
		t.Error("Get for an unopened path should return not-ok")
	}
}

func TestManagerAcquireReturnsExisting(t *testing.T) {
	t.Parallel()
	m := NewManager(testOpen, nil)
	defer m.Shutdown()

	d1, err := m.Acquire("clip.mp4")
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	d2, err := m.Acquire("clip.mp4")
	if err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if d1 != d2 {
		t.Error("second Acquire should return the same decoder")
	}
	if len(m.List()) != 1 {
		t.Errorf("open decoders: got %d, want 1", len(m.List()))
	}
}

func TestManagerAcquireOpenError(t *testing.T) {
	t.Parallel()
	m := NewManager(testOpen, nil)
	defer m.Shutdown()

	if _, err := m.Acquire("missing.mp4"); err == nil {
		t.Fatal("Acquire for a failing path should error")
	}
	if len(m.List()) != 0 {
		t.Error("failed Acquire should not register a decoder")
	}
}

func TestManagerRemove(t *testing.T) {
	t.Parallel()
	m := NewManager(testOpen, nil)
	defer m.Shutdown()

	d, err := m.Acquire("clip.mp4")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	m.Remove("clip.mp4")
	if len(m.List()) != 0 {
		t.Errorf("count after remove: got %d, want 0", len(m.List()))
	}
	if _, err := d.GetFrame(context.Background(), 0); !errors.Is(err, ErrClosed) {
		t.Errorf("removed decoder: got %v, want ErrClosed", err)
	}
}

func TestManagerRemoveNonexistent(t *testing.T) {
	t.Parallel()
	m := NewManager(testOpen, nil)
	// Should not panic
	m.Remove("nonexistent")
}

func TestManagerShutdown(t *testing.T) {
	t.Parallel()
	m := NewManager(testOpen, nil)

	da, _ := m.Acquire("a.mp4")
	db, _ := m.Acquire("b.mp4")

	m.Shutdown()
	if len(m.List()) != 0 {
		t.Errorf("count after shutdown: got %d, want 0", len(m.List()))
	}
	for _, d := range []*Decoder{da, db} {
		if _, err := d.GetFrame(context.Background(), 0); !errors.Is(err, ErrClosed) {
			t.Errorf("decoder after shutdown: got %v, want ErrClosed", err)
		}
	}
}
