package blob

import (
	"context"
	"errors"
	"testing"
)

func TestMemory_roundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) = %v, want ErrNotFound", err)
	}

	if err := m.Put(ctx, "k", []byte("hello"), "text/plain"); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	data, err := m.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("Get() = %q, want %q", data, "hello")
	}

	// returned slice is a copy
	data[0] = 'x'
	again, _ := m.Get(ctx, "k")
	if string(again) != "hello" {
		t.Errorf("stored object mutated through returned slice")
	}

	if err := m.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(deleted) = %v, want ErrNotFound", err)
	}
}
