package session

import (
	"context"
	"testing"
)

type memSerialStore struct {
	values map[uint64]map[ObjectClass]uint64
}

func newMemSerialStore() *memSerialStore {
	return &memSerialStore{values: make(map[uint64]map[ObjectClass]uint64)}
}

func (s *memSerialStore) Get(ctx context.Context, userID uint64, class ObjectClass) (uint64, error) {
	return s.values[userID][class], nil
}

func (s *memSerialStore) Set(ctx context.Context, userID uint64, class ObjectClass, value uint64) error {
	if s.values[userID] == nil {
		s.values[userID] = make(map[ObjectClass]uint64)
	}
	s.values[userID][class] = value
	return nil
}

func TestSerialIncrementMonotonic(t *testing.T) {
	store := newMemSerialStore()
	us := newUserState(1, "imap", nil)
	ctx := context.Background()

	v1, refresh, err := us.SerialIncrement(ctx, store, ClassMessages)
	if err != nil {
		t.Fatalf("SerialIncrement: %v", err)
	}
	if refresh {
		t.Fatal("unexpected refresh on first increment")
	}
	if v1 != 1 {
		t.Fatalf("first increment = %d, want 1", v1)
	}

	v2, refresh, err := us.SerialIncrement(ctx, store, ClassMessages)
	if err != nil {
		t.Fatalf("SerialIncrement: %v", err)
	}
	if refresh {
		t.Fatal("unexpected refresh on second increment")
	}
	if v2 != 2 {
		t.Fatalf("second increment = %d, want 2", v2)
	}
}

func TestSerialIncrementDetectsExternalChange(t *testing.T) {
	store := newMemSerialStore()
	us := newUserState(1, "imap", nil)
	ctx := context.Background()

	if _, _, err := us.SerialIncrement(ctx, store, ClassFolders); err != nil {
		t.Fatalf("SerialIncrement: %v", err)
	}

	// Simulate another process bumping the external store without this
	// UserState observing it.
	if err := store.Set(ctx, 1, ClassFolders, 5); err != nil {
		t.Fatalf("Set: %v", err)
	}

	_, refresh, err := us.SerialIncrement(ctx, store, ClassFolders)
	if err != nil {
		t.Fatalf("SerialIncrement: %v", err)
	}
	if !refresh {
		t.Fatal("expected needsRefresh when local serial lagged the external store")
	}
}

func TestSerialGetReconcilesLocalCache(t *testing.T) {
	store := newMemSerialStore()
	us := newUserState(1, "imap", nil)
	ctx := context.Background()

	if err := store.Set(ctx, 1, ClassContacts, 9); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := us.SerialGet(ctx, store, ClassContacts)
	if err != nil {
		t.Fatalf("SerialGet: %v", err)
	}
	if v != 9 {
		t.Fatalf("SerialGet = %d, want 9", v)
	}
	if us.localSerial(ClassContacts) != 9 {
		t.Fatal("SerialGet did not update local cache")
	}
}
