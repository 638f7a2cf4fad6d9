package overlays

import (
	"context"
	"testing"

	"overlay-studio/internal/geometry"
)

func TestInMemoryStore_PutGetDelete(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "o1")
	if err != nil || ok {
		t.Fatalf("expected not found on empty store, ok=%v err=%v", ok, err)
	}

	o := Overlay{ID: "o1", StreamID: "s1", Kind: KindText, Content: "Hello"}
	if err := store.Put(ctx, o); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := store.Get(ctx, "o1")
	if err != nil || !ok || got.Content != "Hello" {
		t.Errorf("Get: ok=%v err=%v got=%+v", ok, err, got)
	}

	deleted, err := store.Delete(ctx, "o1")
	if err != nil || !deleted {
		t.Errorf("Delete: deleted=%v err=%v", deleted, err)
	}
	deleted, err = store.Delete(ctx, "o1")
	if err != nil || deleted {
		t.Errorf("second Delete should be a no-op, deleted=%v err=%v", deleted, err)
	}
}

func TestInMemoryStore_ListByStream_insertion_order(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_ = store.Put(ctx, Overlay{ID: id, StreamID: "s1", Kind: KindText, Content: id})
	}
	_ = store.Put(ctx, Overlay{ID: "x", StreamID: "s2", Kind: KindText, Content: "x"})

	items, err := store.ListByStream(ctx, "s1")
	if err != nil {
		t.Fatalf("ListByStream: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 overlays, got %d", len(items))
	}
	for i, id := range []string{"a", "b", "c"} {
		if items[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, items[i].ID)
		}
	}
}

func TestInMemoryStore_Put_update_keeps_order(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	_ = store.Put(ctx, Overlay{ID: "a", StreamID: "s1", Kind: KindText, Content: "a"})
	_ = store.Put(ctx, Overlay{ID: "b", StreamID: "s1", Kind: KindText, Content: "b"})
	_ = store.Put(ctx, Overlay{ID: "a", StreamID: "s1", Kind: KindText, Content: "a2", Position: geometry.Position{X: 5}})

	items, _ := store.ListByStream(ctx, "s1")
	if len(items) != 2 || items[0].ID != "a" || items[0].Content != "a2" {
		t.Errorf("update must replace in place, got %+v", items)
	}
}

func TestInMemoryStore_DeleteStream(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	_ = store.Put(ctx, Overlay{ID: "a", StreamID: "s1", Kind: KindText, Content: "a"})
	_ = store.Put(ctx, Overlay{ID: "x", StreamID: "s2", Kind: KindText, Content: "x"})

	if err := store.DeleteStream(ctx, "s1"); err != nil {
		t.Fatalf("DeleteStream: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "a"); ok {
		t.Error("overlay of purged stream should be gone")
	}
	if _, ok, _ := store.Get(ctx, "x"); !ok {
		t.Error("other stream's overlay should survive")
	}
}
