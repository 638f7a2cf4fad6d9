package studio

import (
	"testing"

	"overlay-studio/internal/geometry"
	"overlay-studio/internal/overlays"
)

func textDraft(content string) Draft {
	return Draft{
		Kind:     overlays.KindText,
		Content:  content,
		Position: geometry.Position{X: 10, Y: 10},
		Size:     geometry.Size{W: 150, H: 50},
	}
}

func seedOverlay(s *Store, id string) {
	s.resolveList([]overlays.Overlay{{
		ID:       id,
		StreamID: s.StreamID(),
		Kind:     overlays.KindText,
		Content:  "seeded",
		Position: geometry.Position{X: 10, Y: 10},
		Size:     geometry.Size{W: 150, H: 50},
	}}, nil)
}

func TestStore_Create_inserts_placeholder_immediately(t *testing.T) {
	s := NewStore("abc")

	o, ok := s.Create(textDraft("Hello"))
	if !ok {
		t.Fatal("Create refused")
	}
	if !IsPlaceholderID(o.ID) {
		t.Errorf("expected placeholder id, got %q", o.ID)
	}
	items := s.List()
	if len(items) != 1 || items[0].Content != "Hello" {
		t.Errorf("expected optimistic overlay visible, got %+v", items)
	}
}

func TestStore_resolveCreate_swaps_placeholder(t *testing.T) {
	s := NewStore("abc")
	o, _ := s.Create(textDraft("Hello"))

	server := overlays.Overlay{
		ID: "o1", StreamID: "abc", Kind: overlays.KindText, Content: "Hello",
		Position: geometry.Position{X: 10, Y: 10}, Size: geometry.Size{W: 150, H: 50},
	}
	fu := s.resolveCreate(o.ID, server, nil)
	if fu.deleteID != "" || fu.updateID != "" {
		t.Errorf("unexpected follow-up work: %+v", fu)
	}

	items := s.List()
	if len(items) != 1 {
		t.Fatalf("list length must be unchanged, got %d", len(items))
	}
	if items[0].ID != "o1" || items[0].Content != "Hello" {
		t.Errorf("placeholder not swapped: %+v", items[0])
	}
	if _, ok := s.Get(o.ID); ok {
		t.Error("placeholder id must be gone after the swap")
	}
}

func TestStore_resolveCreate_failure_removes_placeholder(t *testing.T) {
	s := NewStore("abc")
	o, _ := s.Create(textDraft("Hello"))

	s.resolveCreate(o.ID, overlays.Overlay{}, errBoom)

	if len(s.List()) != 0 {
		t.Errorf("failed create must revert the optimistic insert, got %+v", s.List())
	}
}

func TestStore_update_final_state_is_last_submission_order(t *testing.T) {
	s := NewStore("abc")
	seedOverlay(s, "o1")

	p1 := geometry.Position{X: 100, Y: 100}
	p2 := geometry.Position{X: 200, Y: 200}
	s.Update("o1", overlays.Patch{Position: &p1}) // seq 1
	s.Update("o1", overlays.Patch{Position: &p2}) // seq 2

	// Responses arrive out of order: the newer one first.
	resp2 := overlays.Overlay{ID: "o1", Kind: overlays.KindText, Content: "seeded", Position: p2, Size: geometry.Size{W: 150, H: 50}}
	resp1 := overlays.Overlay{ID: "o1", Kind: overlays.KindText, Content: "seeded", Position: p1, Size: geometry.Size{W: 150, H: 50}}
	s.resolveUpdate("o1", 2, resp2, nil)
	s.resolveUpdate("o1", 1, resp1, nil)

	got, _ := s.Get("o1")
	if got.Position != p2 {
		t.Errorf("final state must match last submitted patch, got %+v", got.Position)
	}
}

func TestStore_stale_update_failure_is_discarded(t *testing.T) {
	s := NewStore("abc")
	seedOverlay(s, "o1")

	p1 := geometry.Position{X: 100, Y: 100}
	p2 := geometry.Position{X: 200, Y: 200}
	s.Update("o1", overlays.Patch{Position: &p1}) // seq 1
	s.Update("o1", overlays.Patch{Position: &p2}) // seq 2

	// The superseded request fails; that must not disturb the newer state.
	s.resolveUpdate("o1", 1, overlays.Overlay{}, errBoom)

	got, _ := s.Get("o1")
	if got.Position != p2 {
		t.Errorf("stale failure must be ignored, got %+v", got.Position)
	}
}

func TestStore_update_failure_reverts_latest(t *testing.T) {
	s := NewStore("abc")
	seedOverlay(s, "o1")

	p1 := geometry.Position{X: 100, Y: 100}
	s.Update("o1", overlays.Patch{Position: &p1})

	s.resolveUpdate("o1", 1, overlays.Overlay{}, errBoom)

	got, _ := s.Get("o1")
	if got.Position != (geometry.Position{X: 10, Y: 10}) {
		t.Errorf("failed update must revert to previous state, got %+v", got.Position)
	}
}

func TestStore_remove_then_stale_update_response_does_not_resurrect(t *testing.T) {
	s := NewStore("abc")
	seedOverlay(s, "o1")

	p1 := geometry.Position{X: 100, Y: 100}
	s.Update("o1", overlays.Patch{Position: &p1}) // in flight
	s.Remove("o1")

	// The update's response lands after the delete was issued.
	s.resolveUpdate("o1", 1, overlays.Overlay{ID: "o1", Kind: overlays.KindText, Content: "seeded", Position: p1}, nil)
	if len(s.List()) != 0 {
		t.Errorf("delete must win over a stale update response, got %+v", s.List())
	}

	s.resolveDelete("o1", 2, nil)
	if len(s.List()) != 0 {
		t.Errorf("overlay resurrected after delete ack: %+v", s.List())
	}
}

func TestStore_remove_pending_create_marks_doomed(t *testing.T) {
	s := NewStore("abc")
	o, _ := s.Create(textDraft("Hello"))

	if !s.Remove(o.ID) {
		t.Fatal("Remove refused")
	}
	if len(s.List()) != 0 {
		t.Fatal("overlay should be gone locally")
	}

	// The create ack arrives after the user deleted the overlay; the store
	// must hand back a delete for the server-assigned id.
	fu := s.resolveCreate(o.ID, overlays.Overlay{ID: "o1", Kind: overlays.KindText, Content: "Hello"}, nil)
	if fu.deleteID != "o1" {
		t.Errorf("expected follow-up delete for o1, got %+v", fu)
	}
	if len(s.List()) != 0 {
		t.Errorf("doomed create must not reappear, got %+v", s.List())
	}
}

func TestStore_remove_pending_create_failed_create_needs_no_delete(t *testing.T) {
	s := NewStore("abc")
	o, _ := s.Create(textDraft("Hello"))
	s.Remove(o.ID)

	fu := s.resolveCreate(o.ID, overlays.Overlay{}, errBoom)
	if fu.deleteID != "" {
		t.Errorf("nothing was persisted, no delete needed: %+v", fu)
	}
}

func TestStore_update_while_create_pending_flushes_after_ack(t *testing.T) {
	s := NewStore("abc")
	o, _ := s.Create(textDraft("Hello"))

	p := geometry.Position{X: 300, Y: 30}
	s.Update(o.ID, overlays.Patch{Position: &p})

	fu := s.resolveCreate(o.ID, overlays.Overlay{ID: "o1", StreamID: "abc", Kind: overlays.KindText, Content: "Hello"}, nil)
	if fu.updateID != "o1" {
		t.Fatalf("expected queued patch flushed for o1, got %+v", fu)
	}
	if fu.updatePatch.Position == nil || *fu.updatePatch.Position != p {
		t.Errorf("queued patch lost the position: %+v", fu.updatePatch)
	}

	got, _ := s.Get("o1")
	if got.Position != p {
		t.Errorf("local optimistic patch must survive the id swap, got %+v", got.Position)
	}
}

func TestStore_resolveDelete_failure_restores_overlay(t *testing.T) {
	s := NewStore("abc")
	seedOverlay(s, "o1")
	s.Remove("o1")

	s.resolveDelete("o1", 1, errBoom)

	items := s.List()
	if len(items) != 1 || items[0].ID != "o1" {
		t.Errorf("failed delete must restore the overlay, got %+v", items)
	}
}

func TestStore_resolveList_merges_under_local_changes(t *testing.T) {
	s := NewStore("abc")
	local, _ := s.Create(textDraft("local"))

	fetched := []overlays.Overlay{
		{ID: "o1", StreamID: "abc", Kind: overlays.KindText, Content: "first"},
		{ID: "o2", StreamID: "abc", Kind: overlays.KindText, Content: "second"},
	}
	s.resolveList(fetched, nil)

	items := s.List()
	if len(items) != 3 {
		t.Fatalf("expected 3 overlays, got %d", len(items))
	}
	if items[0].ID != "o1" || items[1].ID != "o2" || items[2].ID != local.ID {
		t.Errorf("fetched overlays must render beneath local ones: %+v", items)
	}

	// A second fetch result must be a no-op.
	s.resolveList([]overlays.Overlay{{ID: "o9", Kind: overlays.KindText, Content: "late"}}, nil)
	if len(s.List()) != 3 {
		t.Errorf("repeated list resolution must be ignored, got %d", len(s.List()))
	}
}

func TestStore_Close_makes_everything_noop(t *testing.T) {
	s := NewStore("abc")
	seedOverlay(s, "o1")
	s.Close()

	if _, ok := s.Create(textDraft("x")); ok {
		t.Error("Create on closed store must refuse")
	}
	p := geometry.Position{X: 1, Y: 1}
	if s.Update("o1", overlays.Patch{Position: &p}) {
		t.Error("Update on closed store must refuse")
	}
	if s.Remove("o1") {
		t.Error("Remove on closed store must refuse")
	}
	s.resolveUpdate("o1", 1, overlays.Overlay{ID: "o1", Position: p}, nil)
	got, _ := s.Get("o1")
	if got.Position == p {
		t.Error("resolution on closed store must not apply")
	}
}
