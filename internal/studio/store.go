package studio

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"overlay-studio/internal/geometry"
	"overlay-studio/internal/overlays"
)

const placeholderPrefix = "pending-"

// IsPlaceholderID reports whether id is a client-temporary id that has not
// yet been replaced by a server-assigned one.
func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, placeholderPrefix)
}

// syncer receives the persistence work for each optimistic mutation.
// *Gateway implements it.
type syncer interface {
	syncCreate(placeholderID string, draft Draft)
	syncUpdate(id string, seq uint64, patch overlays.Patch)
	syncDelete(id string, seq uint64)
}

type entry struct {
	overlay overlays.Overlay

	// seq is the submission-order sequence of the newest mutation issued
	// for this overlay. A persistence response is applied only while its
	// sequence is still the newest, so the final local state equals the
	// last patch in submission order regardless of response arrival order.
	seq uint64

	// snapshot of the state before the newest mutation, for revert.
	lastSnapshot overlays.Overlay

	pendingCreate bool
	// patch accumulated while the create is still in flight; flushed as a
	// single update once the server id is known.
	pendingPatch *overlays.Patch
}

type removal struct {
	overlay overlays.Overlay
	index   int
	seq     uint64
}

// followUp is persistence work a resolution produced: deleting a doomed
// overlay the server just acknowledged, or flushing a patch queued behind
// its create. The gateway executes it on the same request goroutine.
type followUp struct {
	deleteID    string
	deleteSeq   uint64
	updateID    string
	updateSeq   uint64
	updatePatch overlays.Patch
}

// Store is the in-memory overlay collection for one stream session.
// Mutations apply optimistically and are handed to the bound gateway for
// persistence; resolutions reconcile server responses back in. A Store is
// discarded with its session: Close makes every late resolution a no-op so a
// response for a superseded stream can never resurrect stale overlays.
type Store struct {
	mu       sync.Mutex
	streamID string
	sync     syncer

	items map[string]*entry
	// order holds ids in insertion order; z-order follows it.
	order []string

	// doomed tracks placeholder ids removed before their create resolved.
	doomed map[string]bool
	// pendingRemovals holds snapshots of optimistically removed overlays
	// until the server acknowledges the delete.
	pendingRemovals map[string]removal

	loaded bool
	closed bool
}

// NewStore returns an empty Store scoped to streamID.
func NewStore(streamID string) *Store {
	return &Store{
		streamID:        streamID,
		items:           make(map[string]*entry),
		doomed:          make(map[string]bool),
		pendingRemovals: make(map[string]removal),
	}
}

func (s *Store) bind(g syncer) {
	s.mu.Lock()
	s.sync = g
	s.mu.Unlock()
}

// StreamID returns the owning stream id.
func (s *Store) StreamID() string {
	return s.streamID
}

// Close discards the store. All subsequent mutations and resolutions are
// no-ops.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// List returns the current overlays in insertion order.
func (s *Store) List() []overlays.Overlay {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]overlays.Overlay, 0, len(s.order))
	for _, id := range s.order {
		if e, ok := s.items[id]; ok {
			out = append(out, e.overlay)
		}
	}
	return out
}

// Get returns the overlay with the given id.
func (s *Store) Get(id string) (overlays.Overlay, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[id]
	if !ok {
		return overlays.Overlay{}, false
	}
	return e.overlay, true
}

// Create optimistically inserts an overlay under a placeholder id and
// requests its persistence. The placeholder is swapped for the
// server-assigned id when the create resolves.
func (s *Store) Create(d Draft) (overlays.Overlay, bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return overlays.Overlay{}, false
	}

	o := overlays.Overlay{
		ID:       placeholderPrefix + uuid.NewString(),
		StreamID: s.streamID,
		Kind:     d.Kind,
		Content:  d.Content,
		Position: d.Position,
		Size:     geometry.FloorSize(d.Size),
	}
	s.items[o.ID] = &entry{overlay: o, seq: 1, lastSnapshot: o, pendingCreate: true}
	s.order = append(s.order, o.ID)
	sy := s.sync
	s.mu.Unlock()

	if sy != nil {
		sy.syncCreate(o.ID, d)
	}
	return o, true
}

// Update applies the patch to local state immediately and requests its
// persistence. Patches replace individual fields, never the whole object.
func (s *Store) Update(id string, patch overlays.Patch) bool {
	if patch.IsZero() {
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	e, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return false
	}

	e.lastSnapshot = e.overlay
	e.seq++
	patch.Apply(&e.overlay)

	if e.pendingCreate {
		// No server id yet; queue the patch behind the create.
		if e.pendingPatch == nil {
			e.pendingPatch = &overlays.Patch{}
		}
		mergePatch(e.pendingPatch, patch)
		s.mu.Unlock()
		return true
	}

	seq := e.seq
	sy := s.sync
	s.mu.Unlock()

	if sy != nil {
		sy.syncUpdate(id, seq, patch)
	}
	return true
}

// Remove deletes the overlay from local state immediately and requests the
// persistence delete. Removing an overlay whose create is still in flight
// marks it doomed; the delete is issued as soon as the server id arrives, so
// no dangling persisted overlay survives the race.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	e, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return false
	}

	idx := indexOf(s.order, id)
	delete(s.items, id)
	s.order = removeAt(s.order, idx)

	if e.pendingCreate {
		s.doomed[id] = true
		s.mu.Unlock()
		return true
	}

	e.seq++
	s.pendingRemovals[id] = removal{overlay: e.overlay, index: idx, seq: e.seq}
	seq := e.seq
	sy := s.sync
	s.mu.Unlock()

	if sy != nil {
		sy.syncDelete(id, seq)
	}
	return true
}

// resolveList reconciles the one initial fetch. Fetched overlays keep server
// order and render beneath anything created locally in the meantime.
func (s *Store) resolveList(fetched []overlays.Overlay, reqErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || reqErr != nil || s.loaded {
		return
	}
	s.loaded = true

	prepend := make([]string, 0, len(fetched))
	for _, o := range fetched {
		if _, exists := s.items[o.ID]; exists {
			continue
		}
		if _, removed := s.pendingRemovals[o.ID]; removed {
			continue
		}
		s.items[o.ID] = &entry{overlay: o, lastSnapshot: o}
		prepend = append(prepend, o.ID)
	}
	s.order = append(prepend, s.order...)
}

// resolveCreate reconciles a create response against the placeholder.
func (s *Store) resolveCreate(placeholderID string, ov overlays.Overlay, reqErr error) (fu followUp) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if s.doomed[placeholderID] {
		delete(s.doomed, placeholderID)
		if reqErr == nil {
			// The create landed after the user deleted the overlay;
			// chase it with a delete so nothing dangles server-side.
			fu.deleteID = ov.ID
		}
		return
	}

	e, ok := s.items[placeholderID]
	if !ok {
		return
	}

	if reqErr != nil {
		// Revert the optimistic insert.
		delete(s.items, placeholderID)
		s.order = removeAt(s.order, indexOf(s.order, placeholderID))
		return
	}

	delete(s.items, placeholderID)
	if e.seq == 1 {
		// Untouched since creation: adopt server truth wholesale.
		e.overlay = ov
	} else {
		// Later optimistic patches win; only the identity comes from
		// the server.
		e.overlay.ID = ov.ID
		if ov.StreamID != "" {
			e.overlay.StreamID = ov.StreamID
		}
	}
	e.pendingCreate = false
	s.items[ov.ID] = e
	replaceID(s.order, placeholderID, ov.ID)

	if e.pendingPatch != nil {
		fu.updateID = ov.ID
		fu.updateSeq = e.seq
		fu.updatePatch = *e.pendingPatch
		e.pendingPatch = nil
	}
	return
}

// resolveUpdate reconciles an update response. Responses for superseded
// mutations are discarded whole, success or failure.
func (s *Store) resolveUpdate(id string, seq uint64, ov overlays.Overlay, reqErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	e, ok := s.items[id]
	if !ok {
		// Deleted while the update was in flight; the delete wins.
		return
	}
	if seq != e.seq {
		return
	}

	if reqErr != nil {
		e.overlay = e.lastSnapshot
		return
	}

	if ov.StreamID == "" {
		ov.StreamID = e.overlay.StreamID
	}
	e.overlay = ov
}

// resolveDelete reconciles a delete response. A failed delete restores the
// overlay at its previous z-position.
func (s *Store) resolveDelete(id string, seq uint64, reqErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	rem, ok := s.pendingRemovals[id]
	if !ok || rem.seq != seq {
		return
	}
	delete(s.pendingRemovals, id)

	if reqErr == nil {
		return
	}

	s.items[id] = &entry{overlay: rem.overlay, seq: rem.seq, lastSnapshot: rem.overlay}
	idx := rem.index
	if idx > len(s.order) {
		idx = len(s.order)
	}
	s.order = append(s.order[:idx], append([]string{id}, s.order[idx:]...)...)
}

func mergePatch(dst *overlays.Patch, src overlays.Patch) {
	if src.Content != nil {
		dst.Content = src.Content
	}
	if src.Position != nil {
		dst.Position = src.Position
	}
	if src.Size != nil {
		dst.Size = src.Size
	}
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func removeAt(ids []string, i int) []string {
	if i < 0 || i >= len(ids) {
		return ids
	}
	return append(ids[:i], ids[i+1:]...)
}

func replaceID(ids []string, old, new string) {
	for i, v := range ids {
		if v == old {
			ids[i] = new
			return
		}
	}
}
