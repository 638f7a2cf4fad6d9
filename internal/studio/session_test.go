package studio

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeConverter struct {
	mu    sync.Mutex
	fn    func(ctx context.Context, rtspURL string) (ConvertResult, error)
	calls []string
}

func (c *fakeConverter) Convert(ctx context.Context, rtspURL string) (ConvertResult, error) {
	c.mu.Lock()
	c.calls = append(c.calls, rtspURL)
	fn := c.fn
	c.mu.Unlock()
	return fn(ctx, rtspURL)
}

func convertTo(streamID, manifestURL string) func(context.Context, string) (ConvertResult, error) {
	return func(context.Context, string) (ConvertResult, error) {
		return ConvertResult{StreamID: streamID, ManifestURL: manifestURL}, nil
	}
}

type fakeDecoder struct {
	mu        sync.Mutex
	attachErr error
	manifest  string
	sink      DecoderSink
	destroyed int
}

func (d *fakeDecoder) Attach(manifestURL string, sink DecoderSink) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.manifest = manifestURL
	d.sink = sink
	return d.attachErr
}

func (d *fakeDecoder) Destroy() {
	d.mu.Lock()
	d.destroyed++
	d.mu.Unlock()
}

func (d *fakeDecoder) ready() {
	d.mu.Lock()
	sink := d.sink
	d.mu.Unlock()
	sink.Ready()
}

func (d *fakeDecoder) fail(err error) {
	d.mu.Lock()
	sink := d.sink
	d.mu.Unlock()
	sink.PlaybackError(err)
}

func (d *fakeDecoder) destroyCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

// decoderFactory hands out one fresh fakeDecoder per attachment and keeps
// them for inspection.
type decoderFactory struct {
	mu       sync.Mutex
	made     []*fakeDecoder
	nextErr  error
}

func (f *decoderFactory) new() Decoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := &fakeDecoder{attachErr: f.nextErr}
	f.made = append(f.made, d)
	return d
}

func (f *decoderFactory) last() *fakeDecoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.made[len(f.made)-1]
}

func TestSession_submit_to_active(t *testing.T) {
	api := newFakeAPI()
	conv := &fakeConverter{fn: convertTo("abc", "http://localhost:8080/streams/abc/index.m3u8")}
	decs := &decoderFactory{}
	s := NewSession(conv, api, decs.new, testLogger())

	if err := s.Submit(context.Background(), "rtsp://cam.local/stream1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if s.Phase() != PhaseReady {
		t.Fatalf("expected ready, got %s", s.Phase())
	}
	if s.StreamID() != "abc" {
		t.Errorf("expected stream id abc, got %q", s.StreamID())
	}
	if s.Interactive() {
		t.Error("interaction must stay disabled until the decoder is ready")
	}
	dec := decs.last()
	if dec.manifest != "http://localhost:8080/streams/abc/index.m3u8" {
		t.Errorf("decoder attached to wrong manifest: %q", dec.manifest)
	}
	if got := api.lists(); len(got) != 0 {
		t.Errorf("overlay fetch must wait for playback readiness, got %v", got)
	}

	dec.ready()
	if s.Phase() != PhaseActive {
		t.Fatalf("expected active, got %s", s.Phase())
	}
	if !s.Interactive() {
		t.Error("active session must be interactive")
	}
	s.Gateway().Wait()
	if got := api.lists(); len(got) != 1 || got[0] != "abc" {
		t.Errorf("expected exactly one list call for abc, got %v", got)
	}

	// A duplicate readiness signal must not refetch or regress the phase.
	dec.ready()
	s.Gateway().Wait()
	if got := api.lists(); len(got) != 1 {
		t.Errorf("duplicate ready signal caused a refetch: %v", got)
	}
}

func TestSession_submit_empty_source(t *testing.T) {
	s := NewSession(&fakeConverter{}, newFakeAPI(), (&decoderFactory{}).new, testLogger())

	if err := s.Submit(context.Background(), "   "); !errors.Is(err, ErrEmptySource) {
		t.Errorf("expected ErrEmptySource, got %v", err)
	}
	if s.Phase() != PhaseIdle {
		t.Errorf("expected idle, got %s", s.Phase())
	}
}

func TestSession_conversion_failure(t *testing.T) {
	conv := &fakeConverter{fn: func(context.Context, string) (ConvertResult, error) {
		return ConvertResult{}, errBoom
	}}
	rec := &errRecorder{}
	s := NewSession(conv, newFakeAPI(), (&decoderFactory{}).new, testLogger(), WithSessionErrorHook(rec.hook))

	err := s.Submit(context.Background(), "rtsp://cam.local/bad")
	if !errors.Is(err, ErrConversionFailed) {
		t.Fatalf("expected ErrConversionFailed, got %v", err)
	}
	if s.Phase() != PhaseFailed {
		t.Errorf("expected failed, got %s", s.Phase())
	}
	if !errors.Is(s.Err(), ErrConversionFailed) {
		t.Errorf("session error not retained: %v", s.Err())
	}
	if rec.count() != 1 {
		t.Errorf("expected 1 reported error, got %d", rec.count())
	}

	// A failed session accepts a new source.
	conv.mu.Lock()
	conv.fn = convertTo("abc", "http://localhost:8080/streams/abc/index.m3u8")
	conv.mu.Unlock()
	if err := s.Submit(context.Background(), "rtsp://cam.local/stream1"); err != nil {
		t.Fatalf("resubmit after failure: %v", err)
	}
	if s.Phase() != PhaseReady {
		t.Errorf("expected ready after resubmit, got %s", s.Phase())
	}
	if s.Err() != nil {
		t.Errorf("stale error survived resubmit: %v", s.Err())
	}
}

func TestSession_resubmit_supersedes_previous(t *testing.T) {
	api := newFakeAPI()
	conv := &fakeConverter{fn: convertTo("abc", "http://localhost:8080/streams/abc/index.m3u8")}
	decs := &decoderFactory{}
	s := NewSession(conv, api, decs.new, testLogger())

	if err := s.Submit(context.Background(), "rtsp://cam.local/stream1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	dec1 := decs.last()
	store1 := s.Store()

	conv.mu.Lock()
	conv.fn = convertTo("def", "http://localhost:8080/streams/def/index.m3u8")
	conv.mu.Unlock()
	if err := s.Submit(context.Background(), "rtsp://cam.local/stream2"); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	if dec1.destroyCount() != 1 {
		t.Errorf("previous decoder must be destroyed exactly once, got %d", dec1.destroyCount())
	}
	if _, ok := store1.Create(textDraft("late")); ok {
		t.Error("previous store must be closed after resubmit")
	}
	if s.StreamID() != "def" {
		t.Errorf("expected stream id def, got %q", s.StreamID())
	}

	// A late readiness signal from the replaced decoder must be ignored.
	dec1.ready()
	if s.Phase() != PhaseReady {
		t.Errorf("stale decoder signal changed the phase: %s", s.Phase())
	}
}

func TestSession_inflight_conversion_superseded(t *testing.T) {
	started := make(chan struct{})
	proceed := make(chan struct{})
	conv := &fakeConverter{}
	conv.fn = func(ctx context.Context, rtspURL string) (ConvertResult, error) {
		if rtspURL == "rtsp://cam.local/slow" {
			close(started)
			<-proceed
			return ConvertResult{StreamID: "slow", ManifestURL: "http://localhost:8080/streams/slow/index.m3u8"}, nil
		}
		return ConvertResult{StreamID: "fast", ManifestURL: "http://localhost:8080/streams/fast/index.m3u8"}, nil
	}
	decs := &decoderFactory{}
	s := NewSession(conv, newFakeAPI(), decs.new, testLogger())

	done := make(chan error, 1)
	go func() { done <- s.Submit(context.Background(), "rtsp://cam.local/slow") }()
	<-started

	if err := s.Submit(context.Background(), "rtsp://cam.local/fast"); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	close(proceed)
	if err := <-done; err != nil {
		t.Fatalf("superseded submit must not error: %v", err)
	}

	if s.StreamID() != "fast" {
		t.Errorf("superseded conversion result was applied: stream %q", s.StreamID())
	}
	if s.Phase() != PhaseReady {
		t.Errorf("expected ready, got %s", s.Phase())
	}
	decs.mu.Lock()
	made := len(decs.made)
	decs.mu.Unlock()
	if made != 1 {
		t.Errorf("superseded conversion must not attach a decoder, got %d", made)
	}
}

func TestSession_playback_failure(t *testing.T) {
	api := newFakeAPI()
	conv := &fakeConverter{fn: convertTo("abc", "http://localhost:8080/streams/abc/index.m3u8")}
	decs := &decoderFactory{}
	rec := &errRecorder{}
	s := NewSession(conv, api, decs.new, testLogger(), WithSessionErrorHook(rec.hook))

	if err := s.Submit(context.Background(), "rtsp://cam.local/stream1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	dec := decs.last()
	store := s.Store()

	dec.fail(errBoom)
	if s.Phase() != PhasePlaybackFailed {
		t.Fatalf("expected playback_failed, got %s", s.Phase())
	}
	if !errors.Is(s.Err(), ErrPlaybackFailed) {
		t.Errorf("expected ErrPlaybackFailed, got %v", s.Err())
	}
	if dec.destroyCount() != 1 {
		t.Errorf("decoder must be destroyed exactly once, got %d", dec.destroyCount())
	}
	if _, ok := store.Create(textDraft("late")); ok {
		t.Error("store must be closed after playback failure")
	}
	if rec.count() != 1 {
		t.Errorf("expected 1 reported error, got %d", rec.count())
	}
	if got := api.lists(); len(got) != 0 {
		t.Errorf("overlay fetch must never fire for a stream that did not play, got %v", got)
	}
}

func TestSession_attach_error_is_playback_failure(t *testing.T) {
	conv := &fakeConverter{fn: convertTo("abc", "http://localhost:8080/streams/abc/index.m3u8")}
	decs := &decoderFactory{nextErr: errBoom}
	s := NewSession(conv, newFakeAPI(), decs.new, testLogger())

	err := s.Submit(context.Background(), "rtsp://cam.local/stream1")
	if !errors.Is(err, ErrPlaybackFailed) {
		t.Fatalf("expected ErrPlaybackFailed, got %v", err)
	}
	if s.Phase() != PhasePlaybackFailed {
		t.Errorf("expected playback_failed, got %s", s.Phase())
	}
	if decs.last().destroyCount() != 1 {
		t.Errorf("decoder must be destroyed exactly once, got %d", decs.last().destroyCount())
	}
}

func TestSession_teardown(t *testing.T) {
	conv := &fakeConverter{fn: convertTo("abc", "http://localhost:8080/streams/abc/index.m3u8")}
	decs := &decoderFactory{}
	s := NewSession(conv, newFakeAPI(), decs.new, testLogger())

	if err := s.Submit(context.Background(), "rtsp://cam.local/stream1"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	dec := decs.last()
	store := s.Store()

	s.Teardown()
	s.Teardown()

	if s.Phase() != PhaseIdle {
		t.Errorf("expected idle, got %s", s.Phase())
	}
	if s.StreamID() != "" || s.ManifestURL() != "" {
		t.Error("teardown must clear stream identity")
	}
	if dec.destroyCount() != 1 {
		t.Errorf("decoder must be destroyed exactly once, got %d", dec.destroyCount())
	}
	if _, ok := store.Create(textDraft("late")); ok {
		t.Error("store must be closed after teardown")
	}
}
