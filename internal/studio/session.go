package studio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Phase is the stream session lifecycle state.
type Phase int

const (
	// PhaseIdle: no source submitted, or after teardown.
	PhaseIdle Phase = iota
	// PhaseConverting: conversion request in flight; no stream id yet, so
	// overlay affordances stay disabled.
	PhaseConverting
	// PhaseReady: conversion succeeded and the decoder attach was
	// requested, but the video surface is not yet confirmed playable.
	PhaseReady
	// PhaseActive: the decoder signaled readiness; overlay interaction is
	// enabled and the initial overlay fetch has been issued.
	PhaseActive
	// PhaseFailed: the conversion request errored; input re-enabled.
	PhaseFailed
	// PhasePlaybackFailed: conversion succeeded but the decoder could not
	// play the manifest.
	PhasePlaybackFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConverting:
		return "converting"
	case PhaseReady:
		return "ready"
	case PhaseActive:
		return "active"
	case PhaseFailed:
		return "failed"
	case PhasePlaybackFailed:
		return "playback_failed"
	default:
		return "unknown"
	}
}

// DecoderSink receives the decoder's lifecycle signals.
type DecoderSink interface {
	// Ready fires once, after the manifest is parsed and metadata loaded.
	Ready()
	// PlaybackError fires when the decoder cannot play the manifest.
	PlaybackError(err error)
}

// Decoder is the playback collaborator: it fetches and buffers segments for
// a manifest and reports readiness through the sink. Destroy must be called
// exactly once per successful Attach; the Session guarantees that.
type Decoder interface {
	Attach(manifestURL string, sink DecoderSink) error
	Destroy()
}

// Session owns one submitted source through conversion, decoder attachment,
// overlay activation, and teardown. Submitting a new source supersedes the
// previous session state: the decoder is released, the overlay store is
// closed, and results of any still-in-flight work for the old generation
// are ignored rather than applied.
type Session struct {
	converter  Converter
	api        API
	newDecoder func() Decoder
	log        *slog.Logger
	onError    func(error)

	mu          sync.Mutex
	gen         uint64
	phase       Phase
	sourceURL   string
	manifestURL string
	streamID    string
	decoder     Decoder
	store       *Store
	gateway     *Gateway
	lastErr     error
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionErrorHook installs a callback for user-visible session and
// persistence errors.
func WithSessionErrorHook(fn func(error)) SessionOption {
	return func(s *Session) { s.onError = fn }
}

// NewSession returns an idle Session. newDecoder constructs a fresh decoder
// per attachment.
func NewSession(conv Converter, api API, newDecoder func() Decoder, log *slog.Logger, opts ...SessionOption) *Session {
	s := &Session{
		converter:  conv,
		api:        api,
		newDecoder: newDecoder,
		log:        log,
		phase:      PhaseIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// StreamID returns the active stream id, empty before PhaseReady.
func (s *Session) StreamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamID
}

// ManifestURL returns the absolute manifest URL, empty before PhaseReady.
func (s *Session) ManifestURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manifestURL
}

// SourceURL returns the submitted source, write-once per session.
func (s *Session) SourceURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourceURL
}

// Err returns the error that put the session in a failed phase.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Store returns the overlay store for the active session, nil before
// PhaseReady.
func (s *Session) Store() *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}

// Gateway returns the sync gateway for the active session, nil before
// PhaseReady.
func (s *Session) Gateway() *Gateway {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gateway
}

// Interactive reports whether overlay interaction should be pointer-enabled.
func (s *Session) Interactive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == PhaseActive
}

// Submit starts a new session for the given RTSP URL, superseding any
// current one. It blocks until the conversion settles; the Ready to Active
// transition follows asynchronously from the decoder's readiness signal.
func (s *Session) Submit(ctx context.Context, rtspURL string) error {
	rtspURL = strings.TrimSpace(rtspURL)
	if rtspURL == "" {
		return ErrEmptySource
	}

	s.mu.Lock()
	s.teardownLocked()
	s.gen++
	gen := s.gen
	s.phase = PhaseConverting
	s.sourceURL = rtspURL
	s.mu.Unlock()

	res, err := s.converter.Convert(ctx, rtspURL)

	s.mu.Lock()
	if gen != s.gen {
		// Superseded while the request was in flight; drop the result.
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.phase = PhaseFailed
		s.lastErr = fmt.Errorf("%w: %v", ErrConversionFailed, err)
		failed := s.lastErr
		s.mu.Unlock()
		s.log.Error("conversion failed",
			slog.String("source", rtspURL),
			slog.String("error", err.Error()))
		s.reportError(failed)
		return failed
	}

	s.phase = PhaseReady
	s.streamID = res.StreamID
	s.manifestURL = res.ManifestURL
	s.store = NewStore(res.StreamID)
	s.gateway = NewGateway(s.api, s.store, s.log, WithErrorHook(s.reportError))
	s.decoder = s.newDecoder()
	dec := s.decoder
	manifest := s.manifestURL
	s.mu.Unlock()

	s.log.Info("stream ready",
		slog.String("stream_id", res.StreamID),
		slog.String("manifest_url", res.ManifestURL))

	// Attach outside the lock: a decoder may signal readiness synchronously.
	if err := dec.Attach(manifest, sessionSink{s: s, gen: gen}); err != nil {
		s.playbackFailed(gen, err)
		return s.Err()
	}
	return nil
}

// Teardown releases the session's resources and returns it to PhaseIdle:
// the decoder is destroyed, the overlay store is closed, and in-flight
// request results for this session will be ignored.
func (s *Session) Teardown() {
	s.mu.Lock()
	s.gen++
	s.teardownLocked()
	s.mu.Unlock()
}

// sessionSink binds decoder signals to the session generation that issued
// the attach, so a late signal from a replaced decoder is ignored.
type sessionSink struct {
	s   *Session
	gen uint64
}

func (k sessionSink) Ready() {
	k.s.decoderReady(k.gen)
}

func (k sessionSink) PlaybackError(err error) {
	k.s.playbackFailed(k.gen, err)
}

func (s *Session) decoderReady(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.phase != PhaseReady {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseActive
	gw := s.gateway
	streamID := s.streamID
	s.mu.Unlock()

	s.log.Info("stream active", slog.String("stream_id", streamID))
	// The initial overlay fetch happens here, on Ready to Active, so it is
	// never issued for a stream whose player did not come up.
	gw.LoadInitial()
}

func (s *Session) playbackFailed(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.phase = PhasePlaybackFailed
	s.lastErr = fmt.Errorf("%w: %v", ErrPlaybackFailed, err)
	failed := s.lastErr
	s.releaseDecoderLocked()
	if s.gateway != nil {
		s.gateway.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
	s.mu.Unlock()

	s.log.Error("playback failed", slog.String("error", err.Error()))
	s.reportError(failed)
}

// teardownLocked resets session state. Caller holds s.mu.
func (s *Session) teardownLocked() {
	s.releaseDecoderLocked()
	if s.gateway != nil {
		s.gateway.Close()
		s.gateway = nil
	}
	if s.store != nil {
		s.store.Close()
		s.store = nil
	}
	s.phase = PhaseIdle
	s.sourceURL = ""
	s.manifestURL = ""
	s.streamID = ""
	s.lastErr = nil
}

// releaseDecoderLocked destroys the decoder exactly once. Caller holds s.mu.
func (s *Session) releaseDecoderLocked() {
	if s.decoder != nil {
		s.decoder.Destroy()
		s.decoder = nil
	}
}

func (s *Session) reportError(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}
