// Package converter supervises ffmpeg processes that repackage RTSP sources
// into HLS renditions on local disk.
package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrEmptySource is returned when no RTSP URL was provided.
	ErrEmptySource = errors.New("rtsp url is required")

	// ErrManifestTimeout is returned when ffmpeg produced no playable
	// manifest within the configured window.
	ErrManifestTimeout = errors.New("timed out waiting for playable manifest")

	// ErrShuttingDown is returned for conversions requested after Shutdown.
	ErrShuttingDown = errors.New("converter is shutting down")
)

// Result is the outcome of a successful conversion request. HLSURL is
// relative to the API base; clients resolve it before handing it to a player.
type Result struct {
	StreamID string `json:"stream_id"`
	HLSURL   string `json:"hls_url"`
}

// Process is a running conversion job.
type Process interface {
	// Stop terminates the job and reaps it. Safe to call more than once.
	Stop() error
}

// Runner launches conversion processes. The default runner shells out to
// ffmpeg; tests substitute a fake.
type Runner interface {
	Start(bin string, args []string) (Process, error)
}

// Config holds converter settings.
type Config struct {
	FFmpegBin    string        // ffmpeg binary, default "ffmpeg"
	OutputRoot   string        // filesystem root for per-stream HLS output
	PublicBase   string        // URL path prefix the output is served under, e.g. "/streams"
	Timeout      time.Duration // how long Start waits for a playable manifest
	PollInterval time.Duration // manifest poll cadence
}

// Converter owns one ffmpeg process per converted stream. Each process is
// released exactly once, on Stop, on a failed start, or on Shutdown.
type Converter struct {
	cfg    Config
	runner Runner
	log    *slog.Logger

	mu     sync.Mutex
	procs  map[string]Process
	closed bool
}

// New returns a Converter using the real ffmpeg runner.
func New(cfg Config, log *slog.Logger) *Converter {
	return NewWithRunner(cfg, ExecRunner{}, log)
}

// NewWithRunner returns a Converter with an injected Runner.
func NewWithRunner(cfg Config, runner Runner, log *slog.Logger) *Converter {
	if cfg.FFmpegBin == "" {
		cfg.FFmpegBin = "ffmpeg"
	}
	if cfg.PublicBase == "" {
		cfg.PublicBase = "/streams"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	return &Converter{
		cfg:    cfg,
		runner: runner,
		log:    log,
		procs:  make(map[string]Process),
	}
}

// Start launches an RTSP to HLS conversion and blocks until the manifest
// exists and lists at least one segment, or until ctx or the configured
// timeout expires. The ffmpeg process keeps running after Start returns;
// it is bound to the returned stream id, not to ctx.
func (c *Converter) Start(ctx context.Context, rtspURL string) (Result, error) {
	rtspURL = strings.TrimSpace(rtspURL)
	if rtspURL == "" {
		return Result{}, ErrEmptySource
	}

	streamID := uuid.NewString()
	outDir := filepath.Join(c.cfg.OutputRoot, streamID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}
	manifestPath := filepath.Join(outDir, "index.m3u8")

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{}, ErrShuttingDown
	}
	proc, err := c.runner.Start(c.cfg.FFmpegBin, ffmpegArgs(rtspURL, manifestPath))
	if err != nil {
		c.mu.Unlock()
		return Result{}, fmt.Errorf("start ffmpeg: %w", err)
	}
	c.procs[streamID] = proc
	c.mu.Unlock()

	c.log.Info("conversion started",
		slog.String("stream_id", streamID),
		slog.String("source", rtspURL))

	if err := c.waitForManifest(ctx, manifestPath); err != nil {
		c.Stop(streamID)
		return Result{}, err
	}

	return Result{
		StreamID: streamID,
		HLSURL:   path.Join(c.cfg.PublicBase, streamID, "index.m3u8"),
	}, nil
}

// Stop terminates the conversion for the given stream id, if any.
func (c *Converter) Stop(streamID string) {
	c.mu.Lock()
	proc, ok := c.procs[streamID]
	delete(c.procs, streamID)
	c.mu.Unlock()

	if !ok {
		return
	}
	if err := proc.Stop(); err != nil {
		c.log.Warn("stop conversion", slog.String("stream_id", streamID), slog.String("error", err.Error()))
	}
	c.log.Info("conversion stopped", slog.String("stream_id", streamID))
}

// ActiveCount returns the number of running conversions. Used for metrics.
func (c *Converter) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.procs)
}

// Shutdown stops every running conversion and rejects new ones.
func (c *Converter) Shutdown() {
	c.mu.Lock()
	c.closed = true
	procs := c.procs
	c.procs = make(map[string]Process)
	c.mu.Unlock()

	for id, proc := range procs {
		if err := proc.Stop(); err != nil {
			c.log.Warn("stop conversion", slog.String("stream_id", id), slog.String("error", err.Error()))
		}
	}
}

// waitForManifest polls until the manifest file lists at least one segment.
func (c *Converter) waitForManifest(ctx context.Context, manifestPath string) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		data, err := os.ReadFile(manifestPath)
		if err == nil && CountSegments(string(data)) > 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrManifestTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// ffmpegArgs mirrors the transcode profile the service has always used:
// TCP transport, low-latency x264, AAC audio, a rolling five-segment window.
func ffmpegArgs(rtspURL, manifestPath string) []string {
	return []string{
		"-rtsp_transport", "tcp",
		"-i", rtspURL,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "zerolatency",
		"-c:a", "aac",
		"-f", "hls",
		"-hls_time", "2",
		"-hls_list_size", "5",
		"-hls_flags", "delete_segments",
		manifestPath,
	}
}

// ExecRunner launches real ffmpeg processes.
type ExecRunner struct{}

// Start implements Runner.Start.
func (ExecRunner) Start(bin string, args []string) (Process, error) {
	cmd := exec.Command(bin, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	done    chan struct{}
	stop    sync.Once
	waitErr error
}

// Stop implements Process.Stop.
func (p *execProcess) Stop() error {
	p.stop.Do(func() {
		_ = p.cmd.Process.Kill()
	})
	<-p.done
	// Kill makes Wait report an exit error; that is the expected path.
	return nil
}
