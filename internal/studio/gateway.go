package studio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"overlay-studio/internal/overlays"
)

// Gateway translates each optimistic Store mutation into one persistence
// request and reconciles the response back into the Store. Requests run on
// their own goroutines; resolutions go through the Store's sequence and
// supersession checks, so the gateway never lets a stale response overwrite
// a newer mutation. Closing the gateway cancels in-flight requests; their
// results are discarded, not applied.
type Gateway struct {
	api     API
	store   *Store
	log     *slog.Logger
	onError func(error)
	timeout time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	listOnce sync.Once
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithErrorHook installs a callback invoked for every failed persistence
// request, after the optimistic change has been reverted.
func WithErrorHook(fn func(error)) GatewayOption {
	return func(g *Gateway) { g.onError = fn }
}

// WithRequestTimeout bounds each persistence request.
func WithRequestTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) { g.timeout = d }
}

// NewGateway binds a Gateway to the store. The store forwards every
// mutation to it from then on.
func NewGateway(api API, store *Store, log *slog.Logger, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		api:     api,
		store:   store,
		log:     log,
		timeout: 15 * time.Second,
	}
	g.ctx, g.cancel = context.WithCancel(context.Background())
	for _, opt := range opts {
		opt(g)
	}
	store.bind(g)
	return g
}

// LoadInitial fetches the stream's persisted overlays. At most one fetch is
// issued per gateway, on the session's transition to Active.
func (g *Gateway) LoadInitial() {
	g.listOnce.Do(func() {
		g.spawn(func(ctx context.Context) {
			items, err := g.api.ListOverlays(ctx, g.store.StreamID())
			g.store.resolveList(items, err)
			g.report("load overlays", err)
		})
	})
}

// Close cancels all in-flight requests. Late completions are discarded.
func (g *Gateway) Close() {
	g.cancel()
}

// Wait blocks until every issued request has settled.
func (g *Gateway) Wait() {
	g.wg.Wait()
}

func (g *Gateway) syncCreate(placeholderID string, draft Draft) {
	g.spawn(func(ctx context.Context) {
		ov, err := g.api.CreateOverlay(ctx, g.store.StreamID(), draft)
		fu := g.store.resolveCreate(placeholderID, ov, err)
		g.report("create overlay", err)
		g.runFollowUp(ctx, fu)
	})
}

func (g *Gateway) syncUpdate(id string, seq uint64, patch overlays.Patch) {
	g.spawn(func(ctx context.Context) {
		ov, err := g.api.UpdateOverlay(ctx, id, patch)
		g.store.resolveUpdate(id, seq, ov, err)
		g.report("update overlay", err)
	})
}

func (g *Gateway) syncDelete(id string, seq uint64) {
	g.spawn(func(ctx context.Context) {
		err := g.api.DeleteOverlay(ctx, id)
		g.store.resolveDelete(id, seq, err)
		g.report("delete overlay", err)
	})
}

// runFollowUp executes work a resolution produced, on the same goroutine so
// Wait covers the whole chain.
func (g *Gateway) runFollowUp(ctx context.Context, fu followUp) {
	if fu.deleteID != "" {
		err := g.api.DeleteOverlay(ctx, fu.deleteID)
		g.report("delete overlay", err)
	}
	if fu.updateID != "" {
		ov, err := g.api.UpdateOverlay(ctx, fu.updateID, fu.updatePatch)
		g.store.resolveUpdate(fu.updateID, fu.updateSeq, ov, err)
		g.report("update overlay", err)
	}
}

func (g *Gateway) spawn(fn func(ctx context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ctx, cancel := context.WithTimeout(g.ctx, g.timeout)
		defer cancel()
		fn(ctx)
	}()
}

func (g *Gateway) report(op string, err error) {
	if err == nil || g.ctx.Err() != nil {
		return
	}
	g.log.Warn("overlay persistence failed",
		slog.String("op", op),
		slog.String("stream_id", g.store.StreamID()),
		slog.String("error", err.Error()))
	if g.onError != nil {
		g.onError(fmt.Errorf("%s: %w", op, err))
	}
}
