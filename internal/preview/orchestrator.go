// Package preview turns edit-state changes into debounced,
// sequence-ordered composite+encode renders. Bursts of changes during
// a drag collapse into the most recent state, and a stale render can
// never overwrite a newer one.
package preview

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/easelhq/easel/internal/domain"
)

const (
	// DragDebounce is the recompute delay while an interactive move
	// drag is in progress.
	DragDebounce = 10 * time.Millisecond

	// EditDebounce is the recompute delay for every other change.
	EditDebounce = 300 * time.Millisecond
)

// ErrClosed is returned for renders requested after the session shut
// its orchestrator down.
var ErrClosed = errors.New("preview orchestrator closed")

// Render is one encoded preview result.
type Render struct {
	Seq    uint64
	Data   []byte
	Format string
	Width  int
	Height int
}

// RenderFunc produces an encoded render for one options snapshot.
type RenderFunc func(ctx context.Context, opts domain.EditOptions) (*Render, error)

// Executor runs render work off the interaction path. Production uses
// a bounded Pool; tests substitute Immediate to execute synchronously.
type Executor interface {
	Execute(fn func())
}

// Pool is a bounded-concurrency Executor shared by every session.
type Pool struct {
	sem chan struct{}
}

func NewPool(slots int) *Pool {
	return &Pool{sem: make(chan struct{}, max(1, slots))}
}

func (p *Pool) Execute(fn func()) {
	go func() {
		p.sem <- struct{}{}
		defer func() { <-p.sem }()
		fn()
	}()
}

// Immediate executes render work synchronously on the caller.
type Immediate struct{}

func (Immediate) Execute(fn func()) {
	fn()
}

// Observer receives render lifecycle notifications, typically wired to
// server metrics.
type Observer interface {
	RenderStarted()
	RenderApplied(duration time.Duration, bytes int)
	RenderDropped()
	RenderFailed()
}

type nopObserver struct{}

func (nopObserver) RenderStarted()                   {}
func (nopObserver) RenderApplied(time.Duration, int) {}
func (nopObserver) RenderDropped()                   {}
func (nopObserver) RenderFailed()                    {}

// Orchestrator owns the debounce timer, the request sequence and the
// latest render for one session.
type Orchestrator struct {
	mu        sync.Mutex
	render    RenderFunc
	exec      Executor
	obs       Observer
	tracer    trace.Tracer
	dragDelay time.Duration
	editDelay time.Duration

	current domain.EditOptions
	timer   *time.Timer
	nextSeq uint64
	applied uint64
	last    *Render
	lastErr error

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// New builds an orchestrator starting from the session's initial
// options. Non-positive delays fall back to the package defaults; a
// nil observer is replaced with a no-op.
func New(render RenderFunc, exec Executor, initial domain.EditOptions, obs Observer, dragDelay, editDelay time.Duration) *Orchestrator {
	if obs == nil {
		obs = nopObserver{}
	}
	if dragDelay <= 0 {
		dragDelay = DragDebounce
	}
	if editDelay <= 0 {
		editDelay = EditDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		render:    render,
		exec:      exec,
		obs:       obs,
		tracer:    otel.Tracer("easel/preview"),
		dragDelay: dragDelay,
		editDelay: editDelay,
		current:   initial,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Invalidate records the new options and (re)arms the debounce timer,
// canceling any pending recompute so intermediate drag frames never
// get encoded.
func (o *Orchestrator) Invalidate(opts domain.EditOptions, interactive bool) {
	delay := o.editDelay
	if interactive {
		delay = o.dragDelay
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.current = opts
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timer = time.AfterFunc(delay, o.fire)
}

func (o *Orchestrator) fire() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.timer = nil
	o.nextSeq++
	seq := o.nextSeq
	opts := o.current
	render := o.render
	ctx := o.ctx
	o.mu.Unlock()

	o.obs.RenderStarted()
	o.exec.Execute(func() {
		o.execute(ctx, render, seq, opts)
	})
}

// RenderNow bypasses the debounce and renders the current options on
// the calling goroutine, returning whatever render is newest once the
// result lands. Callers use it for the first preview of a session.
func (o *Orchestrator) RenderNow(ctx context.Context) (*Render, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.nextSeq++
	seq := o.nextSeq
	opts := o.current
	render := o.render
	o.mu.Unlock()

	o.obs.RenderStarted()
	o.execute(ctx, render, seq, opts)
	return o.Latest()
}

func (o *Orchestrator) execute(ctx context.Context, render RenderFunc, seq uint64, opts domain.EditOptions) {
	startedAt := time.Now()

	ctx, span := o.tracer.Start(ctx, "preview.render")
	span.SetAttributes(
		attribute.Int64("render.seq", int64(seq)),
		attribute.String("render.format", opts.Format),
		attribute.String("render.fit", opts.Fit),
	)
	result, err := render(ctx, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
	} else {
		span.SetStatus(codes.Ok, "rendered")
	}
	span.End()

	o.apply(seq, result, err, time.Since(startedAt))
}

// apply lands a finished render. Results older than the newest applied
// sequence are dropped; failures occupy the error slot but leave the
// last good render in place.
func (o *Orchestrator) apply(seq uint64, result *Render, err error, duration time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if seq <= o.applied {
		o.obs.RenderDropped()
		return
	}
	o.applied = seq
	if err != nil {
		o.lastErr = err
		o.obs.RenderFailed()
		return
	}
	result.Seq = seq
	o.last = result
	o.lastErr = nil
	o.obs.RenderApplied(duration, len(result.Data))
}

// Latest returns the newest applied render alongside the error slot
// from the newest recompute, either of which may be nil.
func (o *Orchestrator) Latest() (*Render, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last, o.lastErr
}

// SetRenderer swaps the render function, used when the session's
// source pixels are replaced.
func (o *Orchestrator) SetRenderer(render RenderFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.render = render
}

// Close stops the timer and cancels in-flight render contexts. Further
// scheduling becomes a no-op.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.cancel()
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
