// Package editor owns interactive edit sessions: the tool state
// machine that turns pointer events into viewport, offset and crop
// changes, the bounded undo/redo history, and the session registry.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/easelhq/easel/internal/codec"
	"github.com/easelhq/easel/internal/compose"
	"github.com/easelhq/easel/internal/domain"
	"github.com/easelhq/easel/internal/geometry"
	"github.com/easelhq/easel/internal/preview"
)

const (
	ToolPan       = "pan"
	ToolMoveImage = "move_image"
	ToolCrop      = "crop"

	PhaseDown = "down"
	PhaseMove = "move"
	PhaseUp   = "up"
)

const (
	MinViewportScale = 0.1
	MaxViewportScale = 5.0
)

var (
	ErrUnknownTool  = errors.New("unknown tool")
	ErrUnknownPhase = errors.New("unknown pointer phase")
)

// Viewport is pan+zoom presentation state. It shapes what the client
// draws and how pointer coordinates map back to the source, but never
// the exported pixels, so it stays out of history.
type Viewport struct {
	PanX  float64 `json:"pan_x"`
	PanY  float64 `json:"pan_y"`
	Scale float64 `json:"scale"`
}

func DefaultViewport() Viewport {
	return Viewport{Scale: 1.0}
}

func ClampScale(scale float64) float64 {
	if scale < MinViewportScale {
		return MinViewportScale
	}
	if scale > MaxViewportScale {
		return MaxViewportScale
	}
	return scale
}

func ValidTool(tool string) bool {
	switch tool {
	case ToolPan, ToolMoveImage, ToolCrop:
		return true
	}
	return false
}

// PointerEvent is one down/move/up sample in screen coordinates.
type PointerEvent struct {
	Phase string  `json:"phase"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// Selection is the transient screen-space crop box, live only while a
// crop drag is in progress.
type Selection struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type dragState struct {
	anchorX float64
	anchorY float64
	baseX   float64
	baseY   float64
}

// Session is one interactive edit over one source image. All mutation
// goes through the session mutex; compositing and encoding run on the
// preview executor, never under the lock.
type Session struct {
	ID      string
	ImageID string

	mu        sync.Mutex
	source    *compose.Source
	options   domain.EditOptions
	tool      string
	viewport  Viewport
	history   *History
	drag      *dragState
	selection *Selection
	orch      *preview.Orchestrator
	lastSeen  time.Time
}

// State is a read-only snapshot of a session for presentation.
type State struct {
	ID           string             `json:"id"`
	ImageID      string             `json:"image_id"`
	SourceWidth  int                `json:"source_width"`
	SourceHeight int                `json:"source_height"`
	Options      domain.EditOptions `json:"options"`
	Tool         string             `json:"tool"`
	Viewport     Viewport           `json:"viewport"`
	History      []HistoryEntry     `json:"history"`
	HistoryIndex int                `json:"history_index"`
	Selection    *Selection         `json:"selection,omitempty"`
}

// NewSession seeds the edit state from the source metadata and starts
// the preview orchestrator. The output format follows the source when
// the source format is exportable.
func NewSession(id, imageID string, src *compose.Source, exec preview.Executor, obs preview.Observer, dragDelay, editDelay time.Duration) *Session {
	opts := domain.DefaultOptions()
	if domain.ValidFormat(src.Format) {
		opts.Format = src.Format
	}

	s := &Session{
		ID:       id,
		ImageID:  imageID,
		source:   src,
		options:  opts,
		tool:     ToolPan,
		viewport: DefaultViewport(),
		history:  NewHistory(opts),
		lastSeen: time.Now(),
	}
	s.orch = preview.New(preview.SourceRenderer(src), exec, opts, obs, dragDelay, editDelay)
	return s
}

func (s *Session) Close() {
	s.orch.Close()
}

func (s *Session) Touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SetTool switches the interaction mode. Any drag in progress is
// abandoned and the crop selection cleared; pointer motion alone can
// never change tools.
func (s *Session) SetTool(tool string) error {
	if !ValidTool(tool) {
		return fmt.Errorf("%w: %q", ErrUnknownTool, tool)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drag = nil
	s.selection = nil
	s.tool = tool
	return nil
}

func (s *Session) Tool() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tool
}

// SetViewport replaces the pan/zoom state, clamping the scale to the
// supported range. No recompute follows: the viewport never affects
// rendered bytes.
func (s *Session) SetViewport(vp Viewport) Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	vp.Scale = ClampScale(vp.Scale)
	s.viewport = vp
	return s.viewport
}

func (s *Session) Viewport() Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport
}

func (s *Session) Options() domain.EditOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

// ApplyAction runs one edit through the reducer, commits it when it
// changed anything and schedules a recompute.
func (s *Session) ApplyAction(a domain.EditAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := domain.Apply(s.options, a)
	if err != nil {
		return err
	}
	s.options = next
	s.history.CommitIfChanged(next, a.Label())
	s.orch.Invalidate(next, false)
	return nil
}

func (s *Session) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.history.Undo() {
		return false
	}
	s.options = s.history.Current().Options
	s.orch.Invalidate(s.options, false)
	return true
}

func (s *Session) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.history.Redo() {
		return false
	}
	s.options = s.history.Current().Options
	s.orch.Invalidate(s.options, false)
	return true
}

func (s *Session) JumpTo(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.history.JumpTo(index) {
		return false
	}
	s.options = s.history.Current().Options
	s.orch.Invalidate(s.options, false)
	return true
}

// HandlePointer drives the current tool with one pointer sample.
func (s *Session) HandlePointer(ev PointerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Phase {
	case PhaseDown:
		s.pointerDown(ev)
	case PhaseMove:
		s.pointerMove(ev)
	case PhaseUp:
		s.pointerUp(ev)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPhase, ev.Phase)
	}
	return nil
}

func (s *Session) pointerDown(ev PointerEvent) {
	switch s.tool {
	case ToolPan:
		s.drag = &dragState{anchorX: ev.X - s.viewport.PanX, anchorY: ev.Y - s.viewport.PanY}
	case ToolMoveImage:
		s.drag = &dragState{anchorX: ev.X, anchorY: ev.Y, baseX: s.options.OffsetX, baseY: s.options.OffsetY}
	case ToolCrop:
		s.drag = &dragState{anchorX: ev.X, anchorY: ev.Y}
		s.selection = &Selection{X: ev.X, Y: ev.Y}
	}
}

func (s *Session) pointerMove(ev PointerEvent) {
	if s.drag == nil {
		return
	}
	switch s.tool {
	case ToolPan:
		s.viewport.PanX = ev.X - s.drag.anchorX
		s.viewport.PanY = ev.Y - s.drag.anchorY
	case ToolMoveImage:
		// The delta is divided by the zoom so the offset moves in
		// target-canvas pixels, not screen pixels.
		s.options.OffsetX = s.drag.baseX + (ev.X-s.drag.anchorX)/s.viewport.Scale
		s.options.OffsetY = s.drag.baseY + (ev.Y-s.drag.anchorY)/s.viewport.Scale
		s.orch.Invalidate(s.options, true)
	case ToolCrop:
		box := geometry.ScreenRectBetween(s.drag.anchorX, s.drag.anchorY, ev.X, ev.Y)
		s.selection = &Selection{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height}
	}
}

func (s *Session) pointerUp(ev PointerEvent) {
	if s.drag == nil {
		return
	}
	drag := s.drag
	s.drag = nil

	switch s.tool {
	case ToolPan:
		// Viewport state never enters history.
	case ToolMoveImage:
		s.history.CommitIfChanged(s.options, "Move Image")
	case ToolCrop:
		s.selection = nil
		box := geometry.ScreenRectBetween(drag.anchorX, drag.anchorY, ev.X, ev.Y)
		rect, ok := geometry.MapScreenRect(box, s.viewport.PanX, s.viewport.PanY, s.viewport.Scale, s.source.Width, s.source.Height)
		if !ok {
			// Accidental drag: drop the selection, stay in crop.
			return
		}
		s.options.Crop = rect
		s.options.HasCrop = true
		s.options.TargetWidth = rect.Width
		s.options.TargetHeight = rect.Height
		s.history.CommitIfChanged(s.options, "Crop")
		s.orch.Invalidate(s.options, false)
		s.tool = ToolPan
	}
}

// State snapshots the session for API responses.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := State{
		ID:           s.ID,
		ImageID:      s.ImageID,
		SourceWidth:  s.source.Width,
		SourceHeight: s.source.Height,
		Options:      s.options,
		Tool:         s.tool,
		Viewport:     s.viewport,
		History:      s.history.Entries(),
		HistoryIndex: s.history.Index(),
	}
	if s.selection != nil {
		sel := *s.selection
		state.Selection = &sel
	}
	return state
}

// LatestRender returns the newest preview bytes and the error slot of
// the newest recompute.
func (s *Session) LatestRender() (*preview.Render, error) {
	return s.orch.Latest()
}

// EnsureRender returns the newest preview, rendering synchronously
// when the session has produced nothing yet.
func (s *Session) EnsureRender(ctx context.Context) (*preview.Render, error) {
	if last, err := s.orch.Latest(); last != nil || err != nil {
		return last, err
	}
	return s.orch.RenderNow(ctx)
}

// RenderExport produces a fresh render of the current options outside
// the preview sequence, for export delivery.
func (s *Session) RenderExport(ctx context.Context) (*preview.Render, error) {
	s.mu.Lock()
	render := preview.SourceRenderer(s.source)
	opts := s.options
	s.mu.Unlock()
	return render(ctx, opts)
}

// SourcePNG encodes the current source pixels losslessly, used to hand
// the working image to external transforms.
func (s *Session) SourcePNG() ([]byte, error) {
	s.mu.Lock()
	img := s.source.Image
	s.mu.Unlock()
	return codec.Encode(img, domain.FormatPNG, 1)
}

// ReplaceSource swaps the session onto new pixels, typically the
// alpha-matted result of background removal. Options survive
// unchanged; the entry marks the swap in the timeline even though undo
// cannot restore the previous pixels.
func (s *Session) ReplaceSource(src *compose.Source, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
	s.orch.SetRenderer(preview.SourceRenderer(src))
	s.history.Push(s.options, label)
	s.orch.Invalidate(s.options, false)
}

func (s *Session) SourceSize() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source.Width, s.source.Height
}
