package editor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/easelhq/easel/internal/compose"
	"github.com/easelhq/easel/internal/domain"
	"github.com/easelhq/easel/internal/preview"
)

func TestSessionPanDragMovesViewportOnly(t *testing.T) {
	s := newTestSession(t, 800, 600)
	defer s.Close()

	mustPointer(t, s, PointerEvent{Phase: PhaseDown, X: 100, Y: 100})
	mustPointer(t, s, PointerEvent{Phase: PhaseMove, X: 150, Y: 130})

	vp := s.Viewport()
	if vp.PanX != 50 || vp.PanY != 30 {
		t.Fatalf("expected pan (50,30), got (%g,%g)", vp.PanX, vp.PanY)
	}

	mustPointer(t, s, PointerEvent{Phase: PhaseUp, X: 150, Y: 130})
	if got := s.State(); len(got.History) != 1 {
		t.Fatalf("expected panning to stay out of history, got %d entries", len(got.History))
	}
	if opts := s.Options(); opts.OffsetX != 0 || opts.OffsetY != 0 {
		t.Fatal("expected panning to leave the offset untouched")
	}
}

func TestSessionMoveImageDragCommitsOnce(t *testing.T) {
	s := newTestSession(t, 800, 600)
	defer s.Close()

	if err := s.SetTool(ToolMoveImage); err != nil {
		t.Fatalf("set tool: %v", err)
	}
	mustPointer(t, s, PointerEvent{Phase: PhaseDown, X: 10, Y: 10})
	mustPointer(t, s, PointerEvent{Phase: PhaseMove, X: 30, Y: 10})
	mustPointer(t, s, PointerEvent{Phase: PhaseMove, X: 50, Y: 10})
	mustPointer(t, s, PointerEvent{Phase: PhaseUp, X: 50, Y: 10})

	opts := s.Options()
	if opts.OffsetX != 40 || opts.OffsetY != 0 {
		t.Fatalf("expected offset (40,0), got (%g,%g)", opts.OffsetX, opts.OffsetY)
	}

	state := s.State()
	if len(state.History) != 2 {
		t.Fatalf("expected one Move Image commit, got %d entries", len(state.History))
	}
	if state.History[1].Label != "Move Image" {
		t.Fatalf("expected Move Image label, got %q", state.History[1].Label)
	}

	// A click without motion changes nothing and must not spam history.
	mustPointer(t, s, PointerEvent{Phase: PhaseDown, X: 70, Y: 70})
	mustPointer(t, s, PointerEvent{Phase: PhaseUp, X: 70, Y: 70})
	if got := s.State(); len(got.History) != 2 {
		t.Fatalf("expected no-op drag to skip history, got %d entries", len(got.History))
	}
}

func TestSessionMoveImageDividesDeltaByZoom(t *testing.T) {
	s := newTestSession(t, 800, 600)
	defer s.Close()

	s.SetViewport(Viewport{Scale: 2.0})
	if err := s.SetTool(ToolMoveImage); err != nil {
		t.Fatalf("set tool: %v", err)
	}
	mustPointer(t, s, PointerEvent{Phase: PhaseDown, X: 0, Y: 0})
	mustPointer(t, s, PointerEvent{Phase: PhaseMove, X: 30, Y: 10})

	opts := s.Options()
	if opts.OffsetX != 15 || opts.OffsetY != 5 {
		t.Fatalf("expected offset (15,5) at 2x zoom, got (%g,%g)", opts.OffsetX, opts.OffsetY)
	}
}

func TestSessionCropDragCommitsAndExitsToPan(t *testing.T) {
	s := newTestSession(t, 800, 600)
	defer s.Close()

	if err := s.SetTool(ToolCrop); err != nil {
		t.Fatalf("set tool: %v", err)
	}
	mustPointer(t, s, PointerEvent{Phase: PhaseDown, X: 10, Y: 20})
	mustPointer(t, s, PointerEvent{Phase: PhaseMove, X: 110, Y: 70})

	if sel := s.State().Selection; sel == nil || sel.Width != 100 || sel.Height != 50 {
		t.Fatalf("expected live 100x50 selection, got %+v", sel)
	}

	mustPointer(t, s, PointerEvent{Phase: PhaseUp, X: 110, Y: 70})

	opts := s.Options()
	if !opts.HasCrop {
		t.Fatal("expected crop to be set")
	}
	want := domain.Rect{X: 10, Y: 20, Width: 100, Height: 50}
	if opts.Crop != want {
		t.Fatalf("expected crop %+v, got %+v", want, opts.Crop)
	}
	if opts.TargetWidth != 100 || opts.TargetHeight != 50 {
		t.Fatalf("expected crop to redefine working size, got %dx%d", opts.TargetWidth, opts.TargetHeight)
	}
	if s.Tool() != ToolPan {
		t.Fatalf("expected crop commit to exit to pan, tool=%q", s.Tool())
	}

	state := s.State()
	if state.Selection != nil {
		t.Fatal("expected selection discarded after commit")
	}
	if state.History[state.HistoryIndex].Label != "Crop" {
		t.Fatalf("expected Crop commit, got %q", state.History[state.HistoryIndex].Label)
	}
}

func TestSessionTinyCropDragIsDiscarded(t *testing.T) {
	s := newTestSession(t, 800, 600)
	defer s.Close()

	if err := s.SetTool(ToolCrop); err != nil {
		t.Fatalf("set tool: %v", err)
	}
	mustPointer(t, s, PointerEvent{Phase: PhaseDown, X: 10, Y: 10})
	mustPointer(t, s, PointerEvent{Phase: PhaseMove, X: 13, Y: 60})
	mustPointer(t, s, PointerEvent{Phase: PhaseUp, X: 13, Y: 60})

	if opts := s.Options(); opts.HasCrop {
		t.Fatal("expected tiny drag to leave crop unset")
	}
	if s.Tool() != ToolCrop {
		t.Fatalf("expected to remain in crop after discarded drag, tool=%q", s.Tool())
	}
	if got := s.State(); len(got.History) != 1 {
		t.Fatalf("expected no history entry, got %d", len(got.History))
	}
}

func TestSessionCropHonorsViewportTransform(t *testing.T) {
	s := newTestSession(t, 800, 600)
	defer s.Close()

	s.SetViewport(Viewport{PanX: 100, PanY: 50, Scale: 2.0})
	if err := s.SetTool(ToolCrop); err != nil {
		t.Fatalf("set tool: %v", err)
	}
	mustPointer(t, s, PointerEvent{Phase: PhaseDown, X: 100, Y: 50})
	mustPointer(t, s, PointerEvent{Phase: PhaseUp, X: 300, Y: 150})

	opts := s.Options()
	want := domain.Rect{X: 0, Y: 0, Width: 100, Height: 50}
	if !opts.HasCrop || opts.Crop != want {
		t.Fatalf("expected crop %+v through viewport, got %+v", want, opts.Crop)
	}
}

func TestSessionSetToolAbortsDrag(t *testing.T) {
	s := newTestSession(t, 800, 600)
	defer s.Close()

	if err := s.SetTool(ToolCrop); err != nil {
		t.Fatalf("set tool: %v", err)
	}
	mustPointer(t, s, PointerEvent{Phase: PhaseDown, X: 10, Y: 10})
	mustPointer(t, s, PointerEvent{Phase: PhaseMove, X: 200, Y: 200})

	if err := s.SetTool(ToolPan); err != nil {
		t.Fatalf("set tool: %v", err)
	}
	if sel := s.State().Selection; sel != nil {
		t.Fatal("expected selection cleared on tool switch")
	}

	// The orphaned up must not commit anything.
	mustPointer(t, s, PointerEvent{Phase: PhaseUp, X: 220, Y: 220})
	if opts := s.Options(); opts.HasCrop {
		t.Fatal("expected aborted drag to leave crop unset")
	}

	if err := s.SetTool("lasso"); err == nil {
		t.Fatal("expected unknown tool to be rejected")
	}
}

func TestSessionUndoRedoNavigateOptions(t *testing.T) {
	s := newTestSession(t, 800, 600)
	defer s.Close()

	if err := s.ApplyAction(domain.EditAction{Type: domain.ActionResizeWidth, Width: 320}); err != nil {
		t.Fatalf("apply action: %v", err)
	}
	if opts := s.Options(); opts.TargetWidth != 320 {
		t.Fatalf("expected width 320, got %d", opts.TargetWidth)
	}

	if !s.Undo() {
		t.Fatal("expected undo to succeed")
	}
	if opts := s.Options(); opts.TargetWidth != 0 {
		t.Fatalf("expected undo to restore width 0, got %d", opts.TargetWidth)
	}

	if !s.Redo() {
		t.Fatal("expected redo to succeed")
	}
	if opts := s.Options(); opts.TargetWidth != 320 {
		t.Fatalf("expected redo to restore width 320, got %d", opts.TargetWidth)
	}

	if s.Redo() {
		t.Fatal("expected redo at the newest entry to be a no-op")
	}
}

func TestSessionViewportScaleClamped(t *testing.T) {
	s := newTestSession(t, 800, 600)
	defer s.Close()

	if vp := s.SetViewport(Viewport{Scale: 9}); vp.Scale != MaxViewportScale {
		t.Fatalf("expected scale clamped to %g, got %g", MaxViewportScale, vp.Scale)
	}
	if vp := s.SetViewport(Viewport{Scale: 0.01}); vp.Scale != MinViewportScale {
		t.Fatalf("expected scale clamped to %g, got %g", MinViewportScale, vp.Scale)
	}
}

func TestSessionReplaceSourceMarksTimeline(t *testing.T) {
	s := newTestSession(t, 800, 600)
	defer s.Close()

	replacement := decodeTestSource(t, buildSessionPNG(t, 800, 600))
	before := s.Options()
	s.ReplaceSource(replacement, "Remove Background")

	state := s.State()
	if state.History[state.HistoryIndex].Label != "Remove Background" {
		t.Fatalf("expected Remove Background entry, got %q", state.History[state.HistoryIndex].Label)
	}
	if s.Options() != before {
		t.Fatal("expected options to survive a source swap")
	}
}

func TestSessionEnsureRenderProducesPreview(t *testing.T) {
	s := newTestSession(t, 120, 60)
	defer s.Close()

	render, err := s.EnsureRender(context.Background())
	if err != nil {
		t.Fatalf("ensure render: %v", err)
	}
	if render == nil || len(render.Data) == 0 {
		t.Fatal("expected encoded preview bytes")
	}
	if render.Width != 120 || render.Height != 60 {
		t.Fatalf("expected source-sized preview, got %dx%d", render.Width, render.Height)
	}
	if render.Format != domain.FormatPNG {
		t.Fatalf("expected png preview, got %q", render.Format)
	}
}

func newTestSession(t *testing.T, w, h int) *Session {
	t.Helper()

	src := decodeTestSource(t, buildSessionPNG(t, w, h))
	return NewSession("sess_test", "img_test", src, preview.Immediate{}, nil, time.Millisecond, time.Millisecond)
}

func mustPointer(t *testing.T, s *Session, ev PointerEvent) {
	t.Helper()

	if err := s.HandlePointer(ev); err != nil {
		t.Fatalf("pointer %s: %v", ev.Phase, err)
	}
}

func decodeTestSource(t *testing.T, data []byte) *compose.Source {
	t.Helper()

	src, err := compose.DecodeSource(data)
	if err != nil {
		t.Fatalf("decode test source: %v", err)
	}
	return src
}

func buildSessionPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 170,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode session png: %v", err)
	}
	return buf.Bytes()
}
