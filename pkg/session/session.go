// Package session holds the user-owned editing state of one loaded sheet.
//
// A Session is an immutable value. Every With method returns a modified
// copy, so renderers and the exporter can keep working on a snapshot while
// the caller prepares the next one. Offsets are only replaced wholesale by
// the result of a batch alignment.
package session

import (
	"github.com/alonelily/FGO-Sprite/pkg/grid"
	"github.com/alonelily/FGO-Sprite/pkg/types"
)

// Session is a snapshot of the editing state
type Session struct {
	analysis    types.AnalysisResult
	grid        *types.GridConfig
	calibration types.Calibration
	render      types.RenderOptions
	anchorSub   types.Rect
	offsets     []types.PatchOffset
}

// New creates a session for a freshly analysed sheet
func New(analysis types.AnalysisResult) Session {
	return Session{
		analysis:    cloneAnalysis(analysis),
		calibration: types.IdentityCalibration(),
		render:      types.RenderOptions{Mask: true, PreviewOpacity: 0.6},
	}
}

// Analysis returns the detected regions
func (s Session) Analysis() types.AnalysisResult {
	return cloneAnalysis(s.analysis)
}

// Grid returns the grid configuration, if one is set
func (s Session) Grid() (types.GridConfig, bool) {
	if s.grid == nil {
		return types.GridConfig{}, false
	}
	return *s.grid, true
}

// Calibration returns the global correction
func (s Session) Calibration() types.Calibration {
	return s.calibration
}

// Render returns the render options
func (s Session) Render() types.RenderOptions {
	return s.render
}

// AnchorSubRect returns the template rectangle relative to a patch origin
func (s Session) AnchorSubRect() types.Rect {
	return s.anchorSub
}

// WithAnalysis returns a copy with edited regions
func (s Session) WithAnalysis(a types.AnalysisResult) Session {
	s.analysis = cloneAnalysis(a)
	return s
}

// WithGrid returns a copy using the grid for patch placement. Offsets are
// dropped because patch indices no longer refer to the same patches.
func (s Session) WithGrid(g types.GridConfig) Session {
	s.grid = &g
	s.offsets = nil
	return s
}

// WithoutGrid returns a copy using the detector patches
func (s Session) WithoutGrid() Session {
	s.grid = nil
	s.offsets = nil
	return s
}

// WithCalibration returns a copy with a new global correction
func (s Session) WithCalibration(c types.Calibration) Session {
	s.calibration = c
	return s
}

// WithRender returns a copy with new render options
func (s Session) WithRender(r types.RenderOptions) Session {
	s.render = r
	return s
}

// WithAnchorSubRect returns a copy with a new template rectangle
func (s Session) WithAnchorSubRect(r types.Rect) Session {
	s.anchorSub = r
	return s
}

// WithOffsets returns a copy holding the given per-patch offsets
func (s Session) WithOffsets(offsets []types.PatchOffset) Session {
	s.offsets = append([]types.PatchOffset(nil), offsets...)
	return s
}

// Offsets returns a copy of the per-patch offsets
func (s Session) Offsets() []types.PatchOffset {
	return append([]types.PatchOffset(nil), s.offsets...)
}

// Offset returns the offset stored for a patch, or nil
func (s Session) Offset(index int) *types.PatchOffset {
	if index < 0 || index >= len(s.offsets) {
		return nil
	}
	off := s.offsets[index]
	return &off
}

// Patches returns the candidate patches in stable order: the grid when one
// is set, the detector patches otherwise.
func (s Session) Patches() []types.Rect {
	if s.grid != nil {
		return grid.Generate(*s.grid)
	}
	return append([]types.Rect(nil), s.analysis.Patches...)
}

// EffectivePatch returns patch index with the uniform size override applied
func (s Session) EffectivePatch(index int) types.Rect {
	return grid.EffectivePatch(s.Patches(), index, s.render.UseUniformSize, s.render.MasterSize)
}

// EffectivePatches returns every patch with the uniform size override applied
func (s Session) EffectivePatches() []types.Rect {
	patches := s.Patches()
	out := make([]types.Rect, len(patches))
	for i := range patches {
		out[i] = grid.EffectivePatch(patches, i, s.render.UseUniformSize, s.render.MasterSize)
	}
	return out
}

func cloneAnalysis(a types.AnalysisResult) types.AnalysisResult {
	a.Patches = append([]types.Rect(nil), a.Patches...)
	return a
}
