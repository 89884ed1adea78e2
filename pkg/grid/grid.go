package grid

import (
	"github.com/alonelily/FGO-Sprite/pkg/types"
)

// Generate derives the patch rectangles described by a grid configuration.
//
// Patches are returned in row-major order: index i lives at row i/cols and
// column i%cols. Per-patch offsets are stored by this index, so the order
// must stay stable for identical configurations.
func Generate(cfg types.GridConfig) []types.Rect {
	n := cfg.Count()
	if n == 0 {
		return nil
	}

	patches := make([]types.Rect, 0, n)
	for r := 0; r < cfg.Rows; r++ {
		for c := 0; c < cfg.Cols; c++ {
			cx := cfg.OriginX + float64(c)*cfg.SpacingX
			cy := cfg.OriginY + float64(r)*cfg.SpacingY
			patches = append(patches, types.Rect{
				X: cx - cfg.PatchW/2,
				Y: cy - cfg.PatchH/2,
				W: cfg.PatchW,
				H: cfg.PatchH,
			})
		}
	}
	return patches
}

// Cell maps a patch index to its row and column
func Cell(index, cols int) (row, col int) {
	if cols <= 0 {
		return 0, 0
	}
	return index / cols, index % cols
}

// Index maps a row and column to a patch index
func Index(row, col, cols int) int {
	return row*cols + col
}

// EffectivePatch returns the patch at index, resized to the master size when
// uniform sizing is enabled. The patch center is kept in either case.
func EffectivePatch(patches []types.Rect, index int, useUniformSize bool, masterSize types.Rect) types.Rect {
	if index < 0 || index >= len(patches) {
		return types.Rect{}
	}
	p := patches[index]
	if !useUniformSize || !masterSize.Valid() {
		return p
	}

	cx, cy := p.Center()
	return types.Rect{
		X: cx - masterSize.W/2,
		Y: cy - masterSize.H/2,
		W: masterSize.W,
		H: masterSize.H,
	}
}
