package compositor

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"github.com/alonelily/FGO-Sprite/pkg/coords"
	"github.com/alonelily/FGO-Sprite/pkg/types"
)

// Placement holds the raw pixel geometry of one patch overlay
type Placement struct {
	// Source is the patch region sampled from the sheet
	Source coords.RawRect
	// Dest is where the resampled patch is drawn
	Dest coords.RawRect
	// Mask is the original target rectangle. It is cleared before a final
	// draw and is not derived from Dest: with scale != 1 or non-zero
	// offsets the cleared and drawn areas differ.
	Mask coords.RawRect
}

// Mode selects between interactive preview and final export drawing
type Mode struct {
	Final bool
	Mask  bool
	Alpha float64
}

// PreviewMode returns a mode that draws with the given opacity and never masks
func PreviewMode(alpha float64) Mode {
	return Mode{Alpha: alpha}
}

// FinalMode returns a fully opaque mode, optionally masking the target first
func FinalMode(mask bool) Mode {
	return Mode{Final: true, Mask: mask, Alpha: 1}
}

// Plan computes where a patch is sampled from and drawn to.
//
// The patch keeps its own size scaled by the calibration, centered on the
// target rectangle, then shifted by the calibration offset and the optional
// per-patch offset.
func Plan(imageWidth float64, patch, target types.Rect, cal types.Calibration, offset *types.PatchOffset) Placement {
	src := coords.RectToRaw(patch, imageWidth)
	dst := coords.RectToRaw(target, imageWidth)

	cx, cy := dst.Center()
	w := src.W * cal.Scale
	h := src.H * cal.Scale

	x := cx - w/2 + coords.ToRaw(cal.OffsetX, imageWidth)
	y := cy - h/2 + coords.ToRaw(cal.OffsetY, imageWidth)
	if offset != nil {
		dx, dy := coords.OffsetToRaw(*offset, imageWidth)
		x += dx
		y += dy
	}

	return Placement{
		Source: src,
		Dest:   coords.RawRect{X: x, Y: y, W: w, H: h},
		Mask:   dst,
	}
}

// ClearMask sets the placement's mask rectangle to full transparency
func ClearMask(dst draw.Image, p Placement) {
	r := p.Mask.Rectangle().Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(dst, r, image.Transparent, image.Point{}, draw.Src)
}

// Draw overlays the patch described by p onto dst. Degenerate geometry is a
// no-op and reports false.
func Draw(dst draw.Image, src image.Image, p Placement, m Mode) bool {
	if m.Final && m.Mask {
		ClearMask(dst, p)
	}

	full := p.Source.Rectangle()
	srcRect := full.Intersect(src.Bounds())
	dstRect := p.Dest.Rectangle()
	if srcRect.Empty() || dstRect.Empty() {
		return false
	}

	patch := samplePatch(src, full, srcRect)
	if patch.Bounds().Dx() != dstRect.Dx() || patch.Bounds().Dy() != dstRect.Dy() {
		patch = imaging.Resize(patch, dstRect.Dx(), dstRect.Dy(), imaging.Lanczos)
	}

	alpha := 1.0
	if !m.Final {
		alpha = clamp(m.Alpha, 0, 1)
	}
	if alpha >= 1 {
		draw.Draw(dst, dstRect, patch, image.Point{}, draw.Over)
		return true
	}

	mask := image.NewUniform(color.Alpha{A: uint8(math.Round(alpha * 255))})
	draw.DrawMask(dst, dstRect, patch, image.Point{}, mask, image.Point{}, draw.Over)
	return true
}

// samplePatch crops full from src at native resolution. Pixels of full that
// lie outside the sheet stay transparent so they leave dst untouched.
func samplePatch(src image.Image, full, clipped image.Rectangle) *image.NRGBA {
	if clipped == full {
		return imaging.Crop(src, full)
	}
	patch := image.NewNRGBA(image.Rect(0, 0, full.Dx(), full.Dy()))
	draw.Draw(patch, clipped.Sub(full.Min), src, clipped.Min, draw.Src)
	return patch
}

// Render draws the patch onto a copy of the base image
func Render(base image.Image, p Placement, m Mode) *image.NRGBA {
	canvas := imaging.Clone(base)
	Draw(canvas, base, p, m)
	return canvas
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
