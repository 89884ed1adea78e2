// Package coords converts between the normalized [0,1000] geometry used by
// sheets and raw pixel geometry.
//
// Every field is scaled by the image WIDTH, including Y and H. A normalized
// square is therefore not visually square on a non-square image. Calibration
// values saved by users assume this convention, so it must not be changed
// to use the image height for vertical values.
package coords

import (
	"image"
	"math"

	"github.com/alonelily/FGO-Sprite/pkg/types"
)

// RawRect is a rectangle in raw pixel units. Fields may be fractional.
type RawRect struct {
	X float64
	Y float64
	W float64
	H float64
}

// ToRaw converts a normalized value to pixels
func ToRaw(v, imageWidth float64) float64 {
	return v * imageWidth / types.Scale
}

// ToNormalized converts a pixel value to normalized units
func ToNormalized(v, imageWidth float64) float64 {
	if imageWidth == 0 {
		return 0
	}
	return v * types.Scale / imageWidth
}

// RectToRaw converts a normalized rectangle to pixels
func RectToRaw(r types.Rect, imageWidth float64) RawRect {
	return RawRect{
		X: ToRaw(r.X, imageWidth),
		Y: ToRaw(r.Y, imageWidth),
		W: ToRaw(r.W, imageWidth),
		H: ToRaw(r.H, imageWidth),
	}
}

// RectToNormalized converts a pixel rectangle to normalized units
func RectToNormalized(r RawRect, imageWidth float64) types.Rect {
	return types.Rect{
		X: ToNormalized(r.X, imageWidth),
		Y: ToNormalized(r.Y, imageWidth),
		W: ToNormalized(r.W, imageWidth),
		H: ToNormalized(r.H, imageWidth),
	}
}

// OffsetToRaw converts a per-patch offset to pixels
func OffsetToRaw(o types.PatchOffset, imageWidth float64) (float64, float64) {
	return ToRaw(o.Dx, imageWidth), ToRaw(o.Dy, imageWidth)
}

// OffsetFromRaw converts a pixel translation to a normalized per-patch offset
func OffsetFromRaw(dx, dy, imageWidth float64) types.PatchOffset {
	return types.PatchOffset{
		Dx: ToNormalized(dx, imageWidth),
		Dy: ToNormalized(dy, imageWidth),
	}
}

// Center returns the rectangle center
func (r RawRect) Center() (float64, float64) {
	return r.X + r.W/2, r.Y + r.H/2
}

// Empty reports whether the rectangle has no area
func (r RawRect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Rectangle rounds the rectangle edges to the nearest pixel
func (r RawRect) Rectangle() image.Rectangle {
	x0 := int(math.Round(r.X))
	y0 := int(math.Round(r.Y))
	x1 := int(math.Round(r.X + r.W))
	y1 := int(math.Round(r.Y + r.H))
	return image.Rect(x0, y0, x1, y1)
}

// Translate returns the rectangle moved by (dx, dy)
func (r RawRect) Translate(dx, dy float64) RawRect {
	r.X += dx
	r.Y += dy
	return r
}
