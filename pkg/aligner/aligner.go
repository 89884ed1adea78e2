// Package aligner finds the integer translation that best superimposes a
// feature crop of a patch onto its anchor region.
//
// The search is an exhaustive sliding window scored by the mean absolute
// RGB difference. Template pixels at or below the alpha threshold are left
// out of the score, and both buffers are sampled every Stride pixels. The
// outer loop hands control back to the caller every YieldEvery rows, which
// is also where cancellation is observed.
package aligner

import (
	"context"
	"image"
	"math"
	"runtime"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	apperrors "github.com/alonelily/FGO-Sprite/internal/errors"
	"github.com/alonelily/FGO-Sprite/internal/logger"
)

var (
	// ErrSearchTooSmall is reported when the scaled template does not fit in the search region
	ErrSearchTooSmall = apperrors.NewAlignmentInfeasible("search region smaller than scaled template")
	// ErrTransparentTemplate is reported when no sampled template pixel is above the alpha threshold
	ErrTransparentTemplate = apperrors.NewAlignmentInfeasible("template has no pixel above the alpha threshold")
	// ErrEmptyTemplate is reported when the anchor sub-rectangle has no area
	ErrEmptyTemplate = apperrors.NewAlignmentInfeasible("anchor region is empty")
)

// Yielder is called on the search cadence. A non-nil error aborts the search.
type Yielder func(ctx context.Context) error

// Gosched yields the processor and reports context cancellation
func Gosched(ctx context.Context) error {
	runtime.Gosched()
	return ctx.Err()
}

// Options configures the template search
type Options struct {
	AlphaThreshold uint8
	Stride         int
	YieldEvery     int
	Yield          Yielder
}

// DefaultOptions returns the standard search settings
func DefaultOptions() Options {
	return Options{
		AlphaThreshold: 40,
		Stride:         2,
		YieldEvery:     50,
		Yield:          Gosched,
	}
}

// Request describes one alignment. All rectangles are raw pixels.
type Request struct {
	// PatchRegion is the candidate patch in image coordinates
	PatchRegion image.Rectangle
	// SearchRegion is the window searched for the template, in image coordinates
	SearchRegion image.Rectangle
	// AnchorSubRect locates the template relative to PatchRegion.Min
	AnchorSubRect image.Rectangle
	// TargetScale is the scale the patch will be rendered at
	TargetScale float64
}

// Result is the outcome of one alignment
type Result struct {
	// Dx, Dy is how far the patch origin must move, in raw pixels
	Dx float64
	Dy float64
	// MatchX, MatchY is the best template position relative to SearchRegion.Min
	MatchX int
	MatchY int
	// Score is the mean absolute per-channel difference at the match
	Score     float64
	Evaluated int
	// Reason is set when alignment was infeasible; Dx and Dy are then zero
	Reason error
}

// Feasible reports whether a match was computed
func (r Result) Feasible() bool {
	return r.Reason == nil
}

// Aligner performs brute force template matching
type Aligner struct {
	opts Options
	log  logrus.FieldLogger
}

// New creates an Aligner. Zero option values fall back to the defaults.
func New(opts Options, log logrus.FieldLogger) *Aligner {
	def := DefaultOptions()
	if opts.Stride <= 0 {
		opts.Stride = def.Stride
	}
	if opts.YieldEvery <= 0 {
		opts.YieldEvery = def.YieldEvery
	}
	if opts.Yield == nil {
		opts.Yield = def.Yield
	}
	return &Aligner{opts: opts, log: logger.OrDiscard(log)}
}

// Options returns the effective search settings
func (a *Aligner) Options() Options {
	return a.opts
}

type sample struct {
	off     int
	r, g, b int
}

// Align searches req.SearchRegion for the scaled anchor template.
//
// Infeasible geometry never produces an error: the result carries a zero
// offset and a Reason. The returned error is non-nil only when the search
// was aborted through the context or the Yielder.
func (a *Aligner) Align(ctx context.Context, src image.Image, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	scale := req.TargetScale
	if scale <= 0 {
		scale = 1
	}

	// The template keeps the unclipped anchor size so its offsets stay
	// relative to AnchorSubRect even when the patch crosses the sheet edge.
	anchor := req.AnchorSubRect.Add(req.PatchRegion.Min)
	visible := anchor.Intersect(src.Bounds())
	if anchor.Empty() || visible.Empty() {
		return a.infeasible(req, ErrEmptyTemplate), nil
	}
	tw := int(math.Round(float64(anchor.Dx()) * scale))
	th := int(math.Round(float64(anchor.Dy()) * scale))
	if tw < 1 || th < 1 {
		return a.infeasible(req, ErrEmptyTemplate), nil
	}

	search := req.SearchRegion.Intersect(src.Bounds())
	if search.Dx() < tw || search.Dy() < th {
		return a.infeasible(req, ErrSearchTooSmall), nil
	}

	// Match at the rendered scale, not the native one.
	template := cropTemplate(src, anchor, visible)
	if template.Bounds().Dx() != tw || template.Bounds().Dy() != th {
		template = imaging.Resize(template, tw, th, imaging.Lanczos)
	}
	window := imaging.Crop(src, search)

	samples := a.sampleTemplate(template, window.Stride)
	if len(samples) == 0 {
		return a.infeasible(req, ErrTransparentTemplate), nil
	}

	maxDx := window.Bounds().Dx() - tw
	maxDy := window.Bounds().Dy() - th
	pix := window.Pix

	bestSum := math.MaxInt
	bestDx, bestDy := 0, 0
	evaluated := 0

	for dy := 0; dy <= maxDy; dy++ {
		row := dy * window.Stride
		for dx := 0; dx <= maxDx; dx++ {
			base := row + dx*4
			sum := 0
			for _, s := range samples {
				i := base + s.off
				sum += absInt(int(pix[i])-s.r) + absInt(int(pix[i+1])-s.g) + absInt(int(pix[i+2])-s.b)
				if sum >= bestSum {
					break
				}
			}
			evaluated++
			// Strict comparison keeps the first offset in raster order on ties.
			if sum < bestSum {
				bestSum = sum
				bestDx, bestDy = dx, dy
			}
		}

		if (dy+1)%a.opts.YieldEvery == 0 {
			if err := a.opts.Yield(ctx); err != nil {
				return Result{}, err
			}
		}
	}

	// Report the match against the requested window, not the clipped one.
	shift := search.Min.Sub(req.SearchRegion.Min)
	matchX := bestDx + shift.X
	matchY := bestDy + shift.Y

	result := Result{
		Dx:        float64(matchX) - float64(req.AnchorSubRect.Min.X)*scale,
		Dy:        float64(matchY) - float64(req.AnchorSubRect.Min.Y)*scale,
		MatchX:    matchX,
		MatchY:    matchY,
		Score:     float64(bestSum) / float64(3*len(samples)),
		Evaluated: evaluated,
	}

	a.log.WithFields(logrus.Fields{
		"match_x": matchX,
		"match_y": matchY,
		"dx":      result.Dx,
		"dy":      result.Dy,
		"score":   result.Score,
		"samples": len(samples),
	}).Debug("template aligned")

	return result, nil
}

// cropTemplate copies anchor out of src. Pixels of anchor outside visible
// stay transparent and are skipped by the alpha threshold.
func cropTemplate(src image.Image, anchor, visible image.Rectangle) *image.NRGBA {
	if anchor == visible {
		return imaging.Crop(src, anchor)
	}
	template := image.NewNRGBA(image.Rect(0, 0, anchor.Dx(), anchor.Dy()))
	draw.Draw(template, visible.Sub(anchor.Min), src, visible.Min, draw.Src)
	return template
}

// sampleTemplate collects the scored template pixels on the stride grid,
// with their byte offsets into a buffer of the given row stride.
func (a *Aligner) sampleTemplate(template *image.NRGBA, stride int) []sample {
	b := template.Bounds()
	var samples []sample
	for y := 0; y < b.Dy(); y += a.opts.Stride {
		for x := 0; x < b.Dx(); x += a.opts.Stride {
			i := y*template.Stride + x*4
			if template.Pix[i+3] <= a.opts.AlphaThreshold {
				continue
			}
			samples = append(samples, sample{
				off: y*stride + x*4,
				r:   int(template.Pix[i]),
				g:   int(template.Pix[i+1]),
				b:   int(template.Pix[i+2]),
			})
		}
	}
	return samples
}

func (a *Aligner) infeasible(req Request, reason error) Result {
	a.log.WithFields(logrus.Fields{
		"patch":  req.PatchRegion.String(),
		"search": req.SearchRegion.String(),
		"anchor": req.AnchorSubRect.String(),
		"scale":  req.TargetScale,
	}).WithError(reason).Warn("alignment infeasible")
	return Result{Reason: reason}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
