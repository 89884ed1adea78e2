// Package export renders every aligned patch into its own image cropped to
// the main body and hands the encoded bytes to a Saver.
package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/image/draw"

	"github.com/alonelily/FGO-Sprite/internal/logger"
	"github.com/alonelily/FGO-Sprite/internal/utils"
	"github.com/alonelily/FGO-Sprite/pkg/compositor"
	"github.com/alonelily/FGO-Sprite/pkg/coords"
	"github.com/alonelily/FGO-Sprite/pkg/processing"
	"github.com/alonelily/FGO-Sprite/pkg/types"
)

// Options configures a Pipeline
type Options struct {
	Export types.ExportOptions
	// Delay is waited between items
	Delay time.Duration
	// Mask clears the target region before each patch is drawn
	Mask bool
}

// Job is a snapshot of everything one export run needs. Geometry is
// normalized.
type Job struct {
	MainBody    types.Rect
	Target      types.Rect
	Patches     []types.Rect
	Calibration types.Calibration
	Offsets     []types.PatchOffset
}

// offset returns the stored offset for patch i, or nil
func (j Job) offset(i int) *types.PatchOffset {
	if i < 0 || i >= len(j.Offsets) {
		return nil
	}
	off := j.Offsets[i]
	return &off
}

// Pipeline renders and saves patches sequentially
type Pipeline struct {
	opts  Options
	saver Saver
	proc  *processing.Processor
	log   logrus.FieldLogger
}

// New creates a Pipeline
func New(opts Options, saver Saver, log logrus.FieldLogger) *Pipeline {
	if opts.Export.Format == "" {
		opts.Export.Format = "png"
	}
	if opts.Export.Quality == 0 {
		opts.Export.Quality = 90
	}
	return &Pipeline{
		opts:  opts,
		saver: saver,
		proc:  processing.NewProcessor(),
		log:   logger.OrDiscard(log),
	}
}

// FileName returns the export name of patch i: <prefix>_<i+1>.<ext>
func FileName(prefix string, i int, ext string) string {
	return fmt.Sprintf("%s_%d.%s", prefix, i+1, ext)
}

// RenderPatch draws patch i over the main body crop of src
func (p *Pipeline) RenderPatch(src image.Image, job Job, i int) (*image.NRGBA, error) {
	if i < 0 || i >= len(job.Patches) {
		return nil, fmt.Errorf("patch index %d out of range", i)
	}

	bounds := src.Bounds()
	width := float64(bounds.Dx())
	body := coords.RectToRaw(job.MainBody, width).Rectangle().Intersect(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	if body.Empty() {
		return nil, fmt.Errorf("main body is outside the sheet")
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, body.Dx(), body.Dy()))
	draw.Draw(canvas, canvas.Bounds(), src, bounds.Min.Add(body.Min), draw.Src)

	// Dest and mask move into canvas space; the source stays in sheet space
	pl := compositor.Plan(width, job.Patches[i], job.Target, job.Calibration, job.offset(i))
	ox, oy := float64(body.Min.X), float64(body.Min.Y)
	pl.Source = pl.Source.Translate(float64(bounds.Min.X), float64(bounds.Min.Y))
	pl.Dest = pl.Dest.Translate(-ox, -oy)
	pl.Mask = pl.Mask.Translate(-ox, -oy)

	if !compositor.Draw(canvas, src, pl, compositor.FinalMode(p.opts.Mask)) {
		p.log.WithField("patch", i).Warn("Skipping overlay with empty geometry")
	}
	return canvas, nil
}

// Run renders, encodes and saves every patch in order and returns the saved
// names. It stops between items when ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, src image.Image, job Job) ([]string, error) {
	ext := utils.NormalizeFormat(p.opts.Export.Format)
	names := make([]string, 0, len(job.Patches))
	start := time.Now()

	for i := range job.Patches {
		if err := ctx.Err(); err != nil {
			return names, err
		}
		if i > 0 && p.opts.Delay > 0 {
			select {
			case <-ctx.Done():
				return names, ctx.Err()
			case <-time.After(p.opts.Delay):
			}
		}

		canvas, err := p.RenderPatch(src, job, i)
		if err != nil {
			return names, err
		}

		var buf bytes.Buffer
		if err := p.proc.Encode(&buf, canvas, ext, p.opts.Export.Quality, p.opts.Export.Lossless); err != nil {
			return names, fmt.Errorf("failed to encode patch %d: %w", i, err)
		}

		name := FileName(p.opts.Export.Prefix, i, ext)
		if err := p.saver.Save(ctx, name, buf.Bytes()); err != nil {
			return names, fmt.Errorf("failed to save %s: %w", name, err)
		}
		names = append(names, name)

		p.log.WithFields(logrus.Fields{
			"name": name,
			"size": utils.FormatFileSize(int64(buf.Len())),
		}).Info("Exported patch")
	}

	p.log.WithFields(logrus.Fields{
		"count":    len(names),
		"duration": time.Since(start),
	}).Info("Export finished")
	return names, nil
}
