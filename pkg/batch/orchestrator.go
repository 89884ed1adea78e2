package batch

import (
	"context"
	"image"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/alonelily/FGO-Sprite/internal/logger"
	"github.com/alonelily/FGO-Sprite/pkg/aligner"
	"github.com/alonelily/FGO-Sprite/pkg/coords"
	"github.com/alonelily/FGO-Sprite/pkg/types"
)

// Job describes one batch alignment. Geometry is normalized.
type Job struct {
	// Patches in grid order; offsets are stored by this index
	Patches []types.Rect
	// Anchor is the shared search region (the main face)
	Anchor types.Rect
	// AnchorSubRect locates the template relative to each patch origin
	AnchorSubRect types.Rect
	// Scale is the global calibration scale the patches render at
	Scale float64
}

// Orchestrator runs the aligner over every patch of a job, one at a time
type Orchestrator struct {
	aligner   *aligner.Aligner
	log       logrus.FieldLogger
	observers []Observer
}

// New creates an Orchestrator
func New(al *aligner.Aligner, log logrus.FieldLogger, observers ...Observer) *Orchestrator {
	return &Orchestrator{
		aligner:   al,
		log:       logger.OrDiscard(log),
		observers: observers,
	}
}

// Subscribe adds an observer
func (o *Orchestrator) Subscribe(observer Observer) {
	o.observers = append(o.observers, observer)
}

// Run aligns every patch in order and returns the resulting offsets.
//
// prior seeds the returned slice; each processed index is replaced. An
// infeasible patch stores a zero offset and the batch continues. When the
// context is cancelled Run stops at the next yield point and returns the
// offsets computed so far together with the context error.
func (o *Orchestrator) Run(ctx context.Context, src image.Image, job Job, prior []types.PatchOffset) ([]types.PatchOffset, error) {
	runID := uuid.NewString()
	start := time.Now()
	total := len(job.Patches)

	offsets := make([]types.PatchOffset, total)
	copy(offsets, prior)

	bounds := src.Bounds()
	width := float64(bounds.Dx())
	search := coords.RectToRaw(job.Anchor, width).Rectangle().Add(bounds.Min)
	sub := coords.RectToRaw(job.AnchorSubRect, width).Rectangle()

	o.log.WithFields(logrus.Fields{
		"run_id":  runID,
		"patches": total,
		"search":  search.String(),
		"scale":   job.Scale,
	}).Info("batch alignment started")

	for i, patch := range job.Patches {
		o.notify(ctx, Event{Type: PatchStarted, RunID: runID, Index: i, Total: total})

		res, err := o.aligner.Align(ctx, src, aligner.Request{
			PatchRegion:   coords.RectToRaw(patch, width).Rectangle().Add(bounds.Min),
			SearchRegion:  search,
			AnchorSubRect: sub,
			TargetScale:   job.Scale,
		})
		if err != nil {
			o.notify(ctx, Event{
				Type:    BatchAborted,
				RunID:   runID,
				Index:   i,
				Total:   total,
				Elapsed: time.Since(start),
				Err:     err,
			})
			return offsets, err
		}

		offsets[i] = coords.OffsetFromRaw(res.Dx, res.Dy, width)
		o.notify(ctx, Event{
			Type:   PatchAligned,
			RunID:  runID,
			Index:  i,
			Total:  total,
			Offset: offsets[i],
			Result: res,
		})
	}

	o.notify(ctx, Event{Type: BatchCompleted, RunID: runID, Index: total, Total: total, Elapsed: time.Since(start)})
	return offsets, nil
}

func (o *Orchestrator) notify(ctx context.Context, event Event) {
	for _, obs := range o.observers {
		obs.OnEvent(ctx, event)
	}
}
