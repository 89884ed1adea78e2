package batch

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/alonelily/FGO-Sprite/pkg/aligner"
	"github.com/alonelily/FGO-Sprite/pkg/types"
)

// EventType represents the stage of a batch alignment
type EventType string

const (
	// PatchStarted when a patch becomes the active one
	PatchStarted EventType = "patch_started"
	// PatchAligned when a patch offset has been stored
	PatchAligned EventType = "patch_aligned"
	// BatchCompleted when every patch has been processed
	BatchCompleted EventType = "batch_completed"
	// BatchAborted when the run was cancelled
	BatchAborted EventType = "batch_aborted"
)

// Event describes progress of a batch alignment
type Event struct {
	Type    EventType
	RunID   string
	Index   int
	Total   int
	Offset  types.PatchOffset
	Result  aligner.Result
	Elapsed time.Duration
	Err     error
}

// Observer receives batch events
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(ctx context.Context, event Event)

// OnEvent calls f
func (f ObserverFunc) OnEvent(ctx context.Context, event Event) {
	f(ctx, event)
}

// LoggingObserver logs batch events
type LoggingObserver struct {
	log logrus.FieldLogger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(log logrus.FieldLogger) Observer {
	return &LoggingObserver{log: log}
}

// OnEvent handles batch events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event Event) {
	fields := logrus.Fields{
		"event_type": event.Type,
		"run_id":     event.RunID,
		"index":      event.Index,
		"total":      event.Total,
	}

	switch event.Type {
	case PatchStarted:
		o.log.WithFields(fields).Debug("aligning patch")
	case PatchAligned:
		fields["dx"] = event.Offset.Dx
		fields["dy"] = event.Offset.Dy
		fields["score"] = event.Result.Score
		if event.Result.Reason != nil {
			fields["reason"] = event.Result.Reason.Error()
			o.log.WithFields(fields).Warn("patch kept zero offset")
			return
		}
		o.log.WithFields(fields).Info("patch aligned")
	case BatchCompleted:
		fields["elapsed"] = event.Elapsed
		o.log.WithFields(fields).Info("batch alignment completed")
	case BatchAborted:
		fields["elapsed"] = event.Elapsed
		o.log.WithFields(fields).WithError(event.Err).Warn("batch alignment aborted")
	}
}
