package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/alonelily/FGO-Sprite/pkg/aligner"
	"github.com/alonelily/FGO-Sprite/pkg/types"
)

func TestLoggingObserver(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	obs := NewLoggingObserver(log)
	ctx := context.Background()

	tests := []struct {
		event Event
		level logrus.Level
		msg   string
	}{
		{Event{Type: PatchStarted, RunID: "r", Index: 0, Total: 2}, logrus.DebugLevel, "aligning patch"},
		{Event{Type: PatchAligned, RunID: "r", Offset: types.PatchOffset{Dx: 5}}, logrus.InfoLevel, "patch aligned"},
		{Event{Type: PatchAligned, RunID: "r", Result: aligner.Result{Reason: aligner.ErrSearchTooSmall}}, logrus.WarnLevel, "patch kept zero offset"},
		{Event{Type: BatchCompleted, RunID: "r"}, logrus.InfoLevel, "batch alignment completed"},
		{Event{Type: BatchAborted, RunID: "r", Err: errors.New("stop")}, logrus.WarnLevel, "batch alignment aborted"},
	}

	for _, tt := range tests {
		hook.Reset()
		obs.OnEvent(ctx, tt.event)
		entry := hook.LastEntry()
		if entry == nil {
			t.Fatalf("Expected a log entry for %s", tt.event.Type)
		}
		if entry.Level != tt.level || entry.Message != tt.msg {
			t.Errorf("%s: got %v %q, want %v %q", tt.event.Type, entry.Level, entry.Message, tt.level, tt.msg)
		}
		if entry.Data["run_id"] != "r" {
			t.Errorf("%s: expected run id field, got %v", tt.event.Type, entry.Data)
		}
	}
}

func TestObserverFunc(t *testing.T) {
	var got EventType
	ObserverFunc(func(ctx context.Context, e Event) { got = e.Type }).OnEvent(context.Background(), Event{Type: BatchCompleted})
	if got != BatchCompleted {
		t.Errorf("Expected %s, got %s", BatchCompleted, got)
	}
}
