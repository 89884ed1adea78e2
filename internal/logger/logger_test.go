package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew(t *testing.T) {
	l := New("debug", "json")
	if l.GetLevel() != logrus.DebugLevel {
		t.Errorf("Expected debug level, got %v", l.GetLevel())
	}
	if _, ok := l.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("Expected JSON formatter, got %T", l.Formatter)
	}

	l = New("warning", "text")
	if l.GetLevel() != logrus.WarnLevel {
		t.Errorf("Expected warn level, got %v", l.GetLevel())
	}
	if _, ok := l.Formatter.(*logrus.TextFormatter); !ok {
		t.Errorf("Expected text formatter, got %T", l.Formatter)
	}
}

func TestNewFallsBackToEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	if l := New("", "text"); l.GetLevel() != logrus.ErrorLevel {
		t.Errorf("Expected error level from LOG_LEVEL, got %v", l.GetLevel())
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("Expected a logger for nil")
	}
	l := New("info", "text")
	if OrDiscard(l) != logrus.FieldLogger(l) {
		t.Error("Expected the given logger back")
	}
	if Default() != Default() {
		t.Error("Expected a single default logger")
	}
}
