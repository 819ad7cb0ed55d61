package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range cases {
		log, err := New(in)
		if err != nil {
			t.Fatalf("new(%q): %v", in, err)
		}
		if !log.Core().Enabled(want) {
			t.Fatalf("level %q: expected %s enabled", in, want)
		}
		if want > zapcore.DebugLevel && log.Core().Enabled(want-1) {
			t.Fatalf("level %q: expected %s disabled", in, want-1)
		}
	}
}

func TestNewService(t *testing.T) {
	log, err := NewService("info", "progress")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if log == nil {
		t.Fatal("expected logger")
	}
}
