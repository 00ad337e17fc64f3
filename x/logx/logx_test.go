package logx

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":       zerolog.InfoLevel,
		"debug":  zerolog.DebugLevel,
		" WARN ": zerolog.WarnLevel,
		"bogus":  zerolog.InfoLevel,
		"trace":  zerolog.TraceLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.log")
	l, c := New(Options{Level: "debug", Format: "json", File: path})
	l.Debug().Msg("hello")
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if l.GetLevel() != zerolog.DebugLevel {
		t.Fatalf("level = %v", l.GetLevel())
	}
}
