package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestBuildWritesComponent(t *testing.T) {
	var buf bytes.Buffer
	log := Build(Config{Level: "info"}, &buf)
	l := Component(log, "registry")
	l.Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal log line: %v (%q)", err, buf.String())
	}
	if line["component"] != "registry" {
		t.Fatalf("component=%v want registry", line["component"])
	}
	if line["msg"] != "hello" {
		t.Fatalf("msg=%v want hello", line["msg"])
	}
}

func TestBuildFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := Build(Config{Level: "error"}, &buf)
	log.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}
