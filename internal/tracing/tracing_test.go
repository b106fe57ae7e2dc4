package tracing

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitWritesSpansToFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "trace.json")

	shutdown, err := Init("automaton-test", "0.0.1", out)
	if err != nil {
		t.Fatalf("Init() error: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "automaton.Spawn")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "automaton.Spawn") {
		t.Errorf("trace output does not contain the span: %s", data)
	}
}
