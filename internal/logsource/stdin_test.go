package logsource

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"testing/iotest"
	"time"
)

func TestReaderSourceStopClosesLines(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer func() { _ = w.Close() }()

	src := NewReaderSource(context.Background(), "pipe", r)
	src.Stop()

	select {
	case _, ok := <-src.Lines():
		if ok {
			t.Fatal("expected lines channel to be closed after Stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for lines channel to close")
	}
	if err := src.Err(); err != nil {
		t.Fatalf("Err after Stop = %v, want nil", err)
	}
}

func TestReaderSourceStopIsIdempotent(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer func() { _ = w.Close() }()

	src := NewReaderSource(context.Background(), "pipe", r)
	src.Stop()
	src.Stop()
}

func TestReaderSourceEmitsLinesThenClosesOnEOF(t *testing.T) {
	input := "first\r\n\nsecond\nthird"
	src := NewReaderSource(context.Background(), "test", strings.NewReader(input))
	defer src.Stop()

	var got []string
	for env := range src.Lines() {
		if env.Source != "test" {
			t.Errorf("source = %q, want test", env.Source)
		}
		got = append(got, env.Line)
	}

	want := []string{"first", "second", "third"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("lines = %q, want %q", got, want)
	}
	if err := src.Err(); err != nil {
		t.Fatalf("Err after EOF = %v, want nil", err)
	}
}

func TestReaderSourceReportsReadError(t *testing.T) {
	boom := errors.New("boom")
	src := NewReaderSource(context.Background(), "broken", iotest.ErrReader(boom))
	defer src.Stop()

	for range src.Lines() {
		t.Fatal("unexpected line from failing reader")
	}
	if err := src.Err(); !errors.Is(err, boom) {
		t.Fatalf("Err = %v, want wrapped boom", err)
	}
}

func TestReaderSourceLineTooLong(t *testing.T) {
	long := strings.Repeat("x", 256) + "\n"
	src := NewReaderSource(context.Background(), "long", strings.NewReader(long), ReaderConfig{MaxLineSize: 64})
	defer src.Stop()

	for range src.Lines() {
	}
	if src.Err() == nil {
		t.Fatal("expected error for oversized line")
	}
}
