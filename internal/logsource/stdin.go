package logsource

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/tinytelemetry/sshnotify/internal/model"
)

const (
	// DefaultReaderBuffer is the default channel buffer size for reader lines.
	DefaultReaderBuffer = 1024

	// DefaultMaxLineSize is the default maximum size (in bytes) of a single line.
	DefaultMaxLineSize = 1024 * 1024 // 1MB
)

// ReaderConfig holds tunable parameters for a reader source.
type ReaderConfig struct {
	BufferSize  int
	MaxLineSize int
	Logger      *slog.Logger
}

// ReaderSource reads lines from an io.Reader such as stdin.
type ReaderSource struct {
	name   string
	ch     chan model.IngestEnvelope
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// NewStdinSource creates a ReaderSource over os.Stdin.
func NewStdinSource(ctx context.Context, conf ...ReaderConfig) *ReaderSource {
	return NewReaderSource(ctx, "stdin", os.Stdin, conf...)
}

// NewReaderSource creates a ReaderSource that scans r in a background goroutine.
func NewReaderSource(ctx context.Context, name string, r io.Reader, conf ...ReaderConfig) *ReaderSource {
	bufferSize := DefaultReaderBuffer
	maxLineSize := DefaultMaxLineSize
	logger := slog.Default()
	if len(conf) > 0 {
		if conf[0].BufferSize > 0 {
			bufferSize = conf[0].BufferSize
		}
		if conf[0].MaxLineSize > 0 {
			maxLineSize = conf[0].MaxLineSize
		}
		if conf[0].Logger != nil {
			logger = conf[0].Logger
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &ReaderSource{
		name:   name,
		ch:     make(chan model.IngestEnvelope, bufferSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.read(ctx, r, maxLineSize, logger)
	return s
}

func (s *ReaderSource) read(ctx context.Context, r io.Reader, maxLineSize int, logger *slog.Logger) {
	defer close(s.done)
	defer close(s.ch)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, min(64*1024, maxLineSize)), maxLineSize)

	// The scan blocks without regard to ctx, so it runs in its own goroutine
	// and hands lines over; cancellation is observed on this side.
	type scanResult struct {
		line string
		err  error
	}
	results := make(chan scanResult)
	go func() {
		defer close(results)
		for scanner.Scan() {
			select {
			case results <- scanResult{line: scanner.Text()}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				err = fmt.Errorf("line exceeded max size (%d bytes): %w", maxLineSize, err)
			}
			select {
			case results <- scanResult{err: err}:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				logger.Info("logsource: input ended", "source", s.name)
				return
			}
			if res.err != nil {
				s.setErr(fmt.Errorf("logsource: %s: %w", s.name, res.err))
				return
			}
			if res.line == "" {
				continue
			}
			select {
			case s.ch <- model.IngestEnvelope{Source: s.name, Line: res.line}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *ReaderSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *ReaderSource) Lines() <-chan model.IngestEnvelope { return s.ch }
func (s *ReaderSource) Name() string                       { return s.name }

// Stop cancels reading and waits for the lines channel to close.
func (s *ReaderSource) Stop() {
	s.cancel()
	<-s.done
}

func (s *ReaderSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
