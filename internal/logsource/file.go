package logsource

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/tinytelemetry/sshnotify/internal/model"
)

const (
	// DefaultPollInterval is the longest the file source sleeps between
	// checks when no change notification arrives.
	DefaultPollInterval = time.Second

	minPollInterval = 50 * time.Millisecond
)

// FileConfig holds parameters for following a file.
type FileConfig struct {
	Path         string
	FromStart    bool // replay content already in the file
	PollInterval time.Duration
	BufferSize   int
	Logger       *slog.Logger
}

// FileSource follows a growing file and emits each appended line.
//
// Changes are picked up from fsnotify events on the file's directory. A
// poll timer backs that up: it starts short after new data and backs off
// towards PollInterval while the file is idle. Truncation restarts from
// the beginning; when the path is replaced by a new file, the old one is
// drained and the new one is read from its start.
type FileSource struct {
	path   string
	logger *slog.Logger
	ch     chan model.IngestEnvelope
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error

	// Owned by the run goroutine.
	file    *os.File
	reader  *bufio.Reader
	offset  int64
	partial []byte
	skip    bool // discard up to the first newline
	watcher *fsnotify.Watcher
	backoff *backoff.ExponentialBackOff
}

// NewFileSource opens conf.Path and starts following it. Without FromStart
// only lines appended after this call are emitted; a line still being
// written at that point is skipped up to its newline.
func NewFileSource(ctx context.Context, conf FileConfig) (*FileSource, error) {
	path, err := filepath.Abs(conf.Path)
	if err != nil {
		return nil, fmt.Errorf("logsource: resolve %s: %w", conf.Path, err)
	}
	logger := conf.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bufferSize := conf.BufferSize
	if bufferSize <= 0 {
		bufferSize = DefaultReaderBuffer
	}
	poll := conf.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("logsource: open %s: %w", path, err)
	}
	var offset int64
	var skip bool
	if !conf.FromStart {
		offset, err = f.Seek(0, io.SeekEnd)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("logsource: seek %s: %w", path, err)
		}
		// Starting inside a line: its head is not ours to emit.
		if offset > 0 {
			last := make([]byte, 1)
			if _, err := f.ReadAt(last, offset-1); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("logsource: read %s: %w", path, err)
			}
			skip = last[0] != '\n'
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("logsource: fsnotify unavailable, polling only", "path", path, "error", err)
		watcher = nil
	} else if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Warn("logsource: cannot watch directory, polling only", "path", path, "error", err)
		_ = watcher.Close()
		watcher = nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = min(minPollInterval, poll)
	b.MaxInterval = poll
	b.MaxElapsedTime = 0
	b.Reset()

	ctx, cancel := context.WithCancel(ctx)
	s := &FileSource{
		path:    path,
		logger:  logger,
		ch:      make(chan model.IngestEnvelope, bufferSize),
		cancel:  cancel,
		done:    make(chan struct{}),
		file:    f,
		reader:  bufio.NewReader(f),
		offset:  offset,
		skip:    skip,
		watcher: watcher,
		backoff: b,
	}
	go s.run(ctx)
	return s, nil
}

func (s *FileSource) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)
	defer func() { _ = s.file.Close() }()
	if s.watcher != nil {
		defer s.watcher.Close()
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		n, err := s.drain(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.setErr(err)
			}
			return
		}
		if n > 0 {
			s.backoff.Reset()
		}

		switched, err := s.checkFile(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.setErr(err)
			}
			return
		}
		if switched {
			continue
		}

		timer.Reset(s.backoff.NextBackOff())
		if !s.wait(ctx, timer) {
			return
		}
	}
}

// wait blocks until the followed path changes, the poll timer fires, or ctx
// is done. It returns false only for ctx.
func (s *FileSource) wait(ctx context.Context, timer *time.Timer) bool {
	var events <-chan fsnotify.Event
	var errs <-chan error
	if s.watcher != nil {
		events = s.watcher.Events
		errs = s.watcher.Errors
	}
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) == s.path {
				return true
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Warn("logsource: watcher error", "path", s.path, "error", err)
		}
	}
}

// drain reads every complete line currently available. A trailing fragment
// without a newline is held until the rest of it is written.
func (s *FileSource) drain(ctx context.Context) (int, error) {
	n := 0
	for {
		chunk, err := s.reader.ReadBytes('\n')
		s.offset += int64(len(chunk))
		s.partial = append(s.partial, chunk...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, fmt.Errorf("logsource: read %s: %w", s.path, err)
		}

		line := bytes.TrimSuffix(bytes.TrimSuffix(s.partial, []byte("\n")), []byte("\r"))
		env := model.IngestEnvelope{Source: s.Name(), Line: string(line)}
		s.partial = s.partial[:0]
		n++
		if s.skip {
			s.skip = false
			continue
		}
		if env.Line == "" {
			continue
		}
		select {
		case s.ch <- env:
		case <-ctx.Done():
			return n, ctx.Err()
		}
	}
}

// checkFile handles truncation and replacement of the followed file. It
// returns true when reading restarted on a new position or file.
func (s *FileSource) checkFile(ctx context.Context) (bool, error) {
	cur, err := s.file.Stat()
	if err != nil {
		return false, fmt.Errorf("logsource: stat %s: %w", s.path, err)
	}
	if cur.Size() < s.offset {
		s.logger.Info("logsource: file truncated, reading from start", "path", s.path)
		if _, err := s.file.Seek(0, io.SeekStart); err != nil {
			return false, fmt.Errorf("logsource: seek %s: %w", s.path, err)
		}
		s.restart(s.file)
		return true, nil
	}

	onDisk, err := os.Stat(s.path)
	if err != nil || os.SameFile(cur, onDisk) {
		// A missing path is usually mid-rotation; keep the open descriptor.
		return false, nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		s.logger.Debug("logsource: replacement not readable yet", "path", s.path, "error", err)
		return false, nil
	}
	// Pick up whatever the writer appended to the old file since the last drain.
	if _, err := s.drain(ctx); err != nil {
		_ = f.Close()
		return false, err
	}
	if len(s.partial) > 0 {
		s.logger.Warn("logsource: dropping unterminated line from rotated file", "path", s.path, "bytes", len(s.partial))
	}
	s.logger.Info("logsource: file replaced, following new file", "path", s.path)
	_ = s.file.Close()
	s.file = f
	s.restart(f)
	return true, nil
}

func (s *FileSource) restart(f *os.File) {
	s.offset = 0
	s.skip = false
	s.partial = s.partial[:0]
	s.reader.Reset(f)
}

func (s *FileSource) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *FileSource) Lines() <-chan model.IngestEnvelope { return s.ch }
func (s *FileSource) Name() string                       { return "file" }

// Path returns the absolute path being followed.
func (s *FileSource) Path() string { return s.path }

// Stop ends following and waits for the file to be released.
func (s *FileSource) Stop() {
	s.cancel()
	<-s.done
}

func (s *FileSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
