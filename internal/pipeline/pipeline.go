// Package pipeline drives log lines through classification, deduplication
// and delivery.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tinytelemetry/sshnotify/internal/classify"
	"github.com/tinytelemetry/sshnotify/internal/logsource"
	"github.com/tinytelemetry/sshnotify/internal/model"
)

// ErrSourceClosed is returned by Run when the line source ends without an
// error while the driver was not asked to stop.
var ErrSourceClosed = errors.New("pipeline: line source closed")

// Classifier maps a line to at most one event.
type Classifier interface {
	Classify(line string) (model.Event, bool)
}

// Guard decides whether an event was already notified.
type Guard interface {
	ShouldNotify(event model.Event) bool
	Len() int
}

// Notifier delivers one event.
type Notifier interface {
	Deliver(ctx context.Context, event model.Event) model.DeliveryOutcome
}

// Driver pulls lines one at a time and runs each through the full chain
// before reading the next.
type Driver struct {
	source     logsource.LogSource
	classifier Classifier
	guard      Guard
	notifier   Notifier
	logger     *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once

	linesRead  atomic.Int64
	candidates atomic.Int64
	events     atomic.Int64
	suppressed atomic.Int64
	delivered  atomic.Int64
	failed     atomic.Int64
}

// New creates a Driver. A nil logger uses slog.Default().
func New(src logsource.LogSource, cls Classifier, guard Guard, n Notifier, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		source:     src,
		classifier: cls,
		guard:      guard,
		notifier:   n,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}
}

// Run processes lines until ctx is done, Stop is called, or the source ends.
// It returns nil for the first two; a source failure is returned wrapped,
// and a source that simply closes yields ErrSourceClosed.
func (d *Driver) Run(ctx context.Context) error {
	defer d.source.Stop()

	lines := d.source.Lines()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.stopCh:
			return nil
		case env, ok := <-lines:
			if !ok {
				if d.stopping(ctx) {
					return nil
				}
				if err := d.source.Err(); err != nil {
					return fmt.Errorf("pipeline: %s source: %w", d.source.Name(), err)
				}
				return ErrSourceClosed
			}
			d.handle(ctx, env.Line)
		}
	}
}

// handle takes one line through the chain. Delivery failures are logged by
// the notifier and never stop the loop.
func (d *Driver) handle(ctx context.Context, line string) {
	d.linesRead.Add(1)
	if !strings.Contains(line, classify.Marker) {
		return
	}
	d.candidates.Add(1)

	event, ok := d.classifier.Classify(line)
	if !ok {
		return
	}
	d.events.Add(1)

	// The key is recorded before delivery, so a failed push is not retried
	// when the same event shows up again.
	if !d.guard.ShouldNotify(event) {
		d.suppressed.Add(1)
		d.logger.Debug("duplicate event suppressed",
			"category", event.Category.String(), "user", event.User, "source_ip", event.SourceIP)
		return
	}

	if d.notifier.Deliver(ctx, event).OK() {
		d.delivered.Add(1)
	} else {
		d.failed.Add(1)
	}
}

func (d *Driver) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-d.stopCh:
		return true
	default:
		return false
	}
}

// Stop ends Run. It is safe to call more than once and from any goroutine.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// Stats returns a snapshot of the driver's counters.
func (d *Driver) Stats() model.PipelineStats {
	return model.PipelineStats{
		LinesRead:  d.linesRead.Load(),
		Candidates: d.candidates.Load(),
		Events:     d.events.Load(),
		Suppressed: d.suppressed.Load(),
		Delivered:  d.delivered.Load(),
		Failed:     d.failed.Load(),
		SeenKeys:   d.guard.Len(),
	}
}

// SourceName reports which input the driver reads from.
func (d *Driver) SourceName() string { return d.source.Name() }
