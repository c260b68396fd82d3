package logsource

import "github.com/tinytelemetry/sshnotify/internal/model"

// LogSource is a unified interface for log line inputs (file, stdin).
//
// Lines delivers each line without its terminator and is closed when the
// source ends. Err reports why it ended; nil means a clean end of input or
// a Stop.
type LogSource interface {
	Lines() <-chan model.IngestEnvelope
	Stop()
	Name() string
	Err() error
}
