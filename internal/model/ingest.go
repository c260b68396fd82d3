package model

// IngestEnvelope carries one raw log line with the name of the source it came from.
// It is the transport contract between line sources and the pipeline.
type IngestEnvelope struct {
	Source string
	Line   string
}
