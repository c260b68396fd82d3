package model

// PipelineStats is a point-in-time snapshot of pipeline counters.
type PipelineStats struct {
	LinesRead  int64 `json:"lines_read"`
	Candidates int64 `json:"candidates"`
	Events     int64 `json:"events"`
	Suppressed int64 `json:"suppressed"`
	Delivered  int64 `json:"delivered"`
	Failed     int64 `json:"failed"`
	SeenKeys   int   `json:"seen_keys"`
}

// StatsReader is the read contract the status API needs from the pipeline.
type StatsReader interface {
	Stats() PipelineStats
}
