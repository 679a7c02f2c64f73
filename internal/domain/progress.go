package domain

// Stage identifies the phase of work the external process reported last.
type Stage string

const (
	StageMetadata       Stage = "metadata"
	StagePreparing      Stage = "preparing"
	StageDownloading    Stage = "downloading"
	StageMerging        Stage = "merging"
	StagePostProcessing Stage = "postprocessing"
)

// EventKind classifies a progress event.
type EventKind string

const (
	// EventProgress carries incremental percent/speed/eta/title updates.
	EventProgress EventKind = "progress"
	// EventSuccess is an explicit in-stream success marker, e.g. the file
	// was already downloaded and nothing remains to do.
	EventSuccess EventKind = "success"
	// EventError is an explicit in-stream error marker. The full diagnostic
	// block keeps accumulating after this event until the process exits.
	EventError EventKind = "error"
)

// ProgressEvent is one structured update derived from a raw output line of
// the external process. Fields are sparse: a single line rarely announces
// more than a couple of them.
type ProgressEvent struct {
	Kind       EventKind `json:"kind"`
	Percent    float64   `json:"percent,omitempty"`
	HasPercent bool      `json:"-"`
	Speed      string    `json:"speed,omitempty"`
	ETA        string    `json:"eta,omitempty"`
	TotalBytes int64     `json:"total_bytes,omitempty"`
	Title      string    `json:"title,omitempty"`
	Stage      Stage     `json:"stage,omitempty"`

	// ErrorText is the error marker line with its prefix stripped. Only set
	// when Kind is EventError.
	ErrorText string `json:"error_text,omitempty"`
}
