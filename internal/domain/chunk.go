package domain

import "time"

// Chunk is a bounded, overlapping segment of a normalized document.
type Chunk struct {
	ChunkID        string  `json:"chunk_id"`
	Text           string  `json:"text"`
	SourceDocument string  `json:"source_document"`
	DocType        DocType `json:"doc_type"`
	ChunkIndex     int     `json:"chunk_index"`

	// HasSelectors is a review hint for html_dom chunks. Retrieval ignores it.
	HasSelectors bool `json:"has_selectors,omitempty"`
}

// FileResult records the outcome of ingesting one file.
type FileResult struct {
	Filename string  `json:"filename"`
	DocType  DocType `json:"doc_type,omitempty"`
	Chunks   int     `json:"chunks"`
	Error    string  `json:"error,omitempty"`
}

// Failed reports whether the file was rejected.
func (r FileResult) Failed() bool {
	return r.Error != ""
}

// IngestReport summarizes one knowledge-base build.
type IngestReport struct {
	BuildID     string          `json:"build_id"`
	TotalFiles  int             `json:"total_files"`
	TotalChunks int             `json:"total_chunks"`
	Files       []FileResult    `json:"files_processed"`
	DocTypes    map[DocType]int `json:"doc_types"`
	StartedAt   time.Time       `json:"started_at"`
	Duration    time.Duration   `json:"duration"`
}

// NewIngestReport creates an empty report for a build.
func NewIngestReport(buildID string) *IngestReport {
	return &IngestReport{
		BuildID:   buildID,
		Files:     []FileResult{},
		DocTypes:  make(map[DocType]int),
		StartedAt: time.Now(),
	}
}

// Record appends a file outcome and updates the totals. Failed files do not
// count toward TotalFiles.
func (r *IngestReport) Record(res FileResult) {
	r.Files = append(r.Files, res)
	if res.Failed() {
		return
	}
	r.TotalFiles++
	r.TotalChunks += res.Chunks
	r.DocTypes[res.DocType]++
}

// Failures returns the files that could not be ingested.
func (r *IngestReport) Failures() []FileResult {
	var out []FileResult
	for _, f := range r.Files {
		if f.Failed() {
			out = append(out, f)
		}
	}
	return out
}
