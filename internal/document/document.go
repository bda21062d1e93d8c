// Package document holds the source-document model consumed by the
// proposal pipeline, plus the chunker that splits long documents into
// bounded overlapping windows for context-limited LLM consumption.
package document

import "strings"

// Document is an ingested RFP. FullText and Chunks are fixed at ingestion
// time; Summary, Requirements and Criteria are filled in by the review
// stage before the core pipeline runs.
type Document struct {
	FileName     string
	FullText     string
	Chunks       []string
	Summary      string
	Requirements []string
	Criteria     []string
}

// HasContext reports whether the document carries anything the pipeline
// can build prompts from.
func (d *Document) HasContext() bool {
	if d == nil {
		return false
	}
	return strings.TrimSpace(d.FullText) != "" ||
		strings.TrimSpace(d.Summary) != "" ||
		len(d.Requirements) > 0
}
