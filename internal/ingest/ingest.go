// Package ingest loads RFP documents from disk into the document model.
// Markdown files are taken verbatim; PDFs go through content-stream text
// extraction. Anything else is rejected up front.
package ingest

import (
	"os"
	"path/filepath"
	"strings"

	"proposalnerd/internal/document"
	"proposalnerd/internal/faults"
	"proposalnerd/internal/logging"
)

// Load reads the file at path and returns a Document with FullText and
// Chunks populated. Summary, requirements and criteria stay empty; the
// review stage fills them later.
func Load(path string) (*document.Document, error) {
	var text string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		text, err = loadMarkdown(path)
	case ".pdf":
		text, err = extractPDF(path)
	default:
		return nil, faults.NewIngestError(path, "unsupported file type, expected .md, .markdown or .pdf", nil)
	}
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		return nil, faults.NewIngestError(path, "document contains no extractable text", nil)
	}

	doc := &document.Document{
		FileName: filepath.Base(path),
		FullText: text,
		Chunks:   document.Chunk(text, document.DefaultChunkSize, document.DefaultOverlap),
	}
	logging.Ingest("loaded %s: %d chars, %d chunks", doc.FileName, len(text), len(doc.Chunks))
	return doc, nil
}

func loadMarkdown(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", faults.NewIngestError(path, "read markdown", err)
	}
	return string(data), nil
}
