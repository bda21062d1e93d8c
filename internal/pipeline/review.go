package pipeline

import (
	"context"
	"fmt"
	"strings"

	"proposalnerd/internal/document"
	"proposalnerd/internal/faults"
	"proposalnerd/internal/logging"
)

// Review analyzes the raw document with one oracle call and fills in its
// summary, requirements and evaluation criteria. It runs before the core
// chain; a failure here degrades quality but does not block generation,
// so the caller may treat the returned error as a warning and proceed on
// the full text alone.
func (p *Pipeline) Review(ctx context.Context, doc *document.Document) error {
	if strings.TrimSpace(doc.FullText) == "" {
		return faults.NewIngestError(doc.FileName, "cannot review a document with no text", nil)
	}

	excerpt := truncate(doc.FullText, maxPromptFullText)
	prompt := fmt.Sprintf(reviewPrompt, excerpt)

	out, err := p.oracle.Generate(ctx, prompt, []string{"summary", "requirements", "criteria"})
	if err != nil {
		logging.PipelineWarn("stage %s: %v", StageReview, err)
		return faults.NewGenerationError(StageReview, "document review failed", err)
	}

	doc.Summary = strings.TrimSpace(out["summary"])
	doc.Requirements = splitLines(out["requirements"])
	doc.Criteria = splitLines(out["criteria"])
	logging.Pipeline("stage %s: summary %d chars, %d requirements, %d criteria",
		StageReview, len(doc.Summary), len(doc.Requirements), len(doc.Criteria))
	return nil
}

// splitLines turns a newline-separated review field into a clean list,
// stripping bullet markers the model tends to add.
func splitLines(s string) []string {
	var items []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*• \t"))
		if line != "" {
			items = append(items, line)
		}
	}
	return items
}
