// Package render assembles a pipeline result into a markdown proposal.
package render

import (
	"fmt"
	"strings"

	"proposalnerd/internal/mermaid"
	"proposalnerd/internal/pipeline"
)

// Meta carries document-level context for the rendered proposal.
type Meta struct {
	// SourceFile is the RFP the proposal responds to, shown in the
	// preamble when set.
	SourceFile string
}

// Markdown renders the proposal. Sections appear in pipeline order;
// empty sections are skipped rather than rendered as bare headings.
func Markdown(res *pipeline.Result, meta Meta) string {
	var out []string

	if meta.SourceFile != "" {
		out = append(out, fmt.Sprintf("**Based on RFP:** %s\n", meta.SourceFile))
	}
	out = append(out, fmt.Sprintf("**Proposed Technology Focus:** %s\n", res.Technology))
	out = append(out, "---\n")

	appendSection(&out, "Understanding of Requirements", res.Understanding)
	appendSection(&out, "Proposed Solution Overview", res.Overview)
	appendSection(&out, "Solution Architecture", res.ArchitectureText)

	// The diagram arrives unwrapped from the pipeline, but strip any
	// fences anyway so a pre-fenced script never gets double-fenced.
	if diagram := mermaid.Unwrap(res.ArchitectureDiagram); diagram != "" {
		out = append(out, "# Architecture Diagram\n")
		out = append(out, fmt.Sprintf("```mermaid\n%s\n```\n", diagram))
		if res.DiagramWarning != "" {
			out = append(out, fmt.Sprintf("*Diagram note: %s*\n", res.DiagramWarning))
		}
	}

	if sup := res.Supplementary; sup != nil && strings.TrimSpace(sup.Content) != "" {
		title := sup.Title
		if strings.TrimSpace(title) == "" {
			title = fmt.Sprintf("%s Review", sup.Product)
		}
		appendSection(&out, title, sup.Content)
	}

	return strings.Join(out, "\n")
}

func appendSection(out *[]string, title, content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	*out = append(*out, fmt.Sprintf("# %s\n", title))
	*out = append(*out, content+"\n")
}
