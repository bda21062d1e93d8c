package pipeline

import (
	"fmt"
	"strings"
)

// Per-insertion caps on prompt material, independent of the chunker's
// windows. They bound the prompt regardless of document size.
const (
	maxPromptFullText = 10000
	maxPromptSummary  = 2000
	maxPromptSection  = 6000
	maxPromptItems    = 40
)

// expandTemplate substitutes the technology placeholder into a
// configured template.
func expandTemplate(tmpl, technology string) string {
	return strings.ReplaceAll(tmpl, "{technology}", technology)
}

// promptContext is the material accumulated while a run progresses:
// the immutable document context plus each finished stage's output.
type promptContext struct {
	technology   string
	fullText     string
	summary      string
	requirements []string
	criteria     []string

	// prior stage outputs, in stage order
	sections []promptSection
}

type promptSection struct {
	title string
	body  string
}

func (pc *promptContext) addSection(title, body string) {
	pc.sections = append(pc.sections, promptSection{title: title, body: body})
}

// build assembles the full prompt for one stage: expanded template,
// document context, then every prior stage output. Every insertion is
// individually length-capped.
func (pc *promptContext) build(tmpl string) string {
	var sb strings.Builder
	sb.WriteString(expandTemplate(tmpl, pc.technology))
	sb.WriteString("\n\n**Chosen Primary Technology:** ")
	sb.WriteString(pc.technology)
	sb.WriteString("\n\n**RFP Details:**\n")

	if s := strings.TrimSpace(pc.summary); s != "" {
		sb.WriteString("\nRFP Summary:\n")
		sb.WriteString(truncate(s, maxPromptSummary))
		sb.WriteString("\n")
	}
	writeList(&sb, "Key Client Requirements", pc.requirements)
	writeList(&sb, "Evaluation Criteria", pc.criteria)
	if t := strings.TrimSpace(pc.fullText); t != "" {
		sb.WriteString("\nRFP Full Text (may be truncated):\n")
		sb.WriteString(truncate(t, maxPromptFullText))
		sb.WriteString("\n")
	}

	for _, sec := range pc.sections {
		sb.WriteString(fmt.Sprintf("\n**%s (already written):**\n", sec.title))
		sb.WriteString(truncate(sec.body, maxPromptSection))
		sb.WriteString("\n")
	}
	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	if len(items) > maxPromptItems {
		items = items[:maxPromptItems]
	}
	sb.WriteString("\n" + title + ":\n")
	for _, item := range items {
		sb.WriteString("- ")
		sb.WriteString(truncate(strings.TrimSpace(item), 500))
		sb.WriteString("\n")
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... [truncated]"
}

// Built-in review prompt; the review stage is upstream of the
// configurable chain and has no external override.
const reviewPrompt = `Given the following Request for Proposal (RFP) text, analyze it and extract the requested information. Focus on the main goals, the critical requirements, and how proposals will be evaluated.

Respond as a JSON object with fields "summary" (a concise summary), "requirements" (the key requirements, one per line) and "criteria" (the evaluation criteria, one per line).

RFP Text:
---
%s
---`
