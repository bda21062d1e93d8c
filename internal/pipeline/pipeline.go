// Package pipeline chains the dependent generation stages that turn a
// reviewed RFP into proposal content. Four ordered stages each consume
// the outputs of the stages before them; the diagram stage is gated by
// the mermaid validator; a keyword trigger optionally adds one
// independent supplementary review.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"proposalnerd/internal/config"
	"proposalnerd/internal/document"
	"proposalnerd/internal/faults"
	"proposalnerd/internal/logging"
	"proposalnerd/internal/mermaid"
	"proposalnerd/internal/oracle"
)

// Stage names, used for error attribution.
const (
	StageUnderstanding         = "Understanding"
	StageOverview              = "Overview"
	StageArchitectureNarrative = "ArchitectureNarrative"
	StageArchitectureDiagram   = "ArchitectureDiagram"
	StageReview                = "Review"
	StageSupplementary         = "SupplementaryReview"
)

// stageSpec binds a stage to its prompt template key, the response field
// it expects, and the section title under which its output feeds later
// prompts.
type stageSpec struct {
	name      string
	promptKey string
	field     string
	section   string
}

// stages is the ordered core chain. Order matters: each stage's prompt
// embeds every earlier output.
var stages = []stageSpec{
	{StageUnderstanding, "understanding", "understanding", "Understanding of Requirements"},
	{StageOverview, "solution_overview", "overview", "Solution Overview"},
	{StageArchitectureNarrative, "architecture_text", "architecture_text", "Architecture Description"},
	{StageArchitectureDiagram, "architecture_diagram", "architecture_diagram", "Architecture Diagram"},
}

// Review is the supplementary product review added by the trigger.
type Review struct {
	Product string
	Title   string
	Content string
}

// Result aggregates everything one successful run produced.
type Result struct {
	RunID               string
	Technology          string
	Understanding       string
	Overview            string
	ArchitectureText    string
	ArchitectureDiagram string

	// DiagramWarning carries a non-fatal diagnostic from the validation
	// gate; empty when the diagram validated cleanly.
	DiagramWarning string

	// Supplementary is nil unless the technology matched the trigger.
	Supplementary *Review
}

// DiagramGate validates a diagram script. Satisfied by *mermaid.Gate.
type DiagramGate interface {
	Validate(ctx context.Context, script string) mermaid.Verdict
}

// Pipeline runs the generation chain. Construction validates all
// configuration; a constructed pipeline carries no mutable state between
// runs, so distinct runs may execute concurrently.
type Pipeline struct {
	prompts map[string]string
	oracle  oracle.Client
	gate    DiagramGate
	trigger *Trigger
}

// New builds a pipeline from validated configuration. The keyword
// trigger is mandatory; prompt overrides are optional per stage and fall
// back to the built-in templates. A nil gate gets the default mermaid
// gate, which probes for the renderer at construction.
func New(cfg *config.Config, client oracle.Client, gate DiagramGate) (*Pipeline, error) {
	if cfg == nil {
		return nil, faults.NewConfigError("config", "configuration is required", nil)
	}
	if client == nil {
		return nil, faults.NewConfigError("oracle", "generation client is required", nil)
	}

	trigger, err := NewTrigger(cfg.Keywords)
	if err != nil {
		return nil, err
	}

	if gate == nil {
		gate = mermaid.NewGate()
	}
	return &Pipeline{
		prompts: cfg.Prompts,
		oracle:  client,
		gate:    gate,
		trigger: trigger,
	}, nil
}

// Run executes the four core stages in order, threading each output
// into the next prompt, and runs the supplementary review concurrently
// when the technology matches the trigger. It returns a RunError tagged
// with the failing stage, or the aggregated result.
func (p *Pipeline) Run(ctx context.Context, doc *document.Document, technology string) (*Result, error) {
	if !doc.HasContext() {
		return nil, faults.NewIngestError(doc.FileName, "document has no usable text, summary or requirements", nil)
	}
	if strings.TrimSpace(technology) == "" {
		return nil, errors.New("a target technology must be specified")
	}
	if len(doc.Chunks) == 0 && strings.TrimSpace(doc.FullText) != "" {
		doc.Chunks = document.Chunk(doc.FullText, document.DefaultChunkSize, document.DefaultOverlap)
	}

	runID := uuid.NewString()
	logging.Pipeline("run %s: starting for %q (technology %q)", runID, doc.FileName, technology)

	res := &Result{RunID: runID, Technology: technology}

	g, gctx := errgroup.WithContext(ctx)

	// The supplementary review depends only on the document, not on the
	// core chain, so it runs alongside it. It degrades instead of
	// failing, so it can never cancel the group.
	if p.trigger.Matches(technology) {
		g.Go(func() error {
			res.Supplementary = p.augment(gctx, technology, doc.Requirements, doc.Summary)
			return nil
		})
	} else {
		logging.Pipeline("run %s: no supplementary review triggered for %q", runID, technology)
	}

	g.Go(func() error {
		return p.runCoreChain(gctx, doc, technology, res)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	logging.Pipeline("run %s: complete", runID)
	return res, nil
}

// runCoreChain walks the ordered stage table, one oracle call per stage,
// no retries. The first failure aborts the chain.
func (p *Pipeline) runCoreChain(ctx context.Context, doc *document.Document, technology string, res *Result) error {
	pc := &promptContext{
		technology:   technology,
		fullText:     doc.FullText,
		summary:      doc.Summary,
		requirements: doc.Requirements,
		criteria:     doc.Criteria,
	}

	for _, spec := range stages {
		prompt := pc.build(p.template(spec.promptKey))
		logging.PipelineDebug("stage %s: prompt %d chars", spec.name, len(prompt))

		out, err := p.oracle.Generate(ctx, prompt, []string{spec.field})
		if err != nil {
			gen := faults.NewGenerationError(spec.name, "oracle call failed", err)
			return faults.NewRunError(spec.name, gen)
		}
		content := out[spec.field]
		if strings.TrimSpace(content) == "" {
			gen := faults.NewGenerationError(spec.name, "oracle returned no content for field "+spec.field, nil)
			return faults.NewRunError(spec.name, gen)
		}

		if spec.name == StageArchitectureDiagram {
			// The prompt asks for a fenced script; keep only the script
			// itself so the renderer can fence it exactly once.
			content = mermaid.Unwrap(content)
			verdict := p.gate.Validate(ctx, content)
			switch verdict.Kind {
			case mermaid.Rejected:
				return faults.NewRunError(spec.name, faults.NewValidationError(spec.name, verdict.Message))
			case mermaid.AcceptedWithWarning:
				res.DiagramWarning = verdict.Message
				logging.PipelineWarn("stage %s: %s", spec.name, verdict.Message)
			}
		}

		p.record(res, spec.field, content)
		pc.addSection(spec.section, content)
		logging.Pipeline("stage %s: done (%d chars)", spec.name, len(content))
	}
	return nil
}

func (p *Pipeline) record(res *Result, field, content string) {
	switch field {
	case "understanding":
		res.Understanding = content
	case "overview":
		res.Overview = content
	case "architecture_text":
		res.ArchitectureText = content
	case "architecture_diagram":
		res.ArchitectureDiagram = content
	}
}

// template returns the configured template for a stage key, falling back
// to the built-in default when the override is absent or blank.
func (p *Pipeline) template(key string) string {
	if t := strings.TrimSpace(p.prompts[key]); t != "" {
		return p.prompts[key]
	}
	return config.DefaultPrompt(key)
}

// Trigger decides whether the supplementary review runs, by
// case-insensitive substring containment of any keyword in the
// technology name. Immutable after construction.
type Trigger struct {
	keywords []string
}

// NewTrigger builds a trigger from a non-empty lowercase keyword set.
func NewTrigger(keywords []string) (*Trigger, error) {
	if len(keywords) == 0 {
		return nil, faults.NewConfigError("keywords.json", "trigger keyword set is empty", nil)
	}
	kws := make([]string, len(keywords))
	for i, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			return nil, faults.NewConfigError("keywords.json", "trigger keyword set contains an empty entry", nil)
		}
		kws[i] = k
	}
	return &Trigger{keywords: kws}, nil
}

// Matches reports whether any keyword occurs in the technology name.
func (t *Trigger) Matches(technology string) bool {
	name := strings.ToLower(technology)
	for _, kw := range t.keywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// augment produces the supplementary review with a single oracle call.
// Unlike the core stages it degrades on failure: the error is embedded
// in a visible placeholder block and logged, never propagated.
func (p *Pipeline) augment(ctx context.Context, product string, requirements []string, summary string) *Review {
	pc := &promptContext{
		technology:   product,
		summary:      summary,
		requirements: requirements,
	}
	prompt := pc.build(p.template("oem_review"))

	out, err := p.oracle.Generate(ctx, prompt, []string{"title", "content"})
	if err != nil {
		logging.PipelineWarn("stage %s: degraded to placeholder: %v", StageSupplementary, err)
		return &Review{
			Product: product,
			Title:   fmt.Sprintf("Overview: %s", product),
			Content: fmt.Sprintf("A supplementary review for %s could not be generated: %v", product, err),
		}
	}

	title := strings.TrimSpace(out["title"])
	if title == "" || !strings.Contains(title, product) {
		title = fmt.Sprintf("Overview: %s", product)
	}
	return &Review{Product: product, Title: title, Content: out["content"]}
}
