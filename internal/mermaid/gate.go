// Package mermaid decides whether a generated Mermaid diagram script is
// well-formed enough to ship, without a full diagram-language parser.
//
// Validation is two-tiered. Tier 1 is a structural scan with no external
// dependency: a recognized diagram-type keyword must be present and
// bracket delimiters must balance. Tier 2 renders the script through the
// mermaid CLI (mmdc) when it is installed. The external tool is
// authoritative when present, but its absence or a timeout never blocks
// the pipeline; only a tool-confirmed render failure rejects a script.
package mermaid

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"proposalnerd/internal/logging"
)

// VerdictKind is the tri-state outcome of a validation attempt.
type VerdictKind int

const (
	Accepted VerdictKind = iota
	AcceptedWithWarning
	Rejected
)

func (k VerdictKind) String() string {
	switch k {
	case Accepted:
		return "accepted"
	case AcceptedWithWarning:
		return "accepted-with-warning"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Verdict is the outcome for one diagram-generation attempt. Message is
// set for warnings and rejections.
type Verdict struct {
	Kind    VerdictKind
	Message string
}

// ToolTimeout bounds one mmdc invocation.
const ToolTimeout = 30 * time.Second

// diagramKeywords is the vocabulary of diagram-type declarations Tier 1
// accepts.
var diagramKeywords = []string{
	"graph",
	"flowchart",
	"sequenceDiagram",
	"classDiagram",
	"stateDiagram",
	"erDiagram",
	"gantt",
	"pie",
	"journey",
	"mindmap",
	"timeline",
}

// renderFunc runs the external renderer on inPath producing outPath,
// returning captured diagnostics. Injectable for tests.
type renderFunc func(ctx context.Context, tool, inPath, outPath string) (string, error)

// Gate validates diagram scripts. The renderer binary is probed once at
// construction; one re-probe is permitted if the binary vanishes later.
type Gate struct {
	timeout     time.Duration
	renderWidth int

	lookPath func(string) (string, error)
	render   renderFunc

	mu       sync.Mutex
	toolPath string
	reprobed bool
}

// Option adjusts a Gate.
type Option func(*Gate)

// WithTimeout overrides the renderer timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gate) { g.timeout = d }
}

// WithLookPath overrides how the renderer binary is discovered. Useful
// for tests and for hosts that pin a specific mmdc install.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(g *Gate) { g.lookPath = fn }
}

// withRenderer is a test seam.
func withRenderer(fn renderFunc) Option {
	return func(g *Gate) { g.render = fn }
}

// NewGate constructs a gate and probes for the mermaid CLI.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		timeout:     ToolTimeout,
		renderWidth: 800,
		lookPath:    exec.LookPath,
	}
	g.render = g.runTool
	for _, opt := range opts {
		opt(g)
	}

	if path, err := g.lookPath("mmdc"); err == nil {
		g.toolPath = path
		logging.Mermaid("mermaid CLI found at %s", path)
	} else {
		logging.Mermaid("mermaid CLI not found, structural checks only")
	}
	return g
}

// Validate checks a diagram script and produces a verdict. The script
// may arrive wrapped in ```mermaid fences; they are stripped first.
// Rejected verdicts carry the renderer's diagnostic; the script itself
// is never returned alongside a rejection.
func (g *Gate) Validate(ctx context.Context, script string) Verdict {
	unwrapped := Unwrap(script)

	basicErr := structuralCheck(unwrapped)
	if basicErr != nil {
		logging.MermaidWarn("structural check failed: %v", basicErr)
	}

	verdict, ran := g.renderCheck(ctx, unwrapped)
	if ran {
		if verdict.Kind == Rejected {
			return verdict
		}
		// Renderer is authoritative on renderability, but a structural
		// wart is still worth surfacing.
		if basicErr != nil {
			return Verdict{Kind: AcceptedWithWarning, Message: basicErr.Error()}
		}
		return Verdict{Kind: Accepted}
	}

	if basicErr != nil {
		return Verdict{
			Kind:    AcceptedWithWarning,
			Message: fmt.Sprintf("renderer unavailable; %v", basicErr),
		}
	}
	return Verdict{Kind: Accepted}
}

// Unwrap strips a wrapping ```mermaid (or bare ```) fence pair from a
// script, returning the trimmed inner text.
func Unwrap(script string) string {
	s := strings.TrimSpace(script)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```mermaid")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// structuralCheck is Tier 1: keyword vocabulary plus balanced
// bracket/paren/brace delimiters. A failure here never rejects on its
// own; the caller folds it into the verdict.
func structuralCheck(script string) error {
	if strings.TrimSpace(script) == "" {
		return errors.New("empty diagram script")
	}

	hasKeyword := false
	for _, kw := range diagramKeywords {
		if strings.Contains(script, kw) {
			hasKeyword = true
			break
		}
	}
	if !hasKeyword {
		return errors.New("no recognized diagram-type declaration")
	}

	return checkBalance(script)
}

// checkBalance verifies (), [] and {} nest correctly.
func checkBalance(script string) error {
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}
	var stack []byte
	for i := 0; i < len(script); i++ {
		c := script[i]
		switch c {
		case '(', '[', '{':
			stack = append(stack, c)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[c] {
				return fmt.Errorf("mismatched %q delimiter", string(c))
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Errorf("unclosed %q delimiter", string(stack[len(stack)-1]))
	}
	return nil
}

// renderCheck is Tier 2. ran=false means the renderer was unavailable or
// timed out (non-blocking); ran=true with a Rejected verdict is the only
// path that can fail a script.
func (g *Gate) renderCheck(ctx context.Context, script string) (verdict Verdict, ran bool) {
	tool := g.tool()
	if tool == "" {
		return Verdict{}, false
	}

	in, out, cleanup, err := scratchFiles(script)
	if err != nil {
		logging.MermaidWarn("cannot create scratch files: %v", err)
		return Verdict{}, false
	}
	defer cleanup()

	runCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	diag, err := g.render(runCtx, tool, in, out)
	if err == nil {
		logging.Mermaid("render check passed")
		return Verdict{Kind: Accepted}, true
	}

	if runCtx.Err() != nil {
		// Timed out or the run was abandoned; either way the tool did
		// not judge the script.
		logging.MermaidWarn("render check abandoned: %v", runCtx.Err())
		return Verdict{}, false
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		// The binary vanished since the probe. Allow a single re-probe;
		// either way this attempt is treated as tool-unavailable.
		g.invalidateTool()
		return Verdict{}, false
	}

	msg := strings.TrimSpace(diag)
	if msg == "" {
		msg = err.Error()
	}
	logging.MermaidWarn("render check rejected script: %s", firstLine(msg))
	return Verdict{Kind: Rejected, Message: firstLine(msg)}, true
}

// tool returns the cached renderer path, re-probing at most once after
// an invalidation.
func (g *Gate) tool() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.toolPath
}

func (g *Gate) invalidateTool() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.toolPath = ""
	if g.reprobed {
		return
	}
	g.reprobed = true
	if path, err := g.lookPath("mmdc"); err == nil {
		g.toolPath = path
		logging.Mermaid("mermaid CLI re-probed at %s", path)
	} else {
		logging.MermaidWarn("mermaid CLI no longer available")
	}
}

// runTool invokes mmdc on the scratch input. Diagnostics come from the
// combined output stream.
func (g *Gate) runTool(ctx context.Context, tool, inPath, outPath string) (string, error) {
	cmd := exec.CommandContext(ctx, tool,
		"-i", inPath,
		"-o", outPath,
		"-w", fmt.Sprintf("%d", g.renderWidth),
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// scratchFiles writes the script to a temp .mmd file and reserves an
// output path. cleanup removes both and is safe on every exit path.
func scratchFiles(script string) (in, out string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "proposalnerd-*.mmd")
	if err != nil {
		return "", "", nil, err
	}
	in = f.Name()
	out = in + ".svg"

	cleanup = func() {
		_ = os.Remove(in)
		_ = os.Remove(out)
	}

	if _, err := f.WriteString(script); err != nil {
		_ = f.Close()
		cleanup()
		return "", "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", "", nil, err
	}
	return in, out, cleanup, nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
