package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"proposalnerd/internal/config"
	"proposalnerd/internal/document"
	"proposalnerd/internal/faults"
	"proposalnerd/internal/mermaid"
	"proposalnerd/internal/oracle"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// unavailableGate is a real gate whose renderer probe always misses, so
// only the structural tier runs.
func unavailableGate(t *testing.T) *mermaid.Gate {
	t.Helper()
	return mermaid.NewGate(mermaid.WithLookPath(func(string) (string, error) {
		return "", errors.New("executable not found")
	}))
}

// rejectingGate simulates an available renderer that fails the script.
type rejectingGate struct{ reason string }

func (g rejectingGate) Validate(context.Context, string) mermaid.Verdict {
	return mermaid.Verdict{Kind: mermaid.Rejected, Message: g.reason}
}

func testDoc() *document.Document {
	return &document.Document{
		FileName:     "sample.md",
		FullText:     "Our company seeks a new CRM system. It must be cloud-based and support reporting.",
		Summary:      "Client needs a CRM",
		Requirements: []string{"mobile access", "reporting"},
		Criteria:     []string{"ease of use"},
	}
}

func newTestPipeline(t *testing.T, stub *oracle.StubClient) *Pipeline {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	p, err := New(cfg, stub, unavailableGate(t))
	require.NoError(t, err)
	return p
}

// coreScript returns stub responses for the four core stages in order.
func coreScript(diagram string) []oracle.StubResponse {
	return []oracle.StubResponse{
		{Fields: map[string]string{"understanding": "The client needs a CRM platform."}},
		{Fields: map[string]string{"overview": "We propose a cloud-native CRM."}},
		{Fields: map[string]string{"architecture_text": "Three layers: ingestion, processing, presentation."}},
		{Fields: map[string]string{"architecture_diagram": diagram}},
	}
}

const goodDiagram = "```mermaid\ngraph TD;\n A --> B;\n```"

func TestRunHappyPathNoTrigger(t *testing.T) {
	stub := &oracle.StubClient{Script: coreScript(goodDiagram)}
	p := newTestPipeline(t, stub)

	res, err := p.Run(context.Background(), testDoc(), "Custom Internal Tool")
	require.NoError(t, err)

	assert.Equal(t, "The client needs a CRM platform.", res.Understanding)
	assert.Equal(t, "We propose a cloud-native CRM.", res.Overview)
	assert.NotEmpty(t, res.ArchitectureText)
	assert.NotEmpty(t, res.ArchitectureDiagram)
	assert.Empty(t, res.DiagramWarning)
	assert.Nil(t, res.Supplementary, "no review for untriggered technology")
	assert.Equal(t, 4, stub.Calls(), "exactly one oracle call per stage")
	assert.NotEmpty(t, res.RunID)
}

func TestRunTriggeredTechnologyAddsReview(t *testing.T) {
	stub := &oracle.StubClient{}
	p := newTestPipeline(t, stub)

	res, err := p.Run(context.Background(), testDoc(), "Salesforce")
	require.NoError(t, err)

	require.NotNil(t, res.Supplementary)
	assert.Contains(t, res.Supplementary.Title, "Salesforce")
	assert.NotEmpty(t, res.Supplementary.Content)
	assert.Equal(t, 5, stub.Calls(), "four core stages plus one review")
}

func TestRunThreadsOutputsForward(t *testing.T) {
	stub := &oracle.StubClient{Script: coreScript(goodDiagram)}
	p := newTestPipeline(t, stub)

	_, err := p.Run(context.Background(), testDoc(), "Custom Tool")
	require.NoError(t, err)

	require.Len(t, stub.Prompts, 4)
	assert.NotContains(t, stub.Prompts[0], "already written")
	assert.Contains(t, stub.Prompts[1], "The client needs a CRM platform.")
	assert.Contains(t, stub.Prompts[2], "We propose a cloud-native CRM.")
	assert.Contains(t, stub.Prompts[3], "Three layers: ingestion, processing, presentation.")
	for _, prompt := range stub.Prompts {
		assert.Contains(t, prompt, "Custom Tool")
		assert.Contains(t, prompt, "mobile access")
	}
}

func TestRunStoresUnwrappedDiagram(t *testing.T) {
	stub := &oracle.StubClient{Script: coreScript(goodDiagram)}
	p := newTestPipeline(t, stub)

	res, err := p.Run(context.Background(), testDoc(), "Custom Tool")
	require.NoError(t, err)
	assert.Equal(t, "graph TD;\n A --> B;", res.ArchitectureDiagram,
		"the stored diagram must be the bare script, not the fenced response")
}

func TestRunRejectsEmptyStageContent(t *testing.T) {
	stub := &oracle.StubClient{Script: []oracle.StubResponse{
		{Fields: map[string]string{"understanding": "   "}},
	}}
	p := newTestPipeline(t, stub)

	_, err := p.Run(context.Background(), testDoc(), "Custom Tool")
	require.Error(t, err)

	var run *faults.RunError
	require.ErrorAs(t, err, &run)
	assert.Equal(t, StageUnderstanding, run.Stage)
	var gen *faults.GenerationError
	require.ErrorAs(t, err, &gen)
	assert.Equal(t, 1, stub.Calls(), "blank content aborts before the next stage")
}

func TestRunAbortsAtFailingStage(t *testing.T) {
	cause := errors.New("model overloaded")
	stub := &oracle.StubClient{Script: []oracle.StubResponse{
		{Fields: map[string]string{"understanding": "ok"}},
		{Err: cause},
	}}
	p := newTestPipeline(t, stub)

	_, err := p.Run(context.Background(), testDoc(), "Custom Tool")
	require.Error(t, err)

	var run *faults.RunError
	require.ErrorAs(t, err, &run)
	assert.Equal(t, StageOverview, run.Stage)
	assert.True(t, errors.Is(err, cause), "cause must be preserved")
	assert.Equal(t, 2, stub.Calls(), "no stage after the failure may be invoked")
}

func TestRunPreconditions(t *testing.T) {
	stub := &oracle.StubClient{}
	p := newTestPipeline(t, stub)

	t.Run("empty document", func(t *testing.T) {
		_, err := p.Run(context.Background(), &document.Document{FileName: "empty.md"}, "Go")
		var ing *faults.IngestError
		require.ErrorAs(t, err, &ing)
	})

	t.Run("empty technology", func(t *testing.T) {
		_, err := p.Run(context.Background(), testDoc(), "   ")
		require.Error(t, err)
	})

	assert.Zero(t, stub.Calls(), "preconditions fail before any oracle call")
}

func TestRunRejectedDiagramSurfacesValidationError(t *testing.T) {
	stub := &oracle.StubClient{Script: coreScript("graph TD;\n A --> B;")}
	cfg, err := config.Load("")
	require.NoError(t, err)
	p, err := New(cfg, stub, rejectingGate{reason: "Parse error on line 2"})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), testDoc(), "Custom Tool")
	require.Error(t, err)

	var val *faults.ValidationError
	require.ErrorAs(t, err, &val)
	assert.Equal(t, StageArchitectureDiagram, val.Stage)
	assert.Contains(t, val.Reason, "Parse error")

	var run *faults.RunError
	require.ErrorAs(t, err, &run)
	assert.Equal(t, StageArchitectureDiagram, run.Stage)
}

func TestRunDiagramWarningIsNonFatal(t *testing.T) {
	// Mismatched bracket with no renderer available: warning, not abort.
	stub := &oracle.StubClient{Script: coreScript("graph TD; A[Start --> B;")}
	p := newTestPipeline(t, stub)

	res, err := p.Run(context.Background(), testDoc(), "Custom Tool")
	require.NoError(t, err)
	assert.NotEmpty(t, res.DiagramWarning)
	assert.NotEmpty(t, res.ArchitectureDiagram, "script is kept despite the warning")
}

func TestAugmentDegradesOnOracleFailure(t *testing.T) {
	stub := &oracle.StubClient{Script: []oracle.StubResponse{
		{Err: errors.New("quota exhausted")},
	}}
	p := newTestPipeline(t, stub)

	rev := p.augment(context.Background(), "OutSystems Platform", nil, "")
	require.NotNil(t, rev)
	assert.Contains(t, rev.Title, "OutSystems Platform")
	assert.Contains(t, rev.Content, "quota exhausted")
}

// reviewFailingStub fails only the supplementary review call, which is
// the one requesting a title field. The core stages use the echo stub.
type reviewFailingStub struct {
	oracle.StubClient
}

func (s *reviewFailingStub) Generate(ctx context.Context, prompt string, fields []string) (map[string]string, error) {
	for _, f := range fields {
		if f == "title" {
			return nil, errors.New("quota exhausted")
		}
	}
	return s.StubClient.Generate(ctx, prompt, fields)
}

func TestAugmentFailureDoesNotAbortRun(t *testing.T) {
	stub := &reviewFailingStub{}
	cfg, err := config.Load("")
	require.NoError(t, err)
	p, err := New(cfg, stub, unavailableGate(t))
	require.NoError(t, err)

	res, err := p.Run(context.Background(), testDoc(), "SAP S/4HANA")
	require.NoError(t, err)
	require.NotNil(t, res.Supplementary, "degraded review still attached")
	assert.Contains(t, res.Supplementary.Content, "quota exhausted")
	assert.NotEmpty(t, res.Understanding)
}

func TestRunChunksUnchunkedDocuments(t *testing.T) {
	stub := &oracle.StubClient{}
	p := newTestPipeline(t, stub)

	doc := testDoc()
	_, err := p.Run(context.Background(), doc, "Custom Tool")
	require.NoError(t, err)
	assert.NotEmpty(t, doc.Chunks, "documents arriving without chunks get the default windows")
}

func TestReviewPopulatesDocument(t *testing.T) {
	stub := &oracle.StubClient{Script: []oracle.StubResponse{
		{Fields: map[string]string{
			"summary":      "Client wants a task system.",
			"requirements": "- web based\n- user accounts\n",
			"criteria":     "ease of use\nscalability",
		}},
	}}
	p := newTestPipeline(t, stub)

	doc := &document.Document{FileName: "rfp.md", FullText: "# RFP\nWe need a task system."}
	require.NoError(t, p.Review(context.Background(), doc))

	assert.Equal(t, "Client wants a task system.", doc.Summary)
	assert.Equal(t, []string{"web based", "user accounts"}, doc.Requirements)
	assert.Equal(t, []string{"ease of use", "scalability"}, doc.Criteria)
}

func TestReviewFailureLeavesDocumentUsable(t *testing.T) {
	stub := &oracle.StubClient{Script: []oracle.StubResponse{
		{Err: errors.New("no capacity")},
	}}
	p := newTestPipeline(t, stub)

	doc := &document.Document{FileName: "rfp.md", FullText: "We need a CRM."}
	err := p.Review(context.Background(), doc)

	var gen *faults.GenerationError
	require.ErrorAs(t, err, &gen)
	assert.Equal(t, StageReview, gen.Stage)
	assert.Empty(t, doc.Summary)
	assert.True(t, doc.HasContext(), "full text still usable after failed review")
}

func TestConcurrentRunsShareNoState(t *testing.T) {
	p := newTestPipeline(t, &oracle.StubClient{})

	done := make(chan error, 2)
	for _, tech := range []string{"Salesforce", "Custom Tool"} {
		tech := tech
		go func() {
			_, err := p.Run(context.Background(), testDoc(), tech)
			done <- err
		}()
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, <-done)
	}
}

func TestNewValidatesConstruction(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	_, err = New(nil, &oracle.StubClient{}, nil)
	var ce *faults.ConfigError
	require.ErrorAs(t, err, &ce)

	_, err = New(cfg, nil, nil)
	require.ErrorAs(t, err, &ce)

	badCfg := *cfg
	badCfg.Keywords = nil
	_, err = New(&badCfg, &oracle.StubClient{}, nil)
	require.ErrorAs(t, err, &ce)
}

func TestTriggerMatches(t *testing.T) {
	trig, err := NewTrigger([]string{"outsystems"})
	require.NoError(t, err)

	assert.True(t, trig.Matches("Acme OutSystems Cloud"))
	assert.False(t, trig.Matches("Acme Cloud"))
	assert.True(t, trig.Matches("OUTSYSTEMS"))
}

func TestTriggerRejectsEmptySets(t *testing.T) {
	var ce *faults.ConfigError
	_, err := NewTrigger(nil)
	require.ErrorAs(t, err, &ce)
	_, err = NewTrigger([]string{" "})
	require.ErrorAs(t, err, &ce)
}

func TestSplitLines(t *testing.T) {
	got := splitLines("- one\n* two\n•  three\n\n  four  ")
	assert.Equal(t, []string{"one", "two", "three", "four"}, got)
}

func TestExpandTemplate(t *testing.T) {
	got := expandTemplate("Build it on {technology}, really {technology}.", "Go")
	assert.Equal(t, "Build it on Go, really Go.", got)
}

func TestPromptCapsBoundInsertions(t *testing.T) {
	doc := testDoc()
	doc.FullText = strings.Repeat("x", maxPromptFullText*3)
	stub := &oracle.StubClient{}
	p := newTestPipeline(t, stub)

	_, err := p.Run(context.Background(), doc, "Custom Tool")
	require.NoError(t, err)
	for _, prompt := range stub.Prompts {
		assert.Less(t, len(prompt), maxPromptFullText*2, "prompt not bounded")
	}
}
