package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"proposalnerd/internal/config"
	"proposalnerd/internal/faults"
	"proposalnerd/internal/ingest"
	"proposalnerd/internal/logging"
	"proposalnerd/internal/mermaid"
	"proposalnerd/internal/oracle"
	"proposalnerd/internal/pipeline"
	"proposalnerd/internal/render"
)

var (
	rfpFile    string
	technology string
	outputFile string
	apiKey     string
	model      string
	configDir  string
	verbose    bool

	logger *zap.Logger
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

var rootCmd = &cobra.Command{
	Use:   "proposalnerd",
	Short: "proposalNERD - RFP proposal generator",
	Long: `proposalNERD turns an RFP document into a technology proposal.

It reads a PDF or Markdown RFP, runs a staged generation pipeline
(understanding, solution overview, architecture narrative, architecture
diagram) against the Gemini API, validates the diagram through mermaid,
and emits the assembled proposal as Markdown.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a proposal from an RFP document",
	Long: `Runs the full generation pipeline for one RFP.

Example:
  proposalnerd generate -f rfp.pdf -t "Salesforce" -o proposal.md`,
	RunE: runGenerate,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Directory holding prompts.json, keywords.json and config.yaml")

	generateCmd.Flags().StringVarP(&rfpFile, "rfp-file", "f", "", "Path to the RFP document (.pdf, .md, .markdown)")
	generateCmd.Flags().StringVarP(&technology, "technology", "t", "", "Target technology for the proposal")
	generateCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "Write the proposal here instead of the terminal")
	generateCmd.Flags().StringVarP(&apiKey, "api-key", "k", "", "Gemini API key (falls back to GEMINI_API_KEY)")
	generateCmd.Flags().StringVarP(&model, "model", "m", "", "Model override")
	_ = generateCmd.MarkFlagRequired("rfp-file")
	_ = generateCmd.MarkFlagRequired("technology")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// File logging has to be up before config.Load so its boot lines
	// are captured; settings may still escalate it afterwards.
	stateDir := configDir
	if stateDir == "" {
		if home, herr := os.UserHomeDir(); herr == nil {
			stateDir = filepath.Join(home, ".proposalnerd")
		}
	}
	if stateDir != "" && verbose {
		if err := logging.Initialize(stateDir, true); err != nil {
			logger.Warn("file logging disabled", zap.Error(err))
		}
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		return reportFailure(err)
	}
	if model != "" {
		cfg.Settings.Model = model
	}
	if stateDir != "" && !verbose && cfg.Settings.DebugLogs {
		if err := logging.Initialize(stateDir, true); err != nil {
			logger.Warn("file logging disabled", zap.Error(err))
		}
	}

	key := apiKey
	if key == "" {
		key = os.Getenv("GEMINI_API_KEY")
	}
	if key == "" {
		return reportFailure(faults.NewConfigError("api-key", "no API key given, set --api-key or GEMINI_API_KEY", nil))
	}

	doc, err := ingest.Load(rfpFile)
	if err != nil {
		return reportFailure(err)
	}
	logger.Info("ingested RFP",
		zap.String("file", doc.FileName),
		zap.Int("chars", len(doc.FullText)),
		zap.Int("chunks", len(doc.Chunks)))

	client, err := oracle.NewGeminiClient(ctx, oracle.GeminiConfig{
		APIKey: key,
		Model:  cfg.Settings.Model,
	})
	if err != nil {
		return reportFailure(err)
	}

	p, err := pipeline.New(cfg, client, mermaid.NewGate())
	if err != nil {
		return reportFailure(err)
	}

	fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render("Reviewing RFP..."))
	if err := p.Review(ctx, doc); err != nil {
		logger.Warn("RFP review failed, continuing with full text", zap.Error(err))
	}

	fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render(fmt.Sprintf("Generating %s proposal...", technology)))
	res, err := p.Run(ctx, doc, technology)
	if err != nil {
		return reportFailure(err)
	}
	if res.DiagramWarning != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), warnStyle.Render("Diagram warning: "+res.DiagramWarning))
	}

	proposal := render.Markdown(res, render.Meta{SourceFile: doc.FileName})

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(proposal), 0o644); err != nil {
			return reportFailure(fmt.Errorf("write proposal: %w", err))
		}
		fmt.Fprintln(cmd.ErrOrStderr(), okStyle.Render("Proposal written to "+outputFile))
		return nil
	}

	rendered, rerr := renderTerminal(proposal, cfg.Settings.RenderWidth)
	if rerr != nil {
		// Fall back to raw markdown when the terminal renderer fails.
		rendered = proposal
	}
	fmt.Fprintln(cmd.OutOrStdout(), rendered)
	fmt.Fprintln(cmd.ErrOrStderr(), okStyle.Render("Proposal generated (run "+res.RunID+")"))
	return nil
}

func renderTerminal(markdown string, width int) (string, error) {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(markdown)
}

// reportFailure prints a stage-attributed error and passes it up so
// cobra exits non-zero.
func reportFailure(err error) error {
	msg := err.Error()
	if stage := faults.StageOf(err); stage != "" {
		msg = fmt.Sprintf("[%s] %s", stage, msg)
	}

	var cfgErr *faults.ConfigError
	var ingErr *faults.IngestError
	switch {
	case errors.As(err, &cfgErr):
		msg = "configuration: " + msg
	case errors.As(err, &ingErr):
		msg = "ingest: " + msg
	}

	fmt.Fprintln(os.Stderr, errStyle.Render(strings.TrimSpace(msg)))
	if logger != nil {
		logger.Error("generation failed", zap.Error(err))
	}
	return err
}

func main() {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
