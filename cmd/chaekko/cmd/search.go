package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chaekko/chaekko/internal/logging"
	"github.com/chaekko/chaekko/internal/orchestrator"
	"github.com/chaekko/chaekko/internal/plan"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	contextFile string // JSON query-context payload
	legacy      bool   // treat the payload as the pre-versioning shape
	seedFile    string // materials to load into the local backend
	page        int
	size        int
	format      string // "text", "json"
	explain     bool   // include per-stage debug output
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the book catalog",
		Long: `Search the book catalog using hybrid retrieval.

Combines keyword (BM25) and semantic (embedding) search with
Reciprocal Rank Fusion, then groups editions of the same material.

Examples:
  chaekko search "해리포터" --seed materials.json
  chaekko search "한강" --size 5 --format json
  chaekko search --context query.json --explain`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if query == "" && opts.contextFile == "" {
				return fmt.Errorf("provide a query or --context file")
			}
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringVar(&opts.contextFile, "context", "", "Path to a JSON query-context payload")
	cmd.Flags().BoolVar(&opts.legacy, "legacy", false, "Treat --context payload as the legacy shape")
	cmd.Flags().StringVar(&opts.seedFile, "seed", "", "Load materials from a JSON file into the local backend")
	cmd.Flags().IntVarP(&opts.page, "page", "p", 1, "Result page (1-based)")
	cmd.Flags().IntVarP(&opts.size, "size", "n", 0, "Results per page (0 uses the configured default)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show per-stage execution details")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logCfg := cfg.Logging
	logCfg.WriteToStderr = false
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return err
	}
	defer cleanup()

	index, err := buildIndex(cfg, logger)
	if err != nil {
		return err
	}
	embedder := buildEmbedder(cfg, logger)

	if opts.seedFile != "" {
		count, err := seedIndex(ctx, index, embedder, opts.seedFile)
		if err != nil {
			return err
		}
		logger.Info("seeded local index",
			slog.String("file", opts.seedFile), slog.Int("materials", count))
	}

	orch := buildOrchestrator(cfg, index, embedder, logger)

	resp, err := executeSearch(ctx, orch, query, opts)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	return formatText(cmd, resp)
}

// executeSearch dispatches on the payload shape.
func executeSearch(ctx context.Context, orch *orchestrator.Orchestrator,
	query string, opts searchOptions) (*orchestrator.Response, error) {

	if opts.contextFile != "" {
		data, err := os.ReadFile(opts.contextFile)
		if err != nil {
			return nil, fmt.Errorf("read context file: %w", err)
		}
		if opts.legacy {
			var lc plan.LegacyContext
			if err := json.Unmarshal(data, &lc); err != nil {
				return nil, fmt.Errorf("parse legacy context: %w", err)
			}
			return orch.SearchLegacy(ctx, &lc)
		}
		var qc plan.QueryContext
		if err := json.Unmarshal(data, &qc); err != nil {
			return nil, fmt.Errorf("parse query context: %w", err)
		}
		if opts.explain {
			qc.Debug = true
		}
		return orch.Search(ctx, &qc)
	}

	qc := &plan.QueryContext{
		Version: 1,
		Query:   plan.QueryTexts{Raw: query},
		Page:    opts.page,
		Size:    opts.size,
		Debug:   opts.explain,
	}
	return orch.Search(ctx, qc)
}

// formatText renders a response page for the terminal.
func formatText(cmd *cobra.Command, resp *orchestrator.Response) error {
	out := cmd.OutOrStdout()

	if len(resp.Items) == 0 {
		fmt.Fprintln(out, "No results found")
		return nil
	}

	fmt.Fprintf(out, "Found %d results (page %d, %s, %dms)\n\n",
		resp.Total, resp.Page, resp.Strategy, resp.TookMs)

	for _, item := range resp.Items {
		line := fmt.Sprintf("%d. %s", item.Rank, item.Title)
		if item.Author != "" {
			line += " / " + item.Author
		}
		if item.Volume != "" {
			line += " " + item.Volume
		}
		fmt.Fprintln(out, line)

		detail := fmt.Sprintf("   %s (score: %.4f)", item.MaterialID, item.Score)
		if item.Publisher != "" {
			detail += " | " + item.Publisher
		}
		if item.PublishYear > 0 {
			detail += fmt.Sprintf(" %d", item.PublishYear)
		}
		if item.GroupSize > 1 {
			detail += fmt.Sprintf(" | %d editions", item.GroupSize)
		}
		fmt.Fprintln(out, detail)
	}

	if resp.Cache.Hit {
		fmt.Fprintf(out, "\n(served from cache, age %dms)\n", resp.Cache.AgeMs)
	}
	if resp.Debug != nil {
		fmt.Fprintln(out, "\nStages:")
		for _, st := range resp.Debug.Stages {
			line := fmt.Sprintf("  %-8s %-8s %4dms  %d hits",
				st.Stage, st.Status, st.ElapsedMs, st.Hits)
			if st.Note != "" {
				line += "  (" + st.Note + ")"
			}
			fmt.Fprintln(out, line)
		}
		if resp.Debug.AppliedFallbackID != "" {
			fmt.Fprintf(out, "  fallback applied: %s\n", resp.Debug.AppliedFallbackID)
		}
	}
	return nil
}
