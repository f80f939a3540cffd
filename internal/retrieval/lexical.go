package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/chaekko/chaekko/internal/backend"
	"github.com/chaekko/chaekko/internal/plan"
)

// Lexical stage defaults.
var (
	defaultLexicalFields = []string{"title", "author"}
	defaultReprobeFields = []string{"author"}
)

// reprobeMaxHits is the hit count at or below which a short CJK query
// triggers the substring re-probe.
const reprobeMaxHits = 2

// LexicalConfig configures the lexical retriever.
type LexicalConfig struct {
	// Fields searched when the plan does not name its own.
	Fields []string
	// ReprobeFields are scanned by the short-query substring re-probe.
	ReprobeFields []string
	// ReprobeMaxHits overrides the re-probe trigger threshold.
	ReprobeMaxHits int
}

// Lexical runs keyword retrieval.
type Lexical struct {
	index  backend.Index
	cfg    LexicalConfig
	logger *slog.Logger
}

// NewLexical creates the lexical retriever.
func NewLexical(index backend.Index, cfg LexicalConfig, logger *slog.Logger) *Lexical {
	if len(cfg.Fields) == 0 {
		cfg.Fields = defaultLexicalFields
	}
	if len(cfg.ReprobeFields) == 0 {
		cfg.ReprobeFields = defaultReprobeFields
	}
	if cfg.ReprobeMaxHits <= 0 {
		cfg.ReprobeMaxHits = reprobeMaxHits
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Lexical{index: index, cfg: cfg, logger: logger}
}

// Stage implements Retriever.
func (l *Lexical) Stage() plan.Stage { return plan.StageLexical }

// Run implements Retriever.
func (l *Lexical) Run(ctx context.Context, p *plan.RetrievalPlan, budget time.Duration) StageResult {
	start := time.Now()
	result := StageResult{Stage: plan.StageLexical}

	text := strings.TrimSpace(p.QueryText)
	if text == "" {
		result.Status = StatusEmpty
		result.Elapsed = time.Since(start)
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	fields := p.Fields[plan.StageLexical]
	if len(fields) == 0 {
		fields = l.cfg.Fields
	}

	hits, err := l.index.SearchByQuery(ctx, backend.TextQuery{
		Query:   text,
		Fields:  fields,
		Boosts:  p.Boosts[plan.StageLexical],
		Mode:    backend.ModePhrasePrefix,
		TopK:    p.TopK[plan.StageLexical],
		Filters: p.Filters,
		Explain: p.Debug,
	})
	if err != nil {
		result.Status, result.Err = classify(ctx, err)
		result.Elapsed = time.Since(start)
		l.logger.Warn("lexical stage failed",
			slog.String("status", string(result.Status)),
			slog.String("error", err.Error()))
		return result
	}

	result.DocIDs, result.Scores = Promote(hits.DocIDs, hits.Scores)
	result.DSL = hits.DSL

	// Short Hangul/Han queries like "한강" are as likely an author name
	// as a title prefix. When the main pass comes back thin, the hit
	// sources are sampled first: if none carries the query as a substring
	// of a name or title field, the thin result was probably an analyzer
	// artifact and a substring pass over the name fields usually finds
	// the intent. The re-probe replaces the main result only when it
	// actually matched.
	if shortCJKQuery(text) && len(result.DocIDs) <= l.cfg.ReprobeMaxHits &&
		!l.sampleMatches(ctx, result.DocIDs, text) {
		if ids, scores, ok := l.reprobe(ctx, text, p); ok {
			result.DocIDs, result.Scores = ids, scores
			result.Note = "author-contains re-probe applied"
			l.logger.Debug("short query re-probe replaced lexical result",
				slog.String("query", text),
				slog.Int("hits", len(ids)))
		}
	}

	if len(result.DocIDs) == 0 {
		result.Status = StatusEmpty
	} else {
		result.Status = StatusOK
	}
	result.Elapsed = time.Since(start)
	return result
}

// sampleMatches fetches the thin main-pass hits and reports whether any
// of them contains text as a substring of a searched or re-probe field.
// A match means the main result is genuine and the re-probe is skipped.
// Fetch errors report false; the re-probe then decides.
func (l *Lexical) sampleMatches(ctx context.Context, ids []string, text string) bool {
	if len(ids) == 0 {
		return false
	}
	docs, err := l.index.FetchByIDs(ctx, ids)
	if err != nil {
		l.logger.Debug("re-probe sample fetch failed",
			slog.String("error", err.Error()))
		return false
	}
	fields := append(append([]string{}, l.cfg.Fields...), l.cfg.ReprobeFields...)
	for _, doc := range docs {
		for _, field := range fields {
			if strings.Contains(doc.Str(field), text) {
				return true
			}
		}
	}
	return false
}

// reprobe runs the substring pass. Errors are swallowed: the main result
// stands and the re-probe is best-effort inside the same sub-budget.
func (l *Lexical) reprobe(ctx context.Context, text string, p *plan.RetrievalPlan) ([]string, []float64, bool) {
	hits, err := l.index.SearchByQuery(ctx, backend.TextQuery{
		Query:   text,
		Fields:  l.cfg.ReprobeFields,
		Mode:    backend.ModeContains,
		TopK:    p.TopK[plan.StageLexical],
		Filters: p.Filters,
	})
	if err != nil || len(hits.DocIDs) == 0 {
		return nil, nil, false
	}
	ids, scores := Promote(hits.DocIDs, hits.Scores)
	return ids, scores, true
}

// shortCJKQuery reports whether text is a single CJK token of 2 to 4
// runes, the shape where keyword search is least reliable.
func shortCJKQuery(text string) bool {
	if strings.ContainsAny(text, " \t") {
		return false
	}
	runes := []rune(text)
	if len(runes) < 2 || len(runes) > 4 {
		return false
	}
	for _, r := range runes {
		if !unicode.Is(unicode.Hangul, r) && !unicode.Is(unicode.Han, r) {
			return false
		}
	}
	return true
}

// classify maps a backend error to a stage status.
func classify(ctx context.Context, err error) (Status, error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return StatusTimeout, err
	}
	return StatusError, err
}
