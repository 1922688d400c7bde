package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/sqlrag/backend/internal/domain/models"
	"github.com/sqlrag/backend/internal/domain/ports"
	pkgErrors "github.com/sqlrag/backend/pkg/errors"
)

// templateScoreThreshold is the minimum fused score for a template match
// to be attached to a result.
const templateScoreThreshold = 0.5

// GeneratedQuery is the full outcome of one pipeline run.
type GeneratedQuery struct {
	Plan     *models.QueryPlan     `json:"plan"`
	Compiled *models.CompiledQuery `json:"compiled"`
	Warnings []string              `json:"warnings,omitempty"`
	// Template is the best advisory template match, if any scored above
	// the threshold. The compiled query always comes from the plan.
	Template *models.TemplateMatch `json:"template,omitempty"`
}

// QueryServiceConfig wires a QueryService.
type QueryServiceConfig struct {
	Rules           models.AllowlistRules
	SelectedTables  []string
	SelectedColumns map[string][]string
	Dialect         Dialect
	DefaultLimit    int
	CollectionID    int64

	// Optional collaborators.
	Templates []models.QueryTemplate
	LLMClient ports.LLMClient
	LogSink   ports.QueryLogSink
}

// QueryService runs the full pipeline: plan generation, allowlist
// validation, SQL compilation, and the textual plus AST defenses over the
// output. Template matching and LLM re-ranking are advisory enrichments;
// their failure never fails a request.
type QueryService struct {
	planner   *QueryPlanner
	validator *AllowlistValidator
	compiler  *SQLCompiler
	guard     *SQLGuard
	templates *TemplateMatcher
	semantic  *SemanticMatcher
	logSink   ports.QueryLogSink

	defaultLimit int
	collectionID int64
}

// NewQueryService builds the pipeline from config.
func NewQueryService(cfg QueryServiceConfig) *QueryService {
	defaultLimit := cfg.DefaultLimit
	if defaultLimit <= 0 {
		defaultLimit = 50
	}

	s := &QueryService{
		planner:      NewQueryPlanner(cfg.Rules, cfg.SelectedTables, cfg.SelectedColumns),
		validator:    NewAllowlistValidator(cfg.Rules, cfg.SelectedTables),
		compiler:     NewSQLCompiler(cfg.Dialect),
		guard:        NewSQLGuard(cfg.Rules),
		templates:    NewTemplateMatcher(cfg.Templates),
		logSink:      cfg.LogSink,
		defaultLimit: defaultLimit,
		collectionID: cfg.CollectionID,
	}
	if cfg.LLMClient != nil {
		s.semantic = NewSemanticMatcher(cfg.LLMClient)
	}
	return s
}

// GenerateQuery turns a natural-language question into a compiled,
// validated, parameterized query.
func (s *QueryService) GenerateQuery(ctx context.Context, question string) (*GeneratedQuery, error) {
	started := time.Now()

	result, err := s.generate(ctx, question)
	s.record(ctx, question, result, err, time.Since(started))
	return result, err
}

func (s *QueryService) generate(ctx context.Context, question string) (*GeneratedQuery, error) {
	templateMatch := s.matchTemplate(ctx, question)

	plan, err := s.planner.GeneratePlan(question, s.defaultLimit)
	if err != nil {
		return nil, err
	}

	validation := s.validator.ValidatePlan(plan)
	if !validation.IsValid {
		first := validation.FirstError()
		return nil, pkgErrors.NewValidationError(first.Field, fmt.Sprintf("%s: %s", first.Code, first.Message))
	}
	if validation.AdjustedLimit != nil {
		plan.Limit = *validation.AdjustedLimit
	}

	compiled, err := s.compiler.Compile(plan)
	if err != nil {
		return nil, err
	}

	// Defense in depth over the generated text: the textual scan and the
	// AST guard both run on every compiled query.
	if sqlCheck := s.validator.ValidateSQL(compiled.SQL); !sqlCheck.IsValid {
		first := sqlCheck.FirstError()
		return nil, pkgErrors.NewValidationError("sql", fmt.Sprintf("%s: %s", first.Code, first.Message))
	}
	if err := s.guard.Inspect(compiled.SQL); err != nil {
		return nil, err
	}

	return &GeneratedQuery{
		Plan:     plan,
		Compiled: compiled,
		Warnings: validation.Warnings,
		Template: templateMatch,
	}, nil
}

// matchTemplate finds the best advisory template for the question. The
// keyword pass always runs; the LLM re-rank is attempted only when a
// client is configured, and any failure falls back to keyword scores.
func (s *QueryService) matchTemplate(ctx context.Context, question string) *models.TemplateMatch {
	enabled := s.templates.Templates()
	if len(enabled) == 0 {
		return nil
	}

	detected := s.planner.Matcher().ExtractTableMentions(question)
	keywordMatches := s.templates.FindMatches(question, detected, maxTemplatesForMatch)

	matches := keywordMatches
	if s.semantic != nil {
		semanticMatches, err := s.semantic.MatchTemplates(ctx, enabled, question)
		if err != nil {
			log.Printf("semantic matching unavailable, using keyword scores: %v", err)
		} else {
			fused := FuseMatches(enabled, keywordMatches, semanticMatches)
			matches = s.templates.rank(fused, maxTemplatesForMatch)
		}
	}

	if len(matches) == 0 || matches[0].Score < templateScoreThreshold {
		return nil
	}
	best := matches[0]
	return &best
}

// record writes one audit row per request. Logging failures are logged and
// swallowed; they never affect the caller.
func (s *QueryService) record(ctx context.Context, question string, result *GeneratedQuery, genErr error, elapsed time.Duration) {
	if s.logSink == nil {
		return
	}

	entry := models.QueryLog{
		ID:           uuid.NewString(),
		CollectionID: s.collectionID,
		Question:     question,
		Status:       models.QueryLogStatusOK,
		DurationMS:   elapsed.Milliseconds(),
		CreatedAt:    time.Now().UTC(),
	}
	if genErr != nil {
		entry.Status = models.QueryLogStatusError
		entry.ErrorMessage = genErr.Error()
	} else if result != nil && result.Compiled != nil {
		entry.GeneratedSQL = result.Compiled.SQL
		entry.ParamCount = len(result.Compiled.Params)
	}

	if err := s.logSink.Record(ctx, entry); err != nil {
		log.Printf("failed to record query log: %v", err)
	}
}

// rank sorts fused matches the same way keyword matches are ranked and
// truncates to max.
func (m *TemplateMatcher) rank(matches []models.TemplateMatch, max int) []models.TemplateMatch {
	sorted := make([]models.TemplateMatch, len(matches))
	copy(sorted, matches)
	sortTemplateMatches(sorted)
	if len(sorted) > max {
		sorted = sorted[:max]
	}
	return sorted
}
