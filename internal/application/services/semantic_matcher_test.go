package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlrag/backend/internal/domain/models"
	pkgErrors "github.com/sqlrag/backend/pkg/errors"
)

type stubLLM struct {
	response string
	err      error
	delay    time.Duration
}

func (s *stubLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.response, s.err
}

func semanticTestTemplates() []models.QueryTemplate {
	return []models.QueryTemplate{
		newTemplate(1, "Find user by id", []string{"find", "user"}, []string{"users_view"}, "select_where_eq", 10),
		newTemplate(2, "List orders", []string{"orders"}, []string{"orders_view"}, "select_where_eq", 5),
	}
}

func TestMatchTemplates_ParsesResponse(t *testing.T) {
	client := &stubLLM{response: `{
	  "matches": [
	    {"template_id": 1, "semantic_similarity": 0.95, "confidence": 0.9, "reasoning": "wants lookup by id"}
	  ]
	}`}
	m := NewSemanticMatcher(client)

	matches, err := m.MatchTemplates(context.Background(), semanticTestTemplates(), "cari user dengan id 5")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(1), matches[0].TemplateID)
	assert.Equal(t, 0.95, matches[0].SemanticScore)
	assert.Equal(t, 0.9, matches[0].Confidence)
}

func TestMatchTemplates_EmptyTemplateList(t *testing.T) {
	m := NewSemanticMatcher(&stubLLM{})

	matches, err := m.MatchTemplates(context.Background(), nil, "anything")
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMatchTemplates_ClientErrorIsLLMError(t *testing.T) {
	m := NewSemanticMatcher(&stubLLM{err: errors.New("connection refused")})

	_, err := m.MatchTemplates(context.Background(), semanticTestTemplates(), "find user")
	require.Error(t, err)
	assert.True(t, pkgErrors.IsLLM(err))
}

func TestMatchTemplates_TimeoutIsLLMError(t *testing.T) {
	m := NewSemanticMatcher(&stubLLM{delay: time.Hour, response: "{}"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := m.MatchTemplates(ctx, semanticTestTemplates(), "find user")
	require.Error(t, err)
	assert.True(t, pkgErrors.IsLLM(err))
}

func TestParseSemanticResponse_StripsMarkdownFences(t *testing.T) {
	response := "```json\n" + `{
	  "matches": [
	    {"template_id": 1, "semantic_similarity": 0.8, "confidence": 0.7, "reasoning": "ok"}
	  ]
	}` + "\n```"

	matches, err := parseSemanticResponse(response, semanticTestTemplates())
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(1), matches[0].TemplateID)
}

func TestParseSemanticResponse_FiltersUnknownIDs(t *testing.T) {
	response := `{
	  "matches": [
	    {"template_id": 1, "semantic_similarity": 0.9, "confidence": 0.9, "reasoning": "valid"},
	    {"template_id": 999, "semantic_similarity": 0.8, "confidence": 0.7, "reasoning": "unknown"}
	  ]
	}`

	matches, err := parseSemanticResponse(response, semanticTestTemplates())
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(1), matches[0].TemplateID)
}

func TestParseSemanticResponse_ClampsScores(t *testing.T) {
	response := `{
	  "matches": [
	    {"template_id": 1, "semantic_similarity": 1.7, "confidence": -0.2, "reasoning": "out of range"}
	  ]
	}`

	matches, err := parseSemanticResponse(response, semanticTestTemplates())
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, 1.0, matches[0].SemanticScore)
	assert.Equal(t, 0.0, matches[0].Confidence)
}

func TestParseSemanticResponse_InvalidJSON(t *testing.T) {
	_, err := parseSemanticResponse("not json at all", semanticTestTemplates())
	require.Error(t, err)
	assert.True(t, pkgErrors.IsLLM(err))
}

func TestFuseScores_HighLLMConfidenceTrustsSemantic(t *testing.T) {
	keyword := &models.TemplateMatch{Score: 0.3, Reason: "keyword"}
	semantic := &SemanticMatch{TemplateID: 1, SemanticScore: 0.9, Confidence: 0.85, Reasoning: "semantic"}

	score, _, source := FuseScores(keyword, semantic)
	assert.InDelta(t, 0.9*0.7+0.3*0.3, score, 1e-9)
	assert.Equal(t, SourceFused, source)
}

func TestFuseScores_StrongKeywordTrustsKeywords(t *testing.T) {
	keyword := &models.TemplateMatch{Score: 0.7, Reason: "keyword"}
	semantic := &SemanticMatch{TemplateID: 1, SemanticScore: 0.4, Confidence: 0.5, Reasoning: "semantic"}

	score, _, source := FuseScores(keyword, semantic)
	assert.InDelta(t, 0.7*0.6+0.4*0.4, score, 1e-9)
	assert.Equal(t, SourceFused, source)
}

func TestFuseScores_WeakSignalsAverage(t *testing.T) {
	keyword := &models.TemplateMatch{Score: 0.3, Reason: "keyword"}
	semantic := &SemanticMatch{TemplateID: 1, SemanticScore: 0.9, Confidence: 0.6, Reasoning: "semantic"}

	score, _, source := FuseScores(keyword, semantic)
	assert.InDelta(t, 0.6, score, 0.01)
	assert.Equal(t, SourceFused, source)
}

func TestFuseScores_SingleAndNoSources(t *testing.T) {
	keyword := &models.TemplateMatch{Score: 0.8, Reason: "keyword"}
	score, reason, source := FuseScores(keyword, nil)
	assert.Equal(t, 0.8, score)
	assert.Equal(t, "keyword", reason)
	assert.Equal(t, SourceKeywordOnly, source)

	semantic := &SemanticMatch{TemplateID: 1, SemanticScore: 0.7, Confidence: 0.75, Reasoning: "semantic"}
	score, _, source = FuseScores(nil, semantic)
	assert.Equal(t, 0.7, score)
	assert.Equal(t, SourceSemanticOnly, source)

	score, _, source = FuseScores(nil, nil)
	assert.Zero(t, score)
	assert.Equal(t, SourceKeywordOnly, source)
}

func TestFuseMatches_DropsZeroScores(t *testing.T) {
	templates := semanticTestTemplates()
	keywordMatches := []models.TemplateMatch{
		{Template: templates[0], Score: 0.6, Reason: "keyword"},
	}
	semanticMatches := []SemanticMatch{
		{TemplateID: 1, SemanticScore: 0.9, Confidence: 0.9, Reasoning: "semantic"},
	}

	fused := FuseMatches(templates, keywordMatches, semanticMatches)
	require.Len(t, fused, 1)
	assert.Equal(t, int64(1), fused[0].Template.ID)
	assert.Greater(t, fused[0].Score, 0.6)
}
