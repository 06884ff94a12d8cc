package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/seanblong/solutionfinder/internal/ai"
	"github.com/seanblong/solutionfinder/internal/index"
	"github.com/seanblong/solutionfinder/internal/search"
	"github.com/seanblong/solutionfinder/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// mockCompleter returns a fixed reply per response kind and records prompts.
type mockCompleter struct {
	mu      sync.Mutex
	replies map[string]string
	err     error
	systems []string
	users   []string
}

func (m *mockCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systems = append(m.systems, system)
	m.users = append(m.users, user)
	if m.err != nil {
		return "", m.err
	}
	switch {
	case strings.Contains(system, "gdpr_status"):
		return m.replies[KindCompliance], nil
	case strings.Contains(system, "breakdown"):
		return m.replies[KindValue], nil
	default:
		return m.replies[KindTools], nil
	}
}

type mockRetriever struct {
	results []models.SearchResult
	err     error
	gotK    int
	gotQ    string
}

func (m *mockRetriever) Retrieve(ctx context.Context, q string, k int) ([]models.SearchResult, error) {
	m.gotQ, m.gotK = q, k
	return m.results, m.err
}

const (
	validCompliance = `{"ai_used":"yes","gdpr_status":"red","gdpr_section":"Art. 22","ai_act_status":"warning","ai_act_section":"Art. 6","explanations":{"gdpr":"automated decision","ai_act":"high risk"}}`
	validValue      = `{"score":7.5,"breakdown":{"time_factor":3,"frequency_factor":2.5,"stakeholder_factor":2},"narrative":"worth it"}`
	validTools      = `{"recommendations":[{"tool":"n8n","reason":"workflows"},{"tool":"UiPath","reason":"desktop automation"}]}`
)

func excerpts(texts ...string) []models.SearchResult {
	out := make([]models.SearchResult, len(texts))
	for i, t := range texts {
		out[i] = models.SearchResult{Chunk: models.Chunk{Source: "GDPR.pdf", Ordinal: i, Content: t}, Score: 1}
	}
	return out
}

func TestCheckCompliance(t *testing.T) {
	llm := &mockCompleter{replies: map[string]string{KindCompliance: validCompliance}}
	r := &mockRetriever{results: excerpts("Article 22 text", "Article 6 text")}
	svc := NewService(llm, r, 0)

	got, err := svc.CheckCompliance(context.Background(), "  score loan applicants automatically  ")
	require.NoError(t, err)
	assert.Equal(t, &models.ComplianceReport{
		AIUsed:       "yes",
		GDPRStatus:   "red",
		GDPRSection:  "Art. 22",
		AIActStatus:  "warning",
		AIActSection: "Art. 6",
		Explanations: models.Explanations{GDPR: "automated decision", AIAct: "high risk"},
	}, got)

	assert.Equal(t, DefaultTopK, r.gotK)
	assert.Equal(t, "score loan applicants automatically", r.gotQ)
	require.Len(t, llm.systems, 1)
	assert.Contains(t, llm.systems[0], "Article 22 text\n\nArticle 6 text")
	assert.Contains(t, llm.users[0], "score loan applicants automatically")
}

func TestCheckCompliance_Errors(t *testing.T) {
	t.Run("empty description", func(t *testing.T) {
		r := &mockRetriever{}
		_, err := NewService(&mockCompleter{}, r, 3).CheckCompliance(context.Background(), " \n ")
		assert.ErrorIs(t, err, ErrEmptyDescription)
		assert.Zero(t, r.gotK)
	})

	t.Run("empty index", func(t *testing.T) {
		r := &mockRetriever{err: index.ErrEmptyIndex}
		_, err := NewService(&mockCompleter{}, r, 3).CheckCompliance(context.Background(), "x")
		assert.ErrorIs(t, err, index.ErrEmptyIndex)
	})

	t.Run("no retriever", func(t *testing.T) {
		_, err := NewService(&mockCompleter{}, nil, 3).CheckCompliance(context.Background(), "x")
		assert.Error(t, err)
	})

	t.Run("completion failure", func(t *testing.T) {
		cause := errors.New("503")
		llm := &mockCompleter{err: cause}
		_, err := NewService(llm, &mockRetriever{}, 3).CheckCompliance(context.Background(), "x")
		assert.ErrorIs(t, err, cause)
	})
}

func TestParseStrict(t *testing.T) {
	tests := []struct {
		name string
		kind string
		raw  string
		ok   bool
	}{
		{name: "valid compliance", kind: KindCompliance, raw: validCompliance, ok: true},
		{name: "valid value", kind: KindValue, raw: validValue, ok: true},
		{name: "valid tools", kind: KindTools, raw: validTools, ok: true},
		{name: "no ai means ok and dash", kind: KindCompliance, ok: true,
			raw: `{"ai_used":"no","gdpr_status":"green","gdpr_section":"-","ai_act_status":"ok","ai_act_section":"-","explanations":{"gdpr":"","ai_act":""}}`},
		{name: "no ai with a warning", kind: KindCompliance,
			raw: `{"ai_used":"no","gdpr_status":"green","gdpr_section":"-","ai_act_status":"warning","ai_act_section":"-","explanations":{"gdpr":"","ai_act":""}}`},
		{name: "ai used but ok", kind: KindCompliance,
			raw: `{"ai_used":"yes","gdpr_status":"green","gdpr_section":"-","ai_act_status":"ok","ai_act_section":"-","explanations":{"gdpr":"","ai_act":""}}`},
		{name: "bad status", kind: KindCompliance,
			raw: strings.Replace(validCompliance, `"red"`, `"orange"`, 1)},
		{name: "missing explanations", kind: KindCompliance,
			raw: `{"ai_used":"yes","gdpr_status":"red","gdpr_section":"Art. 22","ai_act_status":"warning","ai_act_section":"Art. 6"}`},
		{name: "unknown field", kind: KindValue,
			raw: `{"score":1,"breakdown":{"time_factor":1,"frequency_factor":1,"stakeholder_factor":1},"narrative":"n","extra":true}`},
		{name: "score as string", kind: KindValue,
			raw: `{"score":"7","breakdown":{"time_factor":1,"frequency_factor":1,"stakeholder_factor":1},"narrative":"n"}`},
		{name: "code fence", kind: KindTools, raw: "```json\n" + validTools + "\n```"},
		{name: "trailing comma", kind: KindTools, raw: `{"recommendations":[{"tool":"a","reason":"b"},]}`},
		{name: "trailing text", kind: KindTools, raw: validTools + " hope this helps"},
		{name: "array", kind: KindTools, raw: `[{"tool":"a","reason":"b"}]`},
		{name: "no recommendations", kind: KindTools, raw: `{"recommendations":[]}`},
		{name: "four recommendations", kind: KindTools,
			raw: `{"recommendations":[{"tool":"a","reason":"r"},{"tool":"b","reason":"r"},{"tool":"c","reason":"r"},{"tool":"d","reason":"r"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out map[string]any
			err := parseStrict(tt.kind, tt.raw, &out)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, tt.raw, pe.Raw)
			assert.Contains(t, pe.Error(), "response was")
		})
	}
}

func TestSchemaUnknownKind(t *testing.T) {
	_, err := Schema("nope")
	assert.Error(t, err)
	for _, k := range []string{KindCompliance, KindValue, KindTools} {
		s, err := Schema(k)
		require.NoError(t, err)
		assert.NotNil(t, s)
	}
}

func TestEstimateValue(t *testing.T) {
	llm := &mockCompleter{replies: map[string]string{KindValue: validValue}}
	svc := NewService(llm, nil, 0)

	got, err := svc.EstimateValue(context.Background(), ValueRequest{
		TimeRequired: "2h", Frequency: "daily", Stakeholder: "finance",
	})
	require.NoError(t, err)
	assert.Equal(t, 7.5, got.Score)
	assert.Equal(t, models.ValueBreakdown{TimeFactor: 3, FrequencyFactor: 2.5, StakeholderFactor: 2}, got.Breakdown)
	assert.Equal(t, "worth it", got.Narrative)
	assert.Contains(t, llm.users[0], "time_required: 2h")

	_, err = svc.EstimateValue(context.Background(), ValueRequest{TimeRequired: "2h"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frequency, stakeholder")
}

func TestEstimateValue_DefaultRequest(t *testing.T) {
	llm := &mockCompleter{replies: map[string]string{KindValue: validValue}}
	svc := NewService(llm, nil, 0)

	_, err := svc.EstimateValue(context.Background(), DefaultValueRequest())
	require.NoError(t, err)
	assert.Contains(t, llm.users[0], "time_required: < 15 min")
	assert.Contains(t, llm.users[0], "frequency: täglich")
	assert.Contains(t, llm.users[0], "stakeholder: mich")
}

func TestRecommendTools(t *testing.T) {
	llm := &mockCompleter{replies: map[string]string{KindTools: validTools}}
	svc := NewService(llm, nil, 0)

	got, err := svc.RecommendTools(context.Background(), ToolRequest{Description: "invoice intake", Applications: "SAP"})
	require.NoError(t, err)
	assert.Equal(t, []models.Recommendation{
		{Tool: "n8n", Reason: "workflows"},
		{Tool: "UiPath", Reason: "desktop automation"},
	}, got.Recommendations)
	assert.Contains(t, llm.users[0], "SAP")

	_, err = svc.RecommendTools(context.Background(), ToolRequest{Applications: "SAP"})
	assert.ErrorIs(t, err, ErrEmptyDescription)
}

func TestRecommendTools_ParseFailureCarriesRaw(t *testing.T) {
	raw := "Sure! Here are some tools: n8n, Zapier"
	llm := &mockCompleter{replies: map[string]string{KindTools: raw}}
	_, err := NewService(llm, nil, 0).RecommendTools(context.Background(), ToolRequest{Description: "x"})

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, raw, pe.Raw)
	assert.Equal(t, KindTools, pe.Kind)
}

func TestAnalyze(t *testing.T) {
	llm := &mockCompleter{replies: map[string]string{
		KindCompliance: validCompliance,
		KindValue:      validValue,
		KindTools:      validTools,
	}}
	svc := NewService(llm, &mockRetriever{results: excerpts("law")}, 2)

	got, err := svc.Analyze(context.Background(), Request{
		Description:  "approve invoices",
		Applications: "SAP",
		TimeRequired: "1h",
		Frequency:    "weekly",
		Stakeholder:  "finance",
	})
	require.NoError(t, err)
	assert.Equal(t, "red", got.Compliance.GDPRStatus)
	assert.Equal(t, 7.5, got.Value.Score)
	assert.Len(t, got.Tools.Recommendations, 2)
	assert.Len(t, llm.systems, 3)
}

func TestAnalyze_FirstErrorWins(t *testing.T) {
	llm := &mockCompleter{replies: map[string]string{
		KindCompliance: validCompliance,
		KindValue:      `{"score": "high"}`,
		KindTools:      validTools,
	}}
	svc := NewService(llm, &mockRetriever{results: excerpts("law")}, 2)

	_, err := svc.Analyze(context.Background(), Request{
		Description: "d", TimeRequired: "1h", Frequency: "weekly", Stakeholder: "ops",
	})
	var pe *ParseError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, KindValue, pe.Kind)

	_, err = svc.Analyze(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrEmptyDescription)
}

// The stub provider's canned replies must satisfy the strict schemas so
// offline runs work end to end.
func TestAnalyze_WithStubProvider(t *testing.T) {
	stub := ai.NewStubClient(64)
	vecs, err := stub.EmbedBatch(context.Background(), []string{"lawful processing of personal data", "prohibited ai practices"})
	require.NoError(t, err)
	ix, err := index.New(stub.Model(), stub.Dim(), []index.Entry{
		{Chunk: models.Chunk{Source: "GDPR.pdf", Content: "lawful processing of personal data"}, Vector: vecs[0]},
		{Chunk: models.Chunk{Source: "EU_AI_Act.pdf", Content: "prohibited ai practices"}, Vector: vecs[1]},
	})
	require.NoError(t, err)

	svc := NewService(stub, search.NewService(stub).Over(ix), 5)
	got, err := svc.Analyze(context.Background(), Request{
		Description: "collect customer emails", TimeRequired: "1h", Frequency: "daily", Stakeholder: "sales",
	})
	require.NoError(t, err)
	assert.Equal(t, "no", got.Compliance.AIUsed)
	assert.Equal(t, "ok", got.Compliance.AIActStatus)
	assert.NotEmpty(t, got.Tools.Recommendations)
}
