package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/cadencehq/cadence/internal/models"
)

// fakeModel returns canned responses in order, then repeats the last.
type fakeModel struct {
	responses []fakeResponse
	calls     int
	lastOpts  llms.CallOptions
	block     bool // wait for ctx cancellation instead of answering
}

type fakeResponse struct {
	content string
	err     error
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.lastOpts = llms.CallOptions{}
	for _, opt := range options {
		opt(&f.lastOpts)
	}

	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	r := f.responses[idx]
	if r.err != nil {
		return nil, r.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: r.content}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := f.GenerateContent(ctx, nil, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func testConfig() FallbackConfig {
	return FallbackConfig{
		Model:     "mistral",
		Timeout:   time.Second,
		Retries:   2,
		RateLimit: 1000,
		Parallel:  2,
		MinTokens: 100,
	}
}

func TestExtract_ParsesIdentifiers(t *testing.T) {
	model := &fakeModel{responses: []fakeResponse{
		{content: `{"cad_numbers": ["23-0045123"], "case_numbers": ["23-1234567", "23-1234567"]}`},
	}}
	fb := NewWithModel(testConfig(), model)

	result, err := fb.Extract(context.Background(), "Officers responded to a disturbance.")
	require.NoError(t, err)

	assert.Equal(t, []string{"23-0045123"}, result.CADNumbers)
	assert.Equal(t, []string{"23-1234567"}, result.CaseNumbers)
	assert.Equal(t, 1, model.calls)
}

func TestExtract_EmptyResultIsNotAnError(t *testing.T) {
	// A well-formed empty response is a confirmed negative, not a
	// failure: the caller records extraction_method "llm" for it.
	model := &fakeModel{responses: []fakeResponse{
		{content: `{"cad_numbers": [], "case_numbers": []}`},
	}}
	fb := NewWithModel(testConfig(), model)

	result, err := fb.Extract(context.Background(), "A community event announcement.")
	require.NoError(t, err)

	assert.Empty(t, result.CADNumbers)
	assert.Empty(t, result.CaseNumbers)
	assert.NotNil(t, result.CADNumbers)
	assert.NotNil(t, result.CaseNumbers)
}

func TestExtract_StripsCodeFences(t *testing.T) {
	model := &fakeModel{responses: []fakeResponse{
		{content: "```json\n{\"cad_numbers\": [\"E2301234567\"], \"case_numbers\": []}\n```"},
	}}
	fb := NewWithModel(testConfig(), model)

	result, err := fb.Extract(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []string{"E2301234567"}, result.CADNumbers)
}

func TestExtract_RetriesTransientFailure(t *testing.T) {
	model := &fakeModel{responses: []fakeResponse{
		{err: errors.New("connection refused")},
		{content: `{"cad_numbers": [], "case_numbers": ["24-5555"]}`},
	}}
	fb := NewWithModel(testConfig(), model)

	result, err := fb.Extract(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []string{"24-5555"}, result.CaseNumbers)
	assert.Equal(t, 2, model.calls)
}

func TestExtract_ExhaustsRetries(t *testing.T) {
	model := &fakeModel{responses: []fakeResponse{
		{err: errors.New("connection refused")},
	}}
	fb := NewWithModel(testConfig(), model)

	_, err := fb.Extract(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 attempts")
	assert.Equal(t, 2, model.calls)
}

func TestExtract_MalformedResponseRetried(t *testing.T) {
	model := &fakeModel{responses: []fakeResponse{
		{content: "Sure! Here are the identifiers you asked for."},
		{content: `{"cad_numbers": [], "case_numbers": []}`},
	}}
	fb := NewWithModel(testConfig(), model)

	_, err := fb.Extract(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, 2, model.calls)
}

func TestExtract_AppliesTokenCap(t *testing.T) {
	model := &fakeModel{responses: []fakeResponse{
		{content: `{"cad_numbers": [], "case_numbers": []}`},
	}}
	config := testConfig()
	config.MaxTokens = 512
	fb := NewWithModel(config, model)

	_, err := fb.Extract(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, 512, model.lastOpts.MaxTokens)
}

func TestExtract_TimeoutBoundsEachCall(t *testing.T) {
	model := &fakeModel{
		responses: []fakeResponse{{content: "{}"}},
		block:     true,
	}
	config := testConfig()
	config.Timeout = 20 * time.Millisecond
	config.Retries = 1
	fb := NewWithModel(config, model)

	_, err := fb.Extract(context.Background(), "text")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, model.calls)
}

func TestExtract_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fb := NewWithModel(testConfig(), &fakeModel{responses: []fakeResponse{{content: "{}"}}})
	_, err := fb.Extract(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEligible(t *testing.T) {
	fb := NewWithModel(testConfig(), &fakeModel{responses: []fakeResponse{{content: "{}"}}})

	pressRelease := &models.Document{DocumentType: models.TypePressRelease}
	assert.True(t, fb.Eligible(pressRelease, 150))
	assert.False(t, fb.Eligible(pressRelease, 100), "at the threshold is not over it")
	assert.False(t, fb.Eligible(pressRelease, 40))

	withIDs := &models.Document{
		DocumentType: models.TypePressRelease,
		CaseNumbers:  []string{"23-1234"},
	}
	assert.False(t, fb.Eligible(withIDs, 150), "regex already matched")

	incident := &models.Document{DocumentType: models.TypeIncidentReport}
	assert.False(t, fb.Eligible(incident, 150), "structured types never use the fallback")
}

func TestParseResult_NilResponse(t *testing.T) {
	_, err := parseResult(nil)
	assert.Error(t, err)

	_, err = parseResult(&llms.ContentResponse{})
	assert.Error(t, err)
}
