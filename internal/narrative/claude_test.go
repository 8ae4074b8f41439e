package narrative

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edusignal/exam-intel/internal/model"
	"github.com/edusignal/exam-intel/pkg/anthropic"
)

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 100, OutputTokens: 50},
	}
}

const validSubjectJSON = `{
	"performance_summary": "Performance in Math is steady in the medium band.",
	"improvement_plan": "Practice past papers weekly and review errors.",
	"motivation_note": "Keep going, the trend is positive.",
	"confidence_note": "medium"
}`

func testGenerator(client anthropic.Client) *ClaudeGenerator {
	return NewClaudeGenerator(client, ClaudeOptions{
		Model:             "claude-haiku-4-5-20251001",
		RequestsPerSecond: 1000, // don't throttle tests
	})
}

func TestClaudeGenerator_SubjectSummary(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(validSubjectJSON), nil).Once()

	gen := testGenerator(client)
	out, err := gen.SubjectSummary(context.Background(), sampleInsight())

	require.NoError(t, err)
	assert.Equal(t, "S001", out.StudentID)
	assert.Equal(t, "Math", out.Subject)
	assert.Equal(t, "Practice past papers weekly and review errors.", out.ImprovementPlan)
	assert.Equal(t, model.ConfidenceMedium, out.Confidence)
	assert.Equal(t, "claude", out.Provider)
	assert.False(t, out.Fallback)
	client.AssertExpectations(t)
}

func TestClaudeGenerator_RetriesOnSchemaViolation(t *testing.T) {
	client := &mockAnthropicClient{}
	// Missing fields violate the schema, then a valid response lands.
	client.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(`{"performance_summary": "only this"}`), nil).Once()
	client.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(validSubjectJSON), nil).Once()

	gen := testGenerator(client)
	out, err := gen.SubjectSummary(context.Background(), sampleInsight())

	require.NoError(t, err)
	assert.NotEmpty(t, out.MotivationNote)
	client.AssertExpectations(t)
}

func TestClaudeGenerator_ExhaustsRetries(t *testing.T) {
	client := &mockAnthropicClient{}
	// MaxRetries defaults to 2, so three attempts total.
	client.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse("not json at all"), nil).Times(3)

	gen := testGenerator(client)
	_, err := gen.SubjectSummary(context.Background(), sampleInsight())

	assert.Error(t, err)
	client.AssertExpectations(t)
}

func TestClaudeGenerator_InvalidConfidenceRejected(t *testing.T) {
	client := &mockAnthropicClient{}
	bad := `{
		"performance_summary": "x",
		"improvement_plan": "y",
		"motivation_note": "z",
		"confidence_note": "extremely high"
	}`
	client.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(bad), nil).Times(3)

	gen := testGenerator(client)
	_, err := gen.SubjectSummary(context.Background(), sampleInsight())

	assert.Error(t, err)
}

func TestClaudeGenerator_StudentOverview(t *testing.T) {
	client := &mockAnthropicClient{}
	overviewJSON := `{
		"overall_summary": "Doing well across the board.",
		"key_strengths": "Math and Art.",
		"areas_to_improve": "Physics needs structured revision.",
		"recommended_next_steps": "Weekly practice schedule.",
		"confidence_note": "high"
	}`
	client.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(overviewJSON), nil).Once()

	gen := testGenerator(client)
	out, err := gen.StudentOverview(context.Background(), OverviewRequest{
		StudentID: "S001",
		Grade:     10,
		Insights:  []model.SubjectInsight{sampleInsight()},
	})

	require.NoError(t, err)
	assert.Equal(t, "Doing well across the board.", out.OverallSummary)
	assert.Equal(t, model.ConfidenceHigh, out.Confidence)
}

func TestClaudeGenerator_AccumulatesUsage(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.AnythingOfType("anthropic.MessageRequest")).
		Return(textResponse(validSubjectJSON), nil).Times(2)

	gen := testGenerator(client)
	_, err := gen.SubjectSummary(context.Background(), sampleInsight())
	require.NoError(t, err)
	_, err = gen.SubjectSummary(context.Background(), sampleInsight())
	require.NoError(t, err)

	usage := gen.Usage()
	assert.Equal(t, int64(200), usage.InputTokens)
	assert.Equal(t, int64(100), usage.OutputTokens)
	assert.Equal(t, "claude-haiku-4-5-20251001", gen.Model())
}
