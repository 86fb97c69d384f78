package triage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/news-intel/internal/model"
	"github.com/sells-group/news-intel/internal/textai"
)

type mockCompleter struct {
	mock.Mock
}

func (m *mockCompleter) CompleteJSON(ctx context.Context, req textai.Request, out any) error {
	args := m.Called(ctx, req)
	if reply := args.String(0); reply != "" {
		if err := textai.DecodeObject(reply, out); err != nil {
			return err
		}
	}
	return args.Error(1)
}

const fullReply = `Here is the analysis:
{
  "isRelevant": true,
  "relevanceScore": 132,
  "relevanceReason": "New plant with automation spend",
  "categories": ["expansion", "automation", "space_travel", "expansion"],
  "sentiment": "Positive",
  "sentimentScore": 3,
  "urgency": "7",
  "extractedEntities": {
    "companies": [{"name": "FANUC", "confidence": 0.9}, "Ohio Robotics Corp", {"confidence": 0.5}],
    "people": ["Jane Doe"],
    "locations": ["Ohio"],
    "amounts": ["$200M"]
  },
  "summary": "FANUC opens a plant.",
  "keyPoints": ["400 jobs"]
}
Let me know if you need more.`

func TestClassify_ParsesAndClamps(t *testing.T) {
	ai := &mockCompleter{}
	ai.On("CompleteJSON", mock.Anything, mock.MatchedBy(func(req textai.Request) bool {
		return req.Phase == "triage" && req.Model == "haiku" &&
			len(req.System) > 0 && len(req.Prompt) > 0
	})).Return(fullReply, nil)

	c := NewClassifier(ai, nil, Options{Model: "haiku"})
	res := c.Classify(context.Background(), Input{Title: "FANUC Opens New Robotics Assembly Plant in Ohio", Source: "Reuters"})

	assert.True(t, res.IsRelevant)
	assert.Equal(t, 100, res.RelevanceScore)
	assert.Equal(t, []model.Category{model.CategoryExpansion, model.CategoryAutomation}, res.Categories)
	assert.Equal(t, model.SentimentPositive, res.Sentiment)
	assert.Equal(t, 1.0, res.SentimentScore)
	assert.Equal(t, 7, res.Urgency)
	require.Len(t, res.ExtractedEntities.Companies, 2)
	assert.Equal(t, model.CompanyMention{Name: "FANUC", Confidence: 0.9}, res.ExtractedEntities.Companies[0])
	assert.Equal(t, model.CompanyMention{Name: "Ohio Robotics Corp", Confidence: 1}, res.ExtractedEntities.Companies[1])
	assert.Equal(t, []string{"$200M"}, res.ExtractedEntities.Amounts)
	assert.False(t, res.Fallback)
}

func TestClassify_CapabilityFailureReturnsDefault(t *testing.T) {
	ai := &mockCompleter{}
	ai.On("CompleteJSON", mock.Anything, mock.Anything).Return("", context.DeadlineExceeded)

	res := NewClassifier(ai, nil, Options{}).Classify(context.Background(), Input{Title: "x"})
	assert.False(t, res.IsRelevant)
	assert.Equal(t, 0, res.RelevanceScore)
	assert.Empty(t, res.ExtractedEntities.Companies)
	assert.Equal(t, model.SentimentNeutral, res.Sentiment)
	assert.True(t, res.Fallback)
}

func TestClassify_MalformedReplyReturnsDefault(t *testing.T) {
	ai := &mockCompleter{}
	ai.On("CompleteJSON", mock.Anything, mock.Anything).Return("I cannot help with that.", nil)

	res := NewClassifier(ai, nil, Options{}).Classify(context.Background(), Input{Title: "x"})
	assert.Equal(t, model.TriageDefault(), res)
}

func TestClassify_MissingRequiredFieldReturnsDefault(t *testing.T) {
	ai := &mockCompleter{}
	ai.On("CompleteJSON", mock.Anything, mock.Anything).Return(`{"relevanceScore": 90, "sentiment": "positive"}`, nil)

	res := NewClassifier(ai, nil, Options{}).Classify(context.Background(), Input{Title: "x"})
	assert.Equal(t, model.TriageDefault(), res)
}

func TestClassify_NoCapabilityUsesHeuristic(t *testing.T) {
	c := NewClassifier(nil, NewHeuristic([]string{"reuters"}), Options{})
	res := c.Classify(context.Background(), Input{
		Title:   "FANUC Opens New Robotics Assembly Plant in Ohio",
		Content: "The $200M expansion will add 400 jobs.",
		Source:  "Reuters",
	})
	assert.True(t, res.IsRelevant)
	assert.GreaterOrEqual(t, res.RelevanceScore, 70)
	assert.Contains(t, res.Categories, model.CategoryExpansion)
	assert.Equal(t, model.SentimentPositive, res.Sentiment)
}

func TestClassify_TruncatesContent(t *testing.T) {
	ai := &mockCompleter{}
	ai.On("CompleteJSON", mock.Anything, mock.MatchedBy(func(req textai.Request) bool {
		return len(req.Prompt) < 200
	})).Return(`{"isRelevant": false, "relevanceScore": 10}`, nil)

	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'a'
	}
	res := NewClassifier(ai, nil, Options{MaxContentChars: 100}).Classify(context.Background(), Input{Content: string(long)})
	assert.Equal(t, 10, res.RelevanceScore)
	ai.AssertExpectations(t)
}

func TestParse_Defaults(t *testing.T) {
	res, ok := Parse(map[string]any{"isRelevant": "true", "relevanceScore": "55.6"})
	require.True(t, ok)
	assert.Equal(t, 56, res.RelevanceScore)
	assert.Equal(t, 1, res.Urgency)
	assert.Equal(t, model.SentimentNeutral, res.Sentiment)
	assert.NotNil(t, res.Categories)
	assert.NotNil(t, res.ExtractedEntities.People)

	_, ok = Parse(map[string]any{"isRelevant": true, "relevanceScore": "high"})
	assert.False(t, ok)

	res, ok = Parse(map[string]any{"isRelevant": false, "relevanceScore": -20.0, "urgency": 0.0, "sentimentScore": -4.0, "sentiment": "mixed"})
	require.True(t, ok)
	assert.Equal(t, 0, res.RelevanceScore)
	assert.Equal(t, 1, res.Urgency)
	assert.Equal(t, -1.0, res.SentimentScore)
	assert.Equal(t, model.SentimentNeutral, res.Sentiment)
}

func TestClassify_ErrorAfterPartialDecode(t *testing.T) {
	ai := &mockCompleter{}
	ai.On("CompleteJSON", mock.Anything, mock.Anything).Return(`{"isRelevant": true, "relevanceScore": 90}`, errors.New("late failure"))

	res := NewClassifier(ai, nil, Options{}).Classify(context.Background(), Input{})
	assert.True(t, res.Fallback)
}
