package embeddings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fixloop/fixloop/internal/knowledge"
)

// Analysis is the structured result of analyzing user input: symptom tags
// extracted from the text, visual tags and a caption when an image was
// supplied, and any facts detected with a confidence (brand, model, OS).
type Analysis struct {
	Symptoms       []knowledge.Symptom `json:"symptoms"`
	VisualSymptoms []knowledge.Symptom `json:"visual_symptoms"`
	Caption        string              `json:"caption"`
	KnownFacts     map[string]float64  `json:"known_facts"`
}

// AllSymptoms returns text-derived and visual symptoms as one list.
func (a Analysis) AllSymptoms() []knowledge.Symptom {
	return append(append([]knowledge.Symptom{}, a.Symptoms...), a.VisualSymptoms...)
}

// Analyzer turns raw user input (free text plus an optional image) into an
// Analysis. This is an external capability: the diagnostic core treats it
// as opaque and never proceeds past initialization without it.
type Analyzer interface {
	Analyze(ctx context.Context, text, imageURL string) (Analysis, error)
}

const analyzePrompt = `You are the input analyzer of a device repair assistant.
Extract diagnostic signals from the user's problem description%s.
Respond with JSON only, in this shape:
{"symptoms": ["snake_case_tag", ...], "visual_symptoms": ["tag", ...], "caption": "one sentence image description or empty", "known_facts": {"brand": 0.0-1.0, "model": 0.0-1.0}}
Use short snake_case symptom tags (e.g. "blue_screen", "no_power", "fan_loud").
Only include known_facts entries you actually detected, with your confidence.`

// OpenAIAnalyzer extracts symptoms and facts using an OpenAI chat model,
// with vision input when an image URL is provided.
type OpenAIAnalyzer struct {
	client *openai.Client
	model  string
}

// NewOpenAIAnalyzer creates an analyzer using the given chat model (a
// vision-capable model is required for image input).
func NewOpenAIAnalyzer(apiKey, model string) *OpenAIAnalyzer {
	return &OpenAIAnalyzer{client: openai.NewClient(apiKey), model: model}
}

func (a *OpenAIAnalyzer) Analyze(ctx context.Context, text, imageURL string) (Analysis, error) {
	imageNote := ""
	if imageURL != "" {
		imageNote = " and the attached photo of the device"
	}

	userParts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: text},
	}
	if imageURL != "" {
		userParts = append(userParts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: imageURL},
		})
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(analyzePrompt, imageNote)},
			{Role: openai.ChatMessageRoleUser, MultiContent: userParts},
		},
		Temperature: 0,
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("%w: openai analyze: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return Analysis{}, fmt.Errorf("%w: openai analyze: empty response", ErrUnavailable)
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var analysis Analysis
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &analysis); err != nil {
		return Analysis{}, fmt.Errorf("parsing analyzer response: %w", err)
	}
	return analysis, nil
}
