package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"

	"media-analysis-pipeline/internal/domain"
	"media-analysis-pipeline/internal/domain/model"
	"media-analysis-pipeline/internal/domain/ports/adapter"
)

var (
	_ adapter.TextAnalysisAdapter = (*OpenAIAdapter)(nil)
	_ adapter.EmbeddingAdapter    = (*OpenAIAdapter)(nil)
)

// Micro-unit pricing. Chat analysis bills prompt+completion tokens,
// embeddings bill input tokens only.
const (
	analysisPerTokenCostMicros  = 1
	embeddingPerTokenCostMicros = 1
)

// maxInputTokens bounds a single provider call. Oversized input is a
// permanent failure: no retry can shrink it.
const maxInputTokens = 8192

// OpenAIAdapter covers the text-analysis operations (chat completions with
// JSON answers) and embedding generation.
type OpenAIAdapter struct {
	client         openai.Client
	chatModel      string
	embeddingModel string
}

func NewOpenAIAdapter(apiKey, chatModel, embeddingModel string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}
	if embeddingModel == "" {
		embeddingModel = "text-embedding-3-small"
	}
	return &OpenAIAdapter{
		client:         openai.NewClient(option.WithAPIKey(apiKey)),
		chatModel:      chatModel,
		embeddingModel: embeddingModel,
	}, nil
}

func (o *OpenAIAdapter) DetectSentiment(ctx context.Context, text string) (*adapter.SentimentResult, error) {
	const sys = `Classify the sentiment of the user's text. Respond with JSON only:
{"sentiment":"positive|negative|neutral|mixed","score":0.0}`
	var out struct {
		Sentiment string  `json:"sentiment"`
		Score     float64 `json:"score"`
	}
	cost, err := o.analyzeJSON(ctx, sys, text, &out)
	if err != nil {
		return nil, err
	}
	return &adapter.SentimentResult{Sentiment: out.Sentiment, Score: out.Score, CostMicros: cost}, nil
}

func (o *OpenAIAdapter) DetectEntities(ctx context.Context, text string) (*adapter.EntitiesResult, error) {
	const sys = `Extract named entities from the user's text. Respond with JSON only:
{"entities":[{"text":"...","kind":"person|org|location|date|other"}]}`
	var out struct {
		Entities []model.Entity `json:"entities"`
	}
	cost, err := o.analyzeJSON(ctx, sys, text, &out)
	if err != nil {
		return nil, err
	}
	return &adapter.EntitiesResult{Entities: out.Entities, CostMicros: cost}, nil
}

func (o *OpenAIAdapter) DetectKeyPhrases(ctx context.Context, text string) (*adapter.KeyPhrasesResult, error) {
	const sys = `Extract the key phrases from the user's text. Respond with JSON only:
{"keyPhrases":["..."]}`
	var out struct {
		KeyPhrases []string `json:"keyPhrases"`
	}
	cost, err := o.analyzeJSON(ctx, sys, text, &out)
	if err != nil {
		return nil, err
	}
	return &adapter.KeyPhrasesResult{KeyPhrases: out.KeyPhrases, CostMicros: cost}, nil
}

func (o *OpenAIAdapter) DetectLanguage(ctx context.Context, text string) (*adapter.LanguageResult, error) {
	const sys = `Identify the language of the user's text. Respond with JSON only:
{"language":"<ISO 639-1 code>"}`
	var out struct {
		Language string `json:"language"`
	}
	cost, err := o.analyzeJSON(ctx, sys, text, &out)
	if err != nil {
		return nil, err
	}
	return &adapter.LanguageResult{Language: out.Language, CostMicros: cost}, nil
}

func (o *OpenAIAdapter) Embed(ctx context.Context, content, modelName string) (*adapter.EmbeddingVector, error) {
	if modelName == "" {
		modelName = o.embeddingModel
	}
	counted, err := preflight(content, modelName)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(content)},
		Model: openai.EmbeddingModel(modelName),
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Data) == 0 {
		return nil, domain.Transient("openai: empty embedding response")
	}

	tokens := int(resp.Usage.PromptTokens)
	if tokens == 0 {
		tokens = counted
	}
	return &adapter.EmbeddingVector{
		Vector:     resp.Data[0].Embedding,
		Model:      modelName,
		TokenCount: tokens,
		CostMicros: int64(tokens) * embeddingPerTokenCostMicros,
	}, nil
}

// analyzeJSON runs one chat completion and decodes the JSON reply into v.
// The input is token-counted locally first, both to reject oversized text
// before spending a provider call and as the cost estimate when the API
// omits usage numbers.
func (o *OpenAIAdapter) analyzeJSON(ctx context.Context, system, text string, v any) (int64, error) {
	counted, err := preflight(text, o.chatModel)
	if err != nil {
		return 0, err
	}
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(text),
		},
		Model: openai.ChatModel(o.chatModel),
	})
	if err != nil {
		return 0, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return 0, domain.Transient("openai: empty completion")
	}
	reply := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(stripFences(reply)), v); err != nil {
		return 0, domain.Transient("openai: malformed json reply: %v", err)
	}
	promptTokens := resp.Usage.PromptTokens
	if promptTokens == 0 {
		promptTokens = int64(counted)
	}
	cost := (promptTokens + resp.Usage.CompletionTokens) * analysisPerTokenCostMicros
	return cost, nil
}

// preflight counts the input locally before the provider call is spent.
func preflight(content, modelName string) (int, error) {
	tokens := countTokens(content, modelName)
	if tokens > maxInputTokens {
		return 0, domain.Permanent("input too large: %d tokens, limit is %d", tokens, maxInputTokens)
	}
	return tokens, nil
}

// classifyOpenAIError maps API status codes onto the retry taxonomy:
// 4xx (except 408/429) mean the request itself is bad.
func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return domain.WrapTransient(fmt.Errorf("%w: %v", domain.ErrRateLimited, err))
		case apiErr.StatusCode == 408:
			return domain.WrapTransient(err)
		case apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
			return domain.WrapPermanent(err)
		}
	}
	return domain.WrapTransient(err)
}

// countTokens is the local fallback when the API omits usage numbers.
func countTokens(content, modelName string) int {
	enc, err := tiktoken.EncodingForModel(modelName)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			// Rough whitespace estimate; only reached if the encoding
			// tables are unavailable.
			return len(strings.Fields(content))
		}
	}
	return len(enc.Encode(content, nil, nil))
}
