package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	cherr "github.com/chronolab/chrono/pkg/errors"
	"github.com/chronolab/chrono/pkg/retry"
)

// GeminiGenerator implements Generator on the Gemini API using JSON response
// schemas, so the model output is validated server-side before decoding.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	log    *zap.Logger
}

// NewGeminiGenerator creates a generator bound to one Gemini model.
func NewGeminiGenerator(ctx context.Context, apiKey, model string, log *zap.Logger) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GeminiGenerator{client: client, model: model, log: log}, nil
}

// Generate runs one structured generation call with the request's budget.
// Transient failures (rate limits, server errors) are retried inside the
// budget; everything else fails immediately.
func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (json.RawMessage, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, cherr.New(cherr.ErrInvalidInput, "empty prompt")
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Schema != nil {
		config.ResponseSchema = toGenaiSchema(req.Schema)
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}

	policy := retry.Generation()
	if req.MaxAttempts > 0 {
		policy.MaxAttempts = req.MaxAttempts
	}
	policy.OnRetry = func(attempt int, err error) {
		g.log.Warn("generation retry",
			zap.String("model", g.model),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}

	return retry.Do(ctx, func() (json.RawMessage, error) {
		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
		if err != nil {
			return nil, classifyGenaiError(err)
		}
		text := resp.Text()
		if strings.TrimSpace(text) == "" {
			return nil, cherr.New(cherr.ErrGenerationFailed, "empty model response")
		}
		if !json.Valid([]byte(text)) {
			return nil, cherr.New(cherr.ErrSchemaDecode, "model response is not valid JSON")
		}
		return json.RawMessage(text), nil
	}, policy)
}

// Close releases the underlying client.
func (g *GeminiGenerator) Close() error {
	return nil
}

// classifyGenaiError maps API failures onto the taxonomy so the retry
// executor can tell transient from permanent.
func classifyGenaiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return cherr.Wrap(err, cherr.ErrRateLimit)
		case apiErr.Code >= 500:
			return cherr.Wrap(err, cherr.ErrConnectionFailed)
		default:
			return cherr.Wrap(err, cherr.ErrSchemaDecode)
		}
	}
	return cherr.Wrap(err, cherr.ErrGenerationFailed)
}

// toGenaiSchema converts the neutral schema tree to the Gemini schema type.
func toGenaiSchema(s *Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
	}
	switch s.Type {
	case "object":
		out.Type = genai.TypeObject
	case "array":
		out.Type = genai.TypeArray
	case "string":
		out.Type = genai.TypeString
	case "integer":
		out.Type = genai.TypeInteger
	case "number":
		out.Type = genai.TypeNumber
	case "boolean":
		out.Type = genai.TypeBoolean
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	if s.Items != nil {
		out.Items = toGenaiSchema(s.Items)
	}
	return out
}
