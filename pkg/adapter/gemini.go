package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// Gemini is the text generation backend
type Gemini interface {
	// GenerateContent runs a single generation with the given model id
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	// ListModels returns every model visible to the credentials
	ListModels(ctx context.Context) ([]*genai.Model, error)
}

type GeminiClient struct {
	client *genai.Client
}

type geminiSettings struct {
	apiKey   string
	project  string
	location string
}

type GeminiOption func(*geminiSettings)

// WithAPIKey switches the client to the Gemini Developer API
func WithAPIKey(apiKey string) GeminiOption {
	return func(s *geminiSettings) {
		s.apiKey = apiKey
	}
}

// WithVertexAI switches the client to Vertex AI in the given project and location
func WithVertexAI(projectID, location string) GeminiOption {
	return func(s *geminiSettings) {
		s.project = projectID
		s.location = location
	}
}

func NewGemini(ctx context.Context, opts ...GeminiOption) (*GeminiClient, error) {
	var s geminiSettings
	for _, opt := range opts {
		opt(&s)
	}

	cc := &genai.ClientConfig{}
	switch {
	case s.apiKey != "":
		cc.APIKey = s.apiKey
		cc.Backend = genai.BackendGeminiAPI
	case s.project != "":
		cc.Project = s.project
		cc.Location = s.location
		cc.Backend = genai.BackendVertexAI
	default:
		return nil, goerr.New("either API key or Vertex AI project is required")
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client", goerr.V("backend", cc.Backend))
	}

	return &GeminiClient{client: client}, nil
}

func (g *GeminiClient) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content", goerr.V("model", model))
	}
	return resp, nil
}

func (g *GeminiClient) ListModels(ctx context.Context) ([]*genai.Model, error) {
	var models []*genai.Model
	for m, err := range g.client.Models.All(ctx) {
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list models")
		}
		models = append(models, m)
	}
	return models, nil
}
