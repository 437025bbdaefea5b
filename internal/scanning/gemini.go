package scanning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is the model used when none is configured
const DefaultGeminiModel = "gemini-1.5-pro"

// Gemini implements Backend using Google Gemini with a pool of API keys.
// One client is created per key; each call picks a key through the selector.
type Gemini struct {
	clients   map[string]*genai.Client
	pool      *CredentialPool
	selector  CredentialSelector
	modelName string
	config    GenerationConfig
}

// GeminiOption configures a Gemini backend
type GeminiOption func(*Gemini)

// WithSelector replaces the uniform random credential selection
func WithSelector(sel CredentialSelector) GeminiOption {
	return func(g *Gemini) {
		if sel != nil {
			g.selector = sel
		}
	}
}

// WithGeminiModel sets the model name
func WithGeminiModel(name string) GeminiOption {
	return func(g *Gemini) {
		if name != "" {
			g.modelName = name
		}
	}
}

// NewGemini creates a new Gemini backend over the given credential pool
func NewGemini(ctx context.Context, pool *CredentialPool, opts ...GeminiOption) (*Gemini, error) {
	if pool == nil || pool.Len() == 0 {
		return nil, ErrNoCredentials
	}

	g := &Gemini{
		clients:   make(map[string]*genai.Client, pool.Len()),
		pool:      pool,
		selector:  RandomSelector{},
		modelName: DefaultGeminiModel,
		config:    DefaultGenerationConfig,
	}
	for _, opt := range opts {
		opt(g)
	}

	for _, key := range pool.Keys() {
		if _, ok := g.clients[key]; ok {
			continue
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(key))
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("creating gemini client: %w", err)
		}
		g.clients[key] = client
	}

	return g, nil
}

// Generate sends all pages and the prompt as a single request
func (g *Gemini) Generate(ctx context.Context, pages []PageImage, prompt Prompt) (string, error) {
	client := g.clients[g.pool.Pick(g.selector)]

	model := client.GenerativeModel(g.modelName)
	model.SetTemperature(g.config.Temperature)
	model.SetTopP(g.config.TopP)
	model.SetTopK(g.config.TopK)
	model.SetMaxOutputTokens(g.config.MaxOutputTokens)

	resp, err := model.GenerateContent(ctx, geminiParts(pages, prompt)...)
	if err != nil {
		return "", &BackendUnavailableError{Backend: "gemini", Err: fmt.Errorf("generating content: %w", err)}
	}

	text, ok := geminiText(resp)
	if !ok {
		return "", &BackendUnavailableError{Backend: "gemini", Err: ErrEmptyResponse}
	}
	return text, nil
}

// geminiParts lists the page images in order, followed by the prompt text
func geminiParts(pages []PageImage, prompt Prompt) []genai.Part {
	parts := make([]genai.Part, 0, len(pages)+1)
	for _, page := range pages {
		// genai.ImageData expects just the format suffix (e.g., "png"), not the full MIME type
		parts = append(parts, genai.ImageData(imageFormat(page.MIMEType), page.Data))
	}
	return append(parts, genai.Text(prompt.Text))
}

// geminiText concatenates the text parts of the first candidate
func geminiText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", false
	}

	var b strings.Builder
	found := false
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
			found = true
		}
	}
	return b.String(), found
}

func imageFormat(mimeType string) string {
	format := strings.TrimPrefix(strings.ToLower(mimeType), "image/")
	if format == "" {
		return "png"
	}
	return format
}

// Close closes every client
func (g *Gemini) Close() error {
	var errs []error
	for _, client := range g.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
