package scanning

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// Vertex implements Backend using Gemini on Vertex AI.
// Authentication uses Application Default Credentials, so there is no key pool.
type Vertex struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewVertex creates a Vertex AI backend for a project and region
func NewVertex(ctx context.Context, projectID, region, modelName string) (*Vertex, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("vertex project and region are required")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("creating vertex client: %w", err)
	}

	cfg := DefaultGenerationConfig
	model := client.GenerativeModel(modelName)
	model.SetTemperature(cfg.Temperature)
	model.SetTopP(cfg.TopP)
	model.SetTopK(cfg.TopK)
	model.SetMaxOutputTokens(cfg.MaxOutputTokens)

	return &Vertex{client: client, model: model}, nil
}

// Generate sends all pages and the prompt as a single request
func (v *Vertex) Generate(ctx context.Context, pages []PageImage, prompt Prompt) (string, error) {
	resp, err := v.model.GenerateContent(ctx, vertexParts(pages, prompt)...)
	if err != nil {
		return "", &BackendUnavailableError{Backend: "vertex", Err: fmt.Errorf("generating content: %w", err)}
	}

	text, ok := vertexText(resp)
	if !ok || text == "" {
		return "", &BackendUnavailableError{Backend: "vertex", Err: ErrEmptyResponse}
	}
	return text, nil
}

// vertexParts builds the request parts: every page in order, then the prompt
func vertexParts(pages []PageImage, prompt Prompt) []genai.Part {
	parts := make([]genai.Part, 0, len(pages)+1)
	for _, page := range pages {
		parts = append(parts, genai.ImageData(imageFormat(page.MIMEType), page.Data))
	}
	return append(parts, genai.Text(prompt.Text))
}

// vertexText concatenates the text parts of the first candidate
func vertexText(resp *genai.GenerateContentResponse) (string, bool) {
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

// Close closes the Vertex client
func (v *Vertex) Close() error {
	return v.client.Close()
}
