package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Ollama implements Backend using a local Ollama vision model
type Ollama struct {
	baseURL string
	model   string
	config  GenerationConfig
	client  *http.Client
}

// NewOllama creates a new Ollama backend.
// Recommended models for invoice reading:
//   - llava:1.6 (best balance of accuracy and speed)
//   - qwen2-vl:7b (good OCR capabilities)
//   - llava-phi3 (smaller, faster, but less accurate)
//
// The HTTP client has no timeout; bound calls through the context.
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   modelName,
		config:  DefaultGenerationConfig,
		client:  &http.Client{},
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p"`
	TopK        int32   `json:"top_k"`
	NumPredict  int32   `json:"num_predict"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Generate sends all pages and the prompt in a single chat message
func (o *Ollama) Generate(ctx context.Context, pages []PageImage, prompt Prompt) (string, error) {
	images := make([]string, 0, len(pages))
	for _, page := range pages {
		images = append(images, base64.StdEncoding.EncodeToString(page.Data))
	}

	reqBody := ollamaChatRequest{
		Model:  o.model,
		Stream: false,
		Messages: []ollamaMessage{
			{
				Role:    "system",
				Content: "You are an expert at reading invoices and extracting their data. You must carefully read all text in the images.",
			},
			{
				Role:    "user",
				Content: prompt.Text,
				Images:  images,
			},
		},
		Options: ollamaOptions{
			Temperature: o.config.Temperature,
			TopP:        o.config.TopP,
			TopK:        o.config.TopK,
			NumPredict:  o.config.MaxOutputTokens,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", o.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", &BackendUnavailableError{Backend: "ollama", Err: fmt.Errorf("calling ollama API: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &BackendUnavailableError{
			Backend: "ollama",
			Err:     fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", &BackendUnavailableError{Backend: "ollama", Err: fmt.Errorf("decoding response: %w", err)}
	}
	if chatResp.Message.Content == "" {
		return "", &BackendUnavailableError{Backend: "ollama", Err: ErrEmptyResponse}
	}

	return chatResp.Message.Content, nil
}

// Close closes the Ollama backend (no-op for HTTP client)
func (o *Ollama) Close() error {
	return nil
}
