// Package groq implements the remote vision-language recognition backend
// using Groq's OpenAI-compatible chat completions API.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/samaR7Q/Handwritten-images-to-word-docx/internal/utils"
	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/providers"
)

const (
	// Method tags results produced by this backend.
	Method = "groq_vision"

	defaultBaseURL = "https://api.groq.com/openai/v1"
	defaultModel   = "meta-llama/llama-4-scout-17b-16e-instruct"

	// Generation APIs do not emit calibrated confidence; vision models are
	// reliable enough on handwriting to warrant a fixed high estimate.
	fixedConfidence = 0.95
)

// Provider calls a hosted vision model over HTTP. It holds no expensive
// local resources; Release is a no-op.
type Provider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// Response is the subset of a chat completion reply we consume.
type Response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// New constructs the remote provider. Construction fails when no API key is
// configured; the owning coordinator records that as permanently unavailable
// for the rest of the process.
func New(model string) (*Provider, error) {
	apiKey := os.Getenv("GROQ_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GROQ_API_KEY environment variable not set")
	}

	baseURL := os.Getenv("GROQ_API_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}

	return &Provider{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		// Explicit finite timeout so a hung request cannot stall the
		// whole pipeline on the transport default.
		client: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "groq"
}

// Recognize sends the image to the vision model and returns its
// transcription. All failures are folded into the result.
func (p *Provider) Recognize(ctx context.Context, imagePath string) providers.Result {
	imageBase64, mimeType, err := providers.EncodeImage(imagePath)
	if err != nil {
		return providers.Failure(Method, err)
	}

	requestBody := map[string]any{
		"model": p.model,
		"messages": []map[string]any{
			{
				"role": "user",
				"content": []map[string]any{
					{
						"type": "text",
						"text": providers.TranscriptionPrompt,
					},
					{
						"type": "image_url",
						"image_url": map[string]any{
							"url": fmt.Sprintf("data:%s;base64,%s", mimeType, imageBase64),
						},
					},
				},
			},
		},
		"temperature": 0.1,
		"max_tokens":  4000,
	}

	requestJSON, err := json.Marshal(requestBody)
	if err != nil {
		return providers.Failure(Method, fmt.Errorf("failed to marshal request: %w", err))
	}

	url := p.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestJSON))
	if err != nil {
		return providers.Failure(Method, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return providers.Failure(Method, utils.MaskSensitiveError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return providers.Failure(Method, fmt.Errorf("groq API error: %d - %s", resp.StatusCode, providers.TruncateBody(body)))
	}

	var groqResp Response
	if err := json.NewDecoder(resp.Body).Decode(&groqResp); err != nil {
		return providers.Failure(Method, err)
	}

	if len(groqResp.Choices) == 0 {
		return providers.Failure(Method, fmt.Errorf("no choices in groq response"))
	}

	text := providers.CleanResponse(groqResp.Choices[0].Message.Content)
	if text == "" {
		return providers.Failure(Method, fmt.Errorf("empty transcription from groq"))
	}

	return providers.Result{
		Text:       text,
		Confidence: fixedConfidence,
		Method:     Method,
	}
}

// Release implements the provider lifecycle; nothing is held locally.
func (p *Provider) Release() error {
	return nil
}
