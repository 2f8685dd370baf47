// Package ollama implements the local vision-model recognition backends.
// Model weights live in an Ollama server on this machine; loading them is
// the most expensive operation in the system (seconds to tens of seconds,
// substantial accelerator memory), so the lifecycle here is explicit:
// construction warms the model up, Release evicts its weights.
package ollama

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

	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/providers"
)

const (
	// MethodPrimary tags results from the primary (richer) local model.
	MethodPrimary = "llava_local"
	// MethodSecondary tags results from the secondary (smaller) local model.
	MethodSecondary = "moondream_local"

	// DefaultPrimaryModel is the richer local vision model tried first.
	DefaultPrimaryModel = "llama3.2-vision"
	// DefaultSecondaryModel is the small fallback vision model.
	DefaultSecondaryModel = "moondream"

	defaultURL = "http://localhost:11434"
)

// Provider runs one local vision model. Two instances with different model
// tags form the local fallback pair.
type Provider struct {
	name       string
	method     string
	model      string
	baseURL    string
	confidence float64
	client     *http.Client
	loaded     bool
}

type generateRequest struct {
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt,omitempty"`
	Images    []string       `json:"images,omitempty"`
	Stream    bool           `json:"stream"`
	KeepAlive any            `json:"keep_alive,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// New constructs a local provider and loads the model's weights into
// accelerator memory via an empty-prompt warm-up request. A construction
// failure (server unreachable, model missing, out of memory at load) is
// permanent for the process: the coordinator will not retry it.
func New(name, method, model string, confidenceBaseline float64) (*Provider, error) {
	baseURL := os.Getenv("OLLAMA_URL")
	if baseURL == "" {
		baseURL = defaultURL
	}

	p := &Provider{
		name:       name,
		method:     method,
		model:      model,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		confidence: confidenceBaseline,
		// Local inference on large images can take minutes on CPU.
		client: &http.Client{Timeout: 300 * time.Second},
	}

	if err := p.load(); err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", model, err)
	}

	return p, nil
}

// NewPrimary constructs the richer local model provider.
func NewPrimary(model string) (*Provider, error) {
	if model == "" {
		model = DefaultPrimaryModel
	}
	return New("llava", MethodPrimary, model, 0.85)
}

// NewSecondary constructs the small fallback model provider.
func NewSecondary(model string) (*Provider, error) {
	if model == "" {
		model = DefaultSecondaryModel
	}
	return New("moondream", MethodSecondary, model, 0.80)
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return p.name
}

// load issues a promptless generate request, which makes the server pull the
// model into memory without producing output.
func (p *Provider) load() error {
	body, err := json.Marshal(generateRequest{Model: p.model, Stream: false})
	if err != nil {
		return err
	}

	resp, err := p.client.Post(p.baseURL+"/api/generate", "application/json", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama load error: %d - %s", resp.StatusCode, providers.TruncateBody(respBody))
	}

	p.loaded = true
	return nil
}

// Recognize transcribes the image with the local model. Failures are folded
// into the result; the provider itself stays usable.
func (p *Provider) Recognize(ctx context.Context, imagePath string) providers.Result {
	imageBase64, _, err := providers.EncodeImage(imagePath)
	if err != nil {
		return providers.Failure(p.method, err)
	}

	reqBody := generateRequest{
		Model:  p.model,
		Prompt: providers.TranscriptionPrompt,
		Images: []string{imageBase64},
		Stream: false,
		Options: map[string]any{
			"temperature": 0.1,
		},
	}

	requestJSON, err := json.Marshal(reqBody)
	if err != nil {
		return providers.Failure(p.method, fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewBuffer(requestJSON))
	if err != nil {
		return providers.Failure(p.method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return providers.Failure(p.method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return providers.Failure(p.method, fmt.Errorf("ollama API error: %d - %s", resp.StatusCode, providers.TruncateBody(body)))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return providers.Failure(p.method, err)
	}

	// A generate call reloads evicted weights server-side.
	p.loaded = true

	text := providers.CleanResponse(genResp.Response)
	if text == "" {
		return providers.Failure(p.method, fmt.Errorf("empty transcription from %s", p.model))
	}

	return providers.Result{
		Text:       text,
		Confidence: providers.EstimateConfidence(p.confidence, text),
		Method:     p.method,
	}
}

// Release evicts the model's weights from accelerator memory by sending a
// zero keep-alive request. Idempotent: releasing an already-evicted model is
// a no-op. The provider remains constructed and can be used again; the
// server reloads the weights on the next generate call.
func (p *Provider) Release() error {
	if !p.loaded {
		return nil
	}

	body, err := json.Marshal(generateRequest{Model: p.model, Stream: false, KeepAlive: 0})
	if err != nil {
		return err
	}

	resp, err := p.client.Post(p.baseURL+"/api/generate", "application/json", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama unload error: %d - %s", resp.StatusCode, providers.TruncateBody(respBody))
	}

	p.loaded = false
	return nil
}

// Loaded reports whether the model's weights are believed resident.
func (p *Provider) Loaded() bool {
	return p.loaded
}
