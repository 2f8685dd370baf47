// Package correct performs LLM-based cleanup of recognized text: fixing OCR
// errors and structuring the notes into markdown. This collaborator is
// optional by contract; any failure degrades gracefully to returning the
// input unchanged, so the pipeline never loses text here.
package correct

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/providers"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"
	defaultModel   = "llama-3.3-70b-versatile"

	// Inputs shorter than this carry too little signal to correct.
	minInputLength = 10
)

// Corrector calls a hosted text model for correction and structuring.
// A zero-credential corrector is valid and passes text through unchanged.
type Corrector struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// New builds a corrector from the environment. Missing credentials are not
// an error; they just disable the collaborator.
func New(model string) *Corrector {
	baseURL := os.Getenv("GROQ_API_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	return &Corrector{
		apiKey:  os.Getenv("GROQ_API_KEY"),
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Available reports whether the collaborator can reach the text model.
func (c *Corrector) Available() bool {
	return c.apiKey != ""
}

// CorrectText fixes OCR errors. On any internal failure the input is
// returned unchanged; the call never invents content.
func (c *Corrector) CorrectText(ctx context.Context, ocrText string) string {
	if len(strings.TrimSpace(ocrText)) < minInputLength {
		slog.Debug("Text too short for LLM correction, passing through")
		return ocrText
	}

	prompt := fmt.Sprintf(`You are correcting OCR output from handwritten notes.

OCR Output:
%s

Instructions:
1. Fix spelling errors and obvious OCR mistakes.
2. Preserve ALL chemical formulas (H2O, CaCl2, ΔH) and mathematical symbols.
3. Keep technical terms accurate.
4. Return ONLY the corrected text - no explanations, no made-up content.
5. If the text mentions diagrams or boxes, keep those references.

Corrected text:`, ocrText)

	system := "You correct OCR errors in scientific notes. Return ONLY the corrected text. " +
		"Never add content that was not in the original. Preserve all technical accuracy."

	corrected, err := c.complete(ctx, system, prompt, 0.1)
	if err != nil {
		slog.Warn("LLM correction failed, returning uncorrected text", "err", err)
		return ocrText
	}
	if looksHallucinated(corrected) {
		slog.Warn("LLM correction looked hallucinated, returning uncorrected text")
		return ocrText
	}
	return corrected
}

// StructureContent organizes corrected text into the constrained markdown
// dialect the document generator consumes. Pass-through on failure.
func (c *Corrector) StructureContent(ctx context.Context, text string) string {
	if len(strings.TrimSpace(text)) < minInputLength {
		return text
	}

	prompt := fmt.Sprintf(`Structure these handwritten notes properly.

Original Notes:
%s

Instructions:
1. Add markdown headings where appropriate (# for main, ## for sub).
2. Keep all content from the original - do not add or remove anything.
3. Organize into logical sections and use bullet points for lists.
4. Preserve all equations, formulas, and [DIAGRAM] markers.

Return structured markdown:`, text)

	system := "You structure scientific notes into readable markdown. " +
		"Keep all original content. Do not add or invent content."

	structured, err := c.complete(ctx, system, prompt, 0.2)
	if err != nil {
		slog.Warn("LLM structuring failed, returning unstructured text", "err", err)
		return text
	}
	if looksHallucinated(structured) {
		slog.Warn("LLM structuring looked hallucinated, returning unstructured text")
		return text
	}
	return structured
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *Corrector) complete(ctx context.Context, system, prompt string, temperature float64) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("GROQ_API_KEY environment variable not set")
	}

	requestBody := map[string]any{
		"model": c.model,
		"messages": []map[string]any{
			{"role": "system", "content": system},
			{"role": "user", "content": prompt},
		},
		"temperature": temperature,
		"max_tokens":  4000,
	}

	requestJSON, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(requestJSON))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("groq API error: %d - %s", resp.StatusCode, providers.TruncateBody(body))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", err
	}
	if len(chat.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	content := strings.TrimSpace(chat.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return content, nil
}

// looksHallucinated catches replies where the model answered the prompt
// instead of returning the text.
func looksHallucinated(reply string) bool {
	lower := strings.ToLower(reply)
	return strings.Contains(lower, "please provide") || strings.Contains(lower, "i'd be happy")
}
