package groq

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page.jpg")
	if err := os.WriteFile(path, []byte("fake-jpeg-bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNew_MissingAPIKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")

	if _, err := New(""); err == nil {
		t.Error("Expected construction to fail without GROQ_API_KEY")
	} else if !strings.Contains(err.Error(), "GROQ_API_KEY") {
		t.Errorf("Expected error to name the missing variable, got: %v", err)
	}
}

func TestProvider_Name(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")
	p, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "groq" {
		t.Errorf("Expected name 'groq', got %q", p.Name())
	}
}

func TestProvider_Recognize(t *testing.T) {
	longText := strings.Repeat("transcribed handwriting ", 5)

	tests := []struct {
		name           string
		statusCode     int
		serverResponse string
		expectedText   string
		expectError    bool
	}{
		{
			name:           "successful response",
			statusCode:     http.StatusOK,
			serverResponse: `{"choices":[{"message":{"content":"` + longText + `"}}]}`,
			expectedText:   strings.TrimSpace(longText),
		},
		{
			name:           "API error",
			statusCode:     http.StatusTooManyRequests,
			serverResponse: `{"error":{"message":"rate limited"}}`,
			expectError:    true,
		},
		{
			name:           "no choices",
			statusCode:     http.StatusOK,
			serverResponse: `{"choices":[]}`,
			expectError:    true,
		},
		{
			name:           "empty content",
			statusCode:     http.StatusOK,
			serverResponse: `{"choices":[{"message":{"content":"  "}}]}`,
			expectError:    true,
		},
		{
			name:           "malformed JSON",
			statusCode:     http.StatusOK,
			serverResponse: `{"choices": nope}`,
			expectError:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("Expected POST, got %s", r.Method)
				}
				if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
					t.Errorf("Unexpected path %s", r.URL.Path)
				}
				if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
					t.Error("Expected bearer token")
				}

				var body map[string]any
				if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
					if model, ok := body["model"].(string); !ok || model == "" {
						t.Error("Expected model in request body")
					}
					if messages, ok := body["messages"].([]any); !ok || len(messages) == 0 {
						t.Error("Expected messages in request body")
					}
				}

				w.WriteHeader(tt.statusCode)
				if _, err := w.Write([]byte(tt.serverResponse)); err != nil {
					t.Errorf("Failed to write response: %v", err)
				}
			}))
			defer server.Close()

			t.Setenv("GROQ_API_KEY", "gsk-test")
			t.Setenv("GROQ_API_URL", server.URL)

			p, err := New("")
			if err != nil {
				t.Fatal(err)
			}

			result := p.Recognize(context.Background(), writeTempImage(t))

			if tt.expectError {
				if result.Err == nil {
					t.Fatal("Expected failure result")
				}
				if result.Text != "" || result.Confidence != 0 {
					t.Errorf("Failure result must be empty with zero confidence, got %+v", result)
				}
				return
			}

			if result.Err != nil {
				t.Fatalf("Unexpected error: %v", result.Err)
			}
			if result.Text != tt.expectedText {
				t.Errorf("Expected %q, got %q", tt.expectedText, result.Text)
			}
			if result.Confidence != fixedConfidence {
				t.Errorf("Expected fixed confidence %.2f, got %.2f", fixedConfidence, result.Confidence)
			}
			if result.Method != Method {
				t.Errorf("Expected method %s, got %s", Method, result.Method)
			}
		})
	}
}

func TestProvider_Recognize_MissingImage(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")
	p, err := New("")
	if err != nil {
		t.Fatal(err)
	}

	result := p.Recognize(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	if result.Err == nil {
		t.Error("Expected failure for unreadable image")
	}
}

func TestProvider_Release(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-test")
	p, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Release(); err != nil {
		t.Errorf("Release should be a no-op, got %v", err)
	}
	if err := p.Release(); err != nil {
		t.Errorf("Second release should also be a no-op, got %v", err)
	}
}
