package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/hybrid"
	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/pipeline"
	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/providers"
)

var (
	uiPort string
	uiHost string
)

var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Start the conversion web interface",
	Long: `Start a small web server for interactive conversions. The recognition
coordinator is cached across requests, keyed by the chosen configuration, so
expensive model loads survive between uploads.`,
	RunE: runUI,
}

func init() {
	RootCmd.AddCommand(uiCmd)
	uiCmd.Flags().StringVar(&uiPort, "port", "8888", "Port to run the web server on")
	uiCmd.Flags().StringVar(&uiHost, "host", "localhost", "Host to bind the web server to")
}

type convertResponse struct {
	Document string `json:"document,omitempty"`
	Error    string `json:"error,omitempty"`
}

type statusResponse struct {
	Fingerprint string            `json:"fingerprint"`
	Providers   map[string]string `json:"providers"`
	GroqKeySet  bool              `json:"groq_key_set"`
}

func runUI(cmd *cobra.Command, args []string) error {
	settings := pipeline.LoadUISettings()
	cache := hybrid.NewCache()
	defer cache.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/", handleUIIndex)
	mux.HandleFunc("/api/convert", func(w http.ResponseWriter, r *http.Request) {
		handleUIConvert(w, r, settings, cache)
	})
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		handleUIStatus(w, r, cache)
	})
	mux.Handle("/outputs/", http.StripPrefix("/outputs/", http.FileServer(http.Dir(settings.OutputDir))))

	addr := fmt.Sprintf("%s:%s", uiHost, uiPort)
	slog.Info("Conversion interface available", "url", fmt.Sprintf("http://%s", addr))

	return http.ListenAndServe(addr, mux)
}

func handleUIIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, uiIndexHTML)
}

func handleUIConvert(w http.ResponseWriter, r *http.Request, settings pipeline.Settings, cache *hybrid.Cache) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeUIError(w, http.StatusBadRequest, fmt.Errorf("invalid upload: %w", err))
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeUIError(w, http.StatusBadRequest, fmt.Errorf("missing image: %w", err))
		return
	}
	defer file.Close()

	uploadDir := filepath.Join(settings.TempDir, "uploads")
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		writeUIError(w, http.StatusInternalServerError, err)
		return
	}
	uploadPath := filepath.Join(uploadDir, fmt.Sprintf("%d_%s", time.Now().UnixNano(), filepath.Base(header.Filename)))
	dst, err := os.Create(uploadPath)
	if err != nil {
		writeUIError(w, http.StatusInternalServerError, err)
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		writeUIError(w, http.StatusInternalServerError, err)
		return
	}
	dst.Close()

	forced, err := providers.ParseStrategy(r.FormValue("strategy"))
	if err != nil {
		writeUIError(w, http.StatusBadRequest, err)
		return
	}

	runSettings := settings
	runSettings.MaskDiagrams = r.FormValue("mask") == "on"
	runSettings.DetectDiagrams = r.FormValue("diagrams") != "off"
	runSettings.UseLLMCorrection = r.FormValue("correction") != "off"

	recognition := hybrid.Config{
		PreferLocal: r.FormValue("mode") == "local",
		Forced:      forced,
	}

	// The cached coordinator outlives this request; a changed fingerprint
	// tears the old one down first.
	coordinator := cache.Get(recognition)
	p := pipeline.NewWithRecognizer(runSettings, coordinator)

	outputName := r.FormValue("output_name")
	documentPath, err := p.ProcessImage(r.Context(), uploadPath, outputName)
	if err != nil {
		writeUIError(w, http.StatusUnprocessableEntity, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(convertResponse{
		Document: "/outputs/" + filepath.Base(documentPath),
	})
}

func handleUIStatus(w http.ResponseWriter, r *http.Request, cache *hybrid.Cache) {
	status := statusResponse{
		Providers:  map[string]string{},
		GroqKeySet: os.Getenv("GROQ_API_KEY") != "",
	}

	if coordinator, fp := cache.Current(); coordinator != nil {
		status.Fingerprint = fp
		for _, s := range []providers.Strategy{
			providers.StrategyGroq,
			providers.StrategyLlava,
			providers.StrategyMoondream,
			providers.StrategyTesseract,
		} {
			status.Providers[string(s)] = availabilityLabel(coordinator.Availability(s))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

func availabilityLabel(a hybrid.Availability) string {
	switch a {
	case hybrid.AvailabilityReady:
		return "ready"
	case hybrid.AvailabilityUnavailable:
		return "unavailable"
	default:
		return "not-yet-used"
	}
}

func writeUIError(w http.ResponseWriter, code int, err error) {
	slog.Warn("UI request failed", "err", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(convertResponse{Error: err.Error()})
}

const uiIndexHTML = `<!DOCTYPE html>
<html>
<head><title>Handwriting to Word Converter</title></head>
<body>
<h1>Handwriting to Word Converter</h1>
<form id="f" enctype="multipart/form-data">
  <p><input type="file" name="image" accept="image/*" required></p>
  <p>Output name: <input type="text" name="output_name" value="converted_notes"></p>
  <p>Mode:
    <label><input type="radio" name="mode" value="api" checked> API first</label>
    <label><input type="radio" name="mode" value="local"> Local only</label>
  </p>
  <p>Force strategy:
    <select name="strategy">
      <option value="auto">auto</option>
      <option value="groq">groq</option>
      <option value="llava">llava</option>
      <option value="moondream">moondream</option>
      <option value="tesseract">tesseract</option>
    </select>
  </p>
  <p><label><input type="checkbox" name="mask"> Mask diagram regions before recognition</label></p>
  <p><button type="submit">Convert</button></p>
</form>
<div id="result"></div>
<script>
document.getElementById('f').addEventListener('submit', async (e) => {
  e.preventDefault();
  const out = document.getElementById('result');
  out.textContent = 'Converting...';
  const resp = await fetch('/api/convert', {method: 'POST', body: new FormData(e.target)});
  const data = await resp.json();
  out.innerHTML = data.document
    ? '<a href="' + data.document + '">Download document</a>'
    : 'Error: ' + data.error;
});
</script>
</body>
</html>`
