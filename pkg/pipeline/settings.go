package pipeline

import (
	"fmt"
	"log/slog"
	"os"

	yaml "go.yaml.in/yaml/v3"
)

// Settings are the file-configurable knobs of a pipeline run. Recognition
// policy (preferred/forced strategy) is deliberately not here: it comes from
// flags per invocation and participates in the coordinator fingerprint.
type Settings struct {
	OutputDir        string `yaml:"output_dir"`
	TempDir          string `yaml:"temp_dir"`
	DiagramDir       string `yaml:"diagram_dir"`
	RemoteModel      string `yaml:"remote_model"`
	PrimaryModel     string `yaml:"primary_model"`
	SecondaryModel   string `yaml:"secondary_model"`
	CorrectionModel  string `yaml:"correction_model"`
	DetectDiagrams   bool   `yaml:"detect_diagrams"`
	MaskDiagrams     bool   `yaml:"mask_diagrams"`
	UseLLMCorrection bool   `yaml:"llm_correction"`
}

// DefaultSettings mirrors the behavior of a flagless run: diagrams detected
// but not masked, LLM correction on, standard directories.
func DefaultSettings() Settings {
	return Settings{
		OutputDir:        "outputs",
		TempDir:          "temp",
		DiagramDir:       "temp/diagrams",
		DetectDiagrams:   true,
		MaskDiagrams:     false,
		UseLLMCorrection: true,
	}
}

// LoadUISettings resolves settings for the long-running web shell: the
// defaults, overlaid with the YAML file named by NOTES2DOCX_CONFIG if set.
// A broken file is logged and ignored so the server still starts.
func LoadUISettings() Settings {
	path := os.Getenv("NOTES2DOCX_CONFIG")
	settings, err := LoadSettings(path)
	if err != nil {
		slog.Warn("Ignoring unreadable settings file", "path", path, "err", err)
	}
	return settings
}

// LoadSettings overlays a YAML settings file onto the defaults. An empty
// path returns the defaults.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	if path == "" {
		return settings, nil
	}

	// Cleared so a file that moves the temp dir without naming a diagram
	// dir gets the derived location, not the stale default.
	settings.DiagramDir = ""

	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettings(), fmt.Errorf("failed to read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return DefaultSettings(), fmt.Errorf("failed to parse settings file: %w", err)
	}
	if settings.DiagramDir == "" {
		settings.DiagramDir = settings.TempDir + "/diagrams"
	}
	return settings, nil
}
