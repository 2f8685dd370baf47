package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	yaml "go.yaml.in/yaml/v3"

	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/hybrid"
	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/providers"
)

// recognize runs only the recognition chain and reports the raw result.
// Useful for comparing backends on a sample page before committing to a
// full conversion.
var recognizeCmd = &cobra.Command{
	Use:   "recognize IMAGE",
	Short: "Recognize text in an image without generating a document",
	Long: `Run the hybrid recognition chain on an image and print the raw result as
YAML: the text, which backend produced it, and its confidence. No
correction, structuring or document generation happens.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecognize,
}

var (
	recognizeLocal    bool
	recognizeStrategy string
)

func init() {
	RootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().BoolVar(&recognizeLocal, "local", false, "Prefer local models, skip the remote vision API")
	recognizeCmd.Flags().StringVar(&recognizeStrategy, "strategy", "auto", "Force a single strategy: groq, llava, moondream, tesseract")
}

type recognizeReport struct {
	Method     string  `yaml:"method"`
	Confidence float64 `yaml:"confidence"`
	Chars      int     `yaml:"chars"`
	Text       string  `yaml:"text"`
	Error      string  `yaml:"error,omitempty"`
}

func runRecognize(cmd *cobra.Command, args []string) error {
	imagePath := args[0]
	if _, err := os.Stat(imagePath); os.IsNotExist(err) {
		return fmt.Errorf("image not found: %s", imagePath)
	}

	forced, err := providers.ParseStrategy(recognizeStrategy)
	if err != nil {
		return err
	}

	coordinator := hybrid.New(hybrid.Config{
		PreferLocal: recognizeLocal,
		Forced:      forced,
	})
	defer coordinator.Cleanup()

	result := coordinator.Recognize(cmd.Context(), imagePath)

	report := recognizeReport{
		Method:     result.Method,
		Confidence: result.Confidence,
		Chars:      len(result.Text),
		Text:       result.Text,
	}
	if result.Err != nil {
		report.Error = result.Err.Error()
	}

	out, err := yaml.Marshal(report)
	if err != nil {
		return err
	}
	fmt.Print(string(out))

	if result.Err != nil {
		os.Exit(1)
	}
	return nil
}
