package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/hybrid"
	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/pipeline"
	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/providers"
)

var convertCmd = &cobra.Command{
	Use:   "convert IMAGE [OUTPUT_NAME]",
	Short: "Convert a handwritten note image to a Word document",
	Long: `Convert an image of handwritten notes into a structured Word document.

The image is normalized, optionally segmented into diagram and text regions,
recognized through a chain of vision backends with automatic fallback
(remote vision API, local vision models, legacy OCR), corrected and
structured by a language model, and written out as a .docx file with any
detected diagrams embedded as figures.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runConvert,
}

var (
	convertLocal      bool
	convertStrategy   string
	convertNoDiagrams bool
	convertMask       bool
	convertOutputDir  string
	convertConfigPath string
	convertNoLLM      bool
)

func init() {
	RootCmd.AddCommand(convertCmd)

	convertCmd.Flags().BoolVar(&convertLocal, "local", false, "Prefer local models, skip the remote vision API")
	convertCmd.Flags().StringVar(&convertStrategy, "strategy", "auto", "Force a single strategy: groq, llava, moondream, tesseract")
	convertCmd.Flags().BoolVar(&convertNoDiagrams, "no-diagrams", false, "Disable diagram detection")
	convertCmd.Flags().BoolVar(&convertMask, "mask-diagrams", false, "Blank detected diagram regions out of the image before text recognition")
	convertCmd.Flags().StringVarP(&convertOutputDir, "output-dir", "o", "", "Directory for the generated document")
	convertCmd.Flags().StringVar(&convertConfigPath, "config", "", "Path to a YAML settings file")
	convertCmd.Flags().BoolVar(&convertNoLLM, "no-correction", false, "Skip LLM correction and structuring")
}

func runConvert(cmd *cobra.Command, args []string) error {
	imagePath := args[0]
	outputName := "converted_notes"
	if len(args) > 1 {
		outputName = args[1]
	}

	if _, err := os.Stat(imagePath); os.IsNotExist(err) {
		return fmt.Errorf("image not found: %s", imagePath)
	}

	forced, err := providers.ParseStrategy(convertStrategy)
	if err != nil {
		return err
	}

	settings, err := pipeline.LoadSettings(convertConfigPath)
	if err != nil {
		return err
	}
	if convertOutputDir != "" {
		settings.OutputDir = convertOutputDir
	}
	if convertNoDiagrams {
		settings.DetectDiagrams = false
	}
	if convertMask {
		settings.MaskDiagrams = true
	}
	if convertNoLLM {
		settings.UseLLMCorrection = false
	}

	recognition := hybrid.Config{
		PreferLocal: convertLocal,
		Forced:      forced,
	}

	slog.Info("Pipeline starting",
		"image", imagePath,
		"preferLocal", convertLocal,
		"strategy", forced,
		"diagrams", settings.DetectDiagrams)

	p := pipeline.New(settings, recognition)
	defer p.Cleanup()

	outputPath, err := p.ProcessImage(cmd.Context(), imagePath, outputName)
	if err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}

	fmt.Println(outputPath)
	return nil
}
