package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	yaml "go.yaml.in/yaml/v3"

	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/diagram"
)

// detect runs only the diagram-region detector, which is handy for tuning
// the heuristics against a sample page without burning recognition calls.
var detectCmd = &cobra.Command{
	Use:   "detect IMAGE",
	Short: "Detect diagram regions in an image",
	Long: `Run the diagram-region detector on an image and report the regions found
as YAML. Cropped region images are written to the diagram directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

var (
	detectOutputPath string
	detectDiagramDir string
	detectMask       bool
)

func init() {
	RootCmd.AddCommand(detectCmd)

	detectCmd.Flags().StringVarP(&detectOutputPath, "output", "o", "", "Write the YAML report to a file instead of stdout")
	detectCmd.Flags().StringVar(&detectDiagramDir, "diagram-dir", "temp/diagrams", "Directory for cropped region images")
	detectCmd.Flags().BoolVar(&detectMask, "mask", false, "Also write a text-only page variant with regions blanked")
}

func runDetect(cmd *cobra.Command, args []string) error {
	imagePath := args[0]
	if _, err := os.Stat(imagePath); os.IsNotExist(err) {
		return fmt.Errorf("image not found: %s", imagePath)
	}

	detector := diagram.New(detectDiagramDir)
	detector.MaskRegions = detectMask

	detection := detector.DetectAndExtract(imagePath)

	report, err := yaml.Marshal(detection)
	if err != nil {
		return fmt.Errorf("failed to marshal detection report: %w", err)
	}

	if detectOutputPath != "" {
		return os.WriteFile(detectOutputPath, report, 0644)
	}
	fmt.Print(string(report))
	return nil
}
