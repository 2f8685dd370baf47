package docgen

import (
	"archive/zip"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/samaR7Q/Handwritten-images-to-word-docx/pkg/diagram"
)

// EMU per pixel at 96 DPI, and the figure width cap (4 inches).
const (
	emuPerPixel = 9525
	maxFigureCx = 4 * 914400
)

// Generator writes .docx files into OutputDir.
type Generator struct {
	OutputDir string
}

// NewGenerator returns a generator writing under outputDir.
func NewGenerator(outputDir string) *Generator {
	return &Generator{OutputDir: outputDir}
}

// embeddedImage is one media part wired into the document.
type embeddedImage struct {
	relID    string
	partName string
	data     []byte
	cx, cy   int64
}

// CreateDocument renders the structured markdown into a Word document and
// returns its path. Diagram crops are embedded in order at [DIAGRAM]
// markers; crops left over when the text carries fewer markers than regions
// are appended at the end as trailing figures.
func (g *Generator) CreateDocument(markdown, title string, diagrams []diagram.Region) (string, error) {
	if err := os.MkdirAll(g.OutputDir, 0755); err != nil {
		return "", err
	}

	blocks := ParseStructured(markdown)

	var body strings.Builder
	var images []embeddedImage
	nextDiagram := 0

	body.WriteString(heading(title, "Title"))

	for _, block := range blocks {
		switch block.Kind {
		case KindHeading:
			body.WriteString(heading(block.Text, fmt.Sprintf("Heading%d", block.Level)))
		case KindBullet:
			body.WriteString(bulletParagraph(block.Text))
		case KindFormula:
			body.WriteString(formulaParagraph(block.Text))
		case KindDiagram:
			if nextDiagram < len(diagrams) {
				img, err := loadEmbeddedImage(diagrams[nextDiagram], len(images))
				nextDiagram++
				if err == nil {
					images = append(images, img)
					body.WriteString(figureParagraph(img, len(images)))
					break
				}
			}
			body.WriteString(italicParagraph("[Diagram placeholder - original image preserved]"))
		default:
			body.WriteString(textParagraph(block.Text))
		}
	}

	// Regions never referenced by a marker still belong to the document.
	for ; nextDiagram < len(diagrams); nextDiagram++ {
		img, err := loadEmbeddedImage(diagrams[nextDiagram], len(images))
		if err != nil {
			continue
		}
		images = append(images, img)
		body.WriteString(figureParagraph(img, len(images)))
	}

	outputPath := filepath.Join(g.OutputDir, sanitizeFileName(title)+".docx")
	if err := writeDocx(outputPath, body.String(), images); err != nil {
		return "", err
	}
	return outputPath, nil
}

func loadEmbeddedImage(region diagram.Region, index int) (embeddedImage, error) {
	data, err := os.ReadFile(region.Path)
	if err != nil {
		return embeddedImage{}, err
	}

	cfg, err := png.DecodeConfig(strings.NewReader(string(data)))
	if err != nil {
		return embeddedImage{}, err
	}

	cx := int64(cfg.Width) * emuPerPixel
	cy := int64(cfg.Height) * emuPerPixel
	if cx > maxFigureCx {
		cy = cy * maxFigureCx / cx
		cx = maxFigureCx
	}

	return embeddedImage{
		relID:    fmt.Sprintf("rIdImg%d", index+1),
		partName: fmt.Sprintf("media/image%d.png", index+1),
		data:     data,
		cx:       cx,
		cy:       cy,
	}, nil
}

func sanitizeFileName(title string) string {
	name := strings.ReplaceAll(strings.TrimSpace(title), " ", "_")
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, name)
	if name == "" {
		name = "converted_notes"
	}
	return name
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func esc(s string) string { return xmlEscaper.Replace(s) }

func heading(text, style string) string {
	return fmt.Sprintf(`<w:p><w:pPr><w:pStyle w:val="%s"/></w:pPr><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`,
		style, esc(text))
}

func textParagraph(text string) string {
	return fmt.Sprintf(`<w:p><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`, esc(text))
}

func bulletParagraph(text string) string {
	return fmt.Sprintf(`<w:p><w:pPr><w:ind w:left="720"/></w:pPr><w:r><w:t xml:space="preserve">%s %s</w:t></w:r></w:p>`,
		"•", esc(text))
}

func formulaParagraph(text string) string {
	return fmt.Sprintf(`<w:p><w:r><w:rPr><w:rFonts w:ascii="Courier New" w:hAnsi="Courier New"/><w:sz w:val="20"/></w:rPr><w:t xml:space="preserve">%s</w:t></w:r></w:p>`,
		esc(text))
}

func italicParagraph(text string) string {
	return fmt.Sprintf(`<w:p><w:r><w:rPr><w:i/></w:rPr><w:t xml:space="preserve">%s</w:t></w:r></w:p>`, esc(text))
}

func figureParagraph(img embeddedImage, docPrID int) string {
	return fmt.Sprintf(`<w:p><w:r><w:drawing><wp:inline distT="0" distB="0" distL="0" distR="0">`+
		`<wp:extent cx="%d" cy="%d"/>`+
		`<wp:docPr id="%d" name="Diagram %d"/>`+
		`<a:graphic xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">`+
		`<a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:pic xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture">`+
		`<pic:nvPicPr><pic:cNvPr id="%d" name="Diagram %d"/><pic:cNvPicPr/></pic:nvPicPr>`+
		`<pic:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`+
		`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm>`+
		`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>`+
		`</pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r></w:p>`,
		img.cx, img.cy, docPrID, docPrID, docPrID, docPrID, img.relID, img.cx, img.cy)
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Default Extension="png" ContentType="image/png"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>
</Types>`

const rootRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

const stylesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:style w:type="paragraph" w:styleId="Title"><w:name w:val="Title"/><w:pPr><w:jc w:val="center"/></w:pPr><w:rPr><w:b/><w:sz w:val="56"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/><w:rPr><w:b/><w:sz w:val="32"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Heading2"><w:name w:val="heading 2"/><w:rPr><w:b/><w:sz w:val="28"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Heading3"><w:name w:val="heading 3"/><w:rPr><w:b/><w:sz w:val="24"/></w:rPr></w:style>
</w:styles>`

func documentXML(body string) string {
	return `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing">
<w:body>` + body + `<w:sectPr/></w:body>
</w:document>`
}

func documentRelsXML(images []embeddedImage) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>`)
	for _, img := range images {
		sb.WriteString(fmt.Sprintf(`
<Relationship Id="%s" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="%s"/>`,
			img.relID, img.partName))
	}
	sb.WriteString("\n</Relationships>")
	return sb.String()
}

func writeDocx(path, body string, images []embeddedImage) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	parts := []struct {
		name string
		data []byte
	}{
		{"[Content_Types].xml", []byte(contentTypesXML)},
		{"_rels/.rels", []byte(rootRelsXML)},
		{"word/document.xml", []byte(documentXML(body))},
		{"word/styles.xml", []byte(stylesXML)},
		{"word/_rels/document.xml.rels", []byte(documentRelsXML(images))},
	}
	for _, img := range images {
		parts = append(parts, struct {
			name string
			data []byte
		}{"word/" + img.partName, img.data})
	}

	for _, part := range parts {
		w, err := zw.Create(part.name)
		if err != nil {
			return err
		}
		if _, err := w.Write(part.data); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize document: %w", err)
	}
	return nil
}
