package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultDPI is the resolution PDF pages are rasterised at.
const DefaultDPI = 300

const (
	relsPartName   = "word/_rels/document.xml.rels"
	imageRelSuffix = "/image"
)

// ImageOptions controls image extraction.
type ImageOptions struct {
	// DPI for PDF page rendering. Zero means DefaultDPI.
	DPI float64
}

// ExtractImages returns the images embedded in a document, in document
// order. PDF pages are rendered whole as PNG rasters; DOCX image parts are
// returned as stored. Any extension other than .pdf or .docx yields
// ErrUnsupportedFormat.
func ExtractImages(name string, data []byte, opts ImageOptions) ([][]byte, error) {
	switch Detect(name) {
	case FormatPDF:
		dpi := opts.DPI
		if dpi <= 0 {
			dpi = DefaultDPI
		}
		return pdfImages(data, dpi)
	case FormatDOCX:
		return docxImages(data)
	default:
		return nil, unsupported(name)
	}
}

func pdfImages(data []byte, dpi float64) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, eris.Wrap(err, "document: open pdf")
	}
	defer doc.Close() //nolint:errcheck

	out := make([][]byte, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		img, err := doc.ImageDPI(i, dpi)
		if err != nil {
			return nil, eris.Wrapf(err, "document: render pdf page %d", i+1)
		}

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, eris.Wrapf(err, "document: encode pdf page %d", i+1)
		}
		out = append(out, buf.Bytes())
	}

	zap.L().Debug("document: rendered pdf pages",
		zap.Int("pages", len(out)),
		zap.Float64("dpi", dpi),
	)
	return out, nil
}

type relationships struct {
	Items []struct {
		ID         string `xml:"Id,attr"`
		Type       string `xml:"Type,attr"`
		Target     string `xml:"Target,attr"`
		TargetMode string `xml:"TargetMode,attr"`
	} `xml:"Relationship"`
}

// docxImages follows the main document's relationships to its image parts.
func docxImages(data []byte) ([][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "document: open docx")
	}

	raw, err := readZipPart(zr, relsPartName)
	if err != nil {
		return nil, err
	}

	var rels relationships
	if err := xml.Unmarshal(raw, &rels); err != nil {
		return nil, eris.Wrap(err, "document: parse relationships")
	}

	out := [][]byte{}
	seen := make(map[string]struct{})
	for _, rel := range rels.Items {
		if !strings.HasSuffix(rel.Type, imageRelSuffix) || strings.EqualFold(rel.TargetMode, "External") {
			continue
		}

		target := resolveTarget(rel.Target)
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}

		img, err := readZipPart(zr, target)
		if err != nil {
			zap.L().Warn("document: skipping image part",
				zap.String("rel_id", rel.ID),
				zap.String("target", target),
				zap.Error(err),
			)
			continue
		}
		out = append(out, img)
	}
	return out, nil
}

// resolveTarget maps a relationship target to its zip entry name. Relative
// targets are relative to word/; absolute ones to the package root.
func resolveTarget(target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(path.Clean(target), "/")
	}
	return path.Clean(path.Join("word", target))
}
