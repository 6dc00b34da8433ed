package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"sync/atomic"

	"github.com/gen2brain/go-fitz"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Marker prefixes written into the document text when extraction fails.
// Downstream nodes see these instead of an error.
const (
	DOCXErrorPrefix = "Error reading DOCX file: "
	PDFErrorPrefix  = "Error reading PDF file: "
	UnsupportedText = "Error: Unsupported file format. Please upload a DOCX or PDF file."
)

const (
	documentPartName  = "word/document.xml"
	wordprocessingURI = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
)

// ExtractText returns the plain text of a document. It never fails: read
// errors are reported inline as a marker string.
func ExtractText(name string, data []byte) string {
	switch Detect(name) {
	case FormatDOCX:
		text, err := docxText(data)
		if err != nil {
			zap.L().Warn("document: docx text extraction failed", zap.String("document", name), zap.Error(err))
			return DOCXErrorPrefix + err.Error()
		}
		return text
	case FormatPDF:
		text, err := pdfText(data)
		if err != nil {
			zap.L().Warn("document: pdf text extraction failed", zap.String("document", name), zap.Error(err))
			return PDFErrorPrefix + err.Error()
		}
		return text
	default:
		return UnsupportedText
	}
}

// IsErrorText reports whether text is one of the extraction failure markers.
func IsErrorText(text string) bool {
	return strings.HasPrefix(text, DOCXErrorPrefix) ||
		strings.HasPrefix(text, PDFErrorPrefix) ||
		text == UnsupportedText
}

// docxText emits one line per w:p paragraph of word/document.xml. A
// paragraph nested inside another (text boxes) is emitted when it closes and
// leaves the enclosing paragraph's text intact.
func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", eris.Wrap(err, "document: open docx")
	}

	part, err := readZipPart(zr, documentPartName)
	if err != nil {
		return "", err
	}

	dec := xml.NewDecoder(bytes.NewReader(part))
	var (
		paragraphs []string
		open       []*strings.Builder
		inText     bool
	)
	write := func(s string) {
		if len(open) > 0 {
			open[len(open)-1].WriteString(s)
		}
	}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", eris.Wrap(err, "document: parse document.xml")
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordprocessingURI {
				continue
			}
			switch t.Name.Local {
			case "p":
				open = append(open, &strings.Builder{})
			case "t":
				inText = true
			case "tab":
				write("\t")
			case "br", "cr":
				write("\n")
			}
		case xml.EndElement:
			if t.Name.Space != wordprocessingURI {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if n := len(open); n > 0 {
					paragraphs = append(paragraphs, open[n-1].String())
					open = open[:n-1]
				}
			}
		case xml.CharData:
			if inText {
				write(string(t))
			}
		}
	}

	return strings.Join(paragraphs, "\n"), nil
}

func pdfText(data []byte) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", eris.Wrap(err, "document: open pdf")
	}
	defer doc.Close() //nolint:errcheck

	pages := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		text, err := doc.Text(i)
		if err != nil {
			return "", eris.Wrapf(err, "document: pdf text page %d", i+1)
		}
		pages = append(pages, strings.TrimRight(text, "\n"))
	}
	return strings.Join(pages, "\n"), nil
}

// DefaultMaxPartSize caps the decompressed size of a single DOCX part.
const DefaultMaxPartSize int64 = 64 << 20

var maxPartSize atomic.Int64

func init() { maxPartSize.Store(DefaultMaxPartSize) }

// SetMaxPartSize changes the per-part cap. Values <= 0 restore the default.
func SetMaxPartSize(n int64) {
	if n <= 0 {
		n = DefaultMaxPartSize
	}
	maxPartSize.Store(n)
}

// readZipPart reads one entry, failing once it inflates past the part cap.
func readZipPart(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, eris.Wrapf(err, "document: open part %s", name)
	}
	defer f.Close() //nolint:errcheck

	limit := maxPartSize.Load()
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, eris.Wrapf(err, "document: read part %s", name)
	}
	if int64(len(data)) > limit {
		return nil, eris.Wrapf(ErrPartTooLarge, "document: part %s over %d bytes", name, limit)
	}
	return data, nil
}
