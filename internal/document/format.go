// Package document pulls text and embedded images out of uploaded .docx and
// .pdf files.
package document

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrUnsupportedFormat is returned when a file extension is neither .pdf nor
// .docx. It is distinct from a supported file that simply has no images.
var ErrUnsupportedFormat = eris.New("unsupported document format")

// ErrPartTooLarge is returned when a DOCX part inflates past the part cap.
var ErrPartTooLarge = eris.New("document part too large")

// Format is a supported container format.
type Format string

const (
	FormatUnknown Format = ""
	FormatPDF     Format = "pdf"
	FormatDOCX    Format = "docx"
)

// Detect returns the container format implied by the file name's extension.
func Detect(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	default:
		return FormatUnknown
	}
}

// Supported reports whether name has an extension the pipeline can process.
func Supported(name string) bool {
	return Detect(name) != FormatUnknown
}

func unsupported(name string) error {
	return eris.Wrapf(ErrUnsupportedFormat, "document: %q", filepath.Ext(name))
}
