package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/doc-intake/internal/model"
)

// AuditSink records the intermediate name lists of a finished run.
type AuditSink interface {
	Write(ctx context.Context, runID string, s model.State) error
}

type auditFile struct {
	name  string
	title string
	list  func(model.State) []string
}

var auditFiles = []auditFile{
	{"text_names.txt", "IDENTIFIED CLIENTS FROM DOC TEXT", func(s model.State) []string { return s.TextDerivedNames }},
	{"image_names.txt", "CLIENTS FROM IMAGES USED IN DOCUMENT", func(s model.State) []string { return s.ImageDerivedNames }},
	{"consolidated.txt", "CONSOLIDATED CLIENTS", func(s model.State) []string { return s.ConsolidatedNames }},
	{"verified.txt", "VERIFIED CLIENTS BASED ON CUSTOM LIST", func(s model.State) []string { return s.VerifiedClients }},
}

// FileAudit writes one plain-text file per stage under <dir>/<run id>/.
type FileAudit struct {
	dir string
}

// NewFileAudit returns a sink rooted at dir.
func NewFileAudit(dir string) *FileAudit {
	return &FileAudit{dir: dir}
}

// Write dumps the stage lists of s. Existing files for the run are replaced.
func (a *FileAudit) Write(ctx context.Context, runID string, s model.State) error {
	runDir := filepath.Join(a.dir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return eris.Wrapf(err, "audit: create %s", runDir)
	}

	for _, f := range auditFiles {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "audit: write")
		}
		path := filepath.Join(runDir, f.name)
		if err := os.WriteFile(path, []byte(renderAudit(f.title, f.list(s))), 0o644); err != nil {
			return eris.Wrapf(err, "audit: write %s", path)
		}
	}
	return nil
}

func renderAudit(title string, names []string) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("=", len(title)))
	b.WriteByte('\n')
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte('\n')
	}
	return b.String()
}
