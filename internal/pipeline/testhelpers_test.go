package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/doc-intake/internal/model"
	"github.com/sells-group/doc-intake/internal/notify"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeExtractor answers FromText and FromImages from fixed lists.
type fakeExtractor struct {
	textNames  []string
	imageNames []string
	textErr    error
	imageErr   error
	usage      model.TokenUsage

	mu         sync.Mutex
	textSeen   []string
	imagesSeen int
}

func (f *fakeExtractor) FromText(_ context.Context, text string) ([]string, model.TokenUsage, error) {
	f.mu.Lock()
	f.textSeen = append(f.textSeen, text)
	f.mu.Unlock()
	if f.textErr != nil {
		return nil, model.TokenUsage{}, f.textErr
	}
	return f.textNames, f.usage, nil
}

func (f *fakeExtractor) FromImages(_ context.Context, images [][]byte) ([]string, model.TokenUsage, error) {
	f.mu.Lock()
	f.imagesSeen += len(images)
	f.mu.Unlock()
	if f.imageErr != nil {
		return nil, f.usage, f.imageErr
	}
	if len(images) == 0 {
		return []string{}, model.TokenUsage{}, nil
	}
	return f.imageNames, f.usage, nil
}

// recordingSender captures every message handed to it.
type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Message
	fail map[string]error
}

func (s *recordingSender) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[msg.To]; err != nil {
		return err
	}
	s.sent = append(s.sent, msg)
	return nil
}

// pngBytes encodes a small solid image.
func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// buildDOCX writes a minimal .docx with one paragraph per entry and the given
// images stored under word/media.
func buildDOCX(t *testing.T, paragraphs []string, images [][]byte) []byte {
	t.Helper()

	var body bytes.Buffer
	for _, p := range paragraphs {
		fmt.Fprintf(&body, `<w:p><w:r><w:t>%s</w:t></w:r></w:p>`, p)
	}
	document := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`

	var rels bytes.Buffer
	rels.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	rels.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	for i := range images {
		fmt.Fprintf(&rels, `<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/image" Target="media/image%d.png"/>`, i+1, i+1)
	}
	rels.WriteString(`</Relationships>`)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name string, data []byte) {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	write("word/document.xml", []byte(document))
	write("word/_rels/document.xml.rels", rels.Bytes())
	for i, img := range images {
		write(fmt.Sprintf("word/media/image%d.png", i+1), img)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
