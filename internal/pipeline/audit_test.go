package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/doc-intake/internal/model"
)

func TestFileAudit_Write(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileAudit(dir)

	s := model.State{
		TextDerivedNames:  []string{"IBM", "Globex"},
		ImageDerivedNames: []string{"Acme Labs"},
		ConsolidatedNames: []string{"Acme Labs", "Globex", "IBM"},
		VerifiedClients:   []string{"IBM"},
	}
	require.NoError(t, sink.Write(context.Background(), "run-1", s))

	read := func(name string) string {
		data, err := os.ReadFile(filepath.Join(dir, "run-1", name))
		require.NoError(t, err)
		return string(data)
	}

	assert.Equal(t, "IDENTIFIED CLIENTS FROM DOC TEXT\n================================\nIBM\nGlobex\n", read("text_names.txt"))
	assert.Equal(t, "CLIENTS FROM IMAGES USED IN DOCUMENT\n====================================\nAcme Labs\n", read("image_names.txt"))
	assert.Contains(t, read("consolidated.txt"), "CONSOLIDATED CLIENTS\n")
	assert.Equal(t, "VERIFIED CLIENTS BASED ON CUSTOM LIST\n=====================================\nIBM\n", read("verified.txt"))
}

func TestFileAudit_EmptyLists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewFileAudit(dir).Write(context.Background(), "r", model.State{}))

	data, err := os.ReadFile(filepath.Join(dir, "r", "verified.txt"))
	require.NoError(t, err)
	assert.Equal(t, "VERIFIED CLIENTS BASED ON CUSTOM LIST\n=====================================\n", string(data))
}

func TestFileAudit_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewFileAudit(t.TempDir()).Write(ctx, "r", model.State{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileAudit_BadDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	err := NewFileAudit(file).Write(context.Background(), "r", model.State{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit: create")
}
