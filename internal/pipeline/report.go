package pipeline

import (
	"github.com/sells-group/doc-intake/internal/model"
)

// DefaultPreviewLength is the number of runes of document text kept in a
// summary.
const DefaultPreviewLength = 1000

// BuildSummary projects a finished run into its display form. The text
// preview is cut to previewLen runes with a trailing "..." when truncated.
func BuildSummary(runID string, s model.State, results []model.NodeResult, previewLen int) *model.Summary {
	if previewLen <= 0 {
		previewLen = DefaultPreviewLength
	}

	sum := &model.Summary{
		RunID:             runID,
		DocumentName:      s.DocumentName,
		TextPreview:       preview(s.DocumentText, previewLen),
		ImageCount:        len(s.EmbeddedImages),
		TextDerivedNames:  orEmpty(s.TextDerivedNames),
		ImageDerivedNames: orEmpty(s.ImageDerivedNames),
		ConsolidatedNames: orEmpty(s.ConsolidatedNames),
		VerifiedClients:   orEmpty(s.VerifiedClients),
		EmailSent:         s.EmailSent,
		Outcomes:          s.Outcomes,
		Nodes:             make([]model.NodeResult, 0, len(results)),
	}
	if sum.Outcomes == nil {
		sum.Outcomes = []model.Outcome{}
	}

	for _, r := range results {
		sum.Nodes = append(sum.Nodes, r)
		sum.TokenUsage.Add(r.TokenUsage)
		if r.Degraded() {
			sum.Degraded = append(sum.Degraded, model.DegradedNode{Node: r.Node, Reason: r.Reason})
		}
	}
	return sum
}

func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
