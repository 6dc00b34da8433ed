package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		field Field
		want  string
	}{
		{0, "none"},
		{FieldDocumentText, "document_text"},
		{FieldTextDerivedNames | FieldImageDerivedNames, "text_derived_names|image_derived_names"},
		{SeedFields, "document_bytes|document_name|sender_alias"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.field.String())
		})
	}
}

func TestFieldHas(t *testing.T) {
	t.Parallel()

	f := FieldDocumentText | FieldEmailSent
	assert.True(t, f.Has(FieldDocumentText))
	assert.True(t, f.Has(FieldDocumentText|FieldEmailSent))
	assert.False(t, f.Has(FieldDocumentText|FieldOutcomes))
}

func TestStateApply_OnlyDeclaredFields(t *testing.T) {
	t.Parallel()

	base := State{DocumentName: "a.pdf", DocumentText: "old"}
	next := base.Apply(Patch{
		Fields: FieldDocumentText,
		State:  State{DocumentText: "new", DocumentName: "ignored.docx"},
	})

	assert.Equal(t, "new", next.DocumentText)
	assert.Equal(t, "a.pdf", next.DocumentName)
	// The original snapshot is untouched.
	assert.Equal(t, "old", base.DocumentText)
}

func TestStateApply_NoOp(t *testing.T) {
	t.Parallel()

	base := State{DocumentText: "text", VerifiedClients: []string{"IBM"}}
	assert.Equal(t, base, base.Apply(NoOp))
}

func TestStateApply_EmailSentMonotonic(t *testing.T) {
	t.Parallel()

	s := State{}.Apply(Patch{Fields: FieldEmailSent, State: State{EmailSent: true}})
	assert.True(t, s.EmailSent)

	s = s.Apply(Patch{Fields: FieldEmailSent, State: State{EmailSent: false}})
	assert.True(t, s.EmailSent)
}

func TestStateApply_CopiesSlices(t *testing.T) {
	t.Parallel()

	names := []string{"IBM"}
	s := State{}.Apply(Patch{Fields: FieldVerifiedClients, State: State{VerifiedClients: names}})
	names[0] = "mutated"

	assert.Equal(t, []string{"IBM"}, s.VerifiedClients)
}

func TestStateApply_OutcomesAppend(t *testing.T) {
	t.Parallel()

	s := State{Outcomes: []Outcome{{Email: "a@x.com"}}}
	s = s.Apply(Patch{Fields: FieldOutcomes, State: State{Outcomes: []Outcome{{Email: "b@x.com"}}}})

	assert.Len(t, s.Outcomes, 2)
	assert.Equal(t, "b@x.com", s.Outcomes[1].Email)
}

func TestTokenUsageAdd(t *testing.T) {
	t.Parallel()

	u := TokenUsage{InputTokens: 10, OutputTokens: 2, Cost: 0.5}
	u.Add(TokenUsage{InputTokens: 5, OutputTokens: 1, CacheReadTokens: 3, Cost: 0.25})

	assert.Equal(t, 15, u.InputTokens)
	assert.Equal(t, 3, u.OutputTokens)
	assert.Equal(t, 3, u.CacheReadTokens)
	assert.InDelta(t, 0.75, u.Cost, 0.0001)
}

func TestNodeResultDegraded(t *testing.T) {
	t.Parallel()

	assert.True(t, NodeResult{Status: NodeStatusDegraded}.Degraded())
	assert.False(t, NodeResult{Status: NodeStatusOK}.Degraded())
}
