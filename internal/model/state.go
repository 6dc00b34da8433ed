package model

import (
	"slices"
	"strings"
)

// Field identifies one slot of the pipeline State. Fields are bit flags so a
// node can declare the set it reads and the set it writes.
type Field uint16

const (
	FieldDocumentBytes Field = 1 << iota
	FieldDocumentName
	FieldSenderAlias
	FieldDocumentText
	FieldEmbeddedImages
	FieldTextDerivedNames
	FieldImageDerivedNames
	FieldConsolidatedNames
	FieldVerifiedClients
	FieldEmailSent
	FieldOutcomes
)

// SeedFields are supplied by the caller before any node runs.
const SeedFields = FieldDocumentBytes | FieldDocumentName | FieldSenderAlias

var fieldNames = []struct {
	f    Field
	name string
}{
	{FieldDocumentBytes, "document_bytes"},
	{FieldDocumentName, "document_name"},
	{FieldSenderAlias, "sender_alias"},
	{FieldDocumentText, "document_text"},
	{FieldEmbeddedImages, "embedded_images"},
	{FieldTextDerivedNames, "text_derived_names"},
	{FieldImageDerivedNames, "image_derived_names"},
	{FieldConsolidatedNames, "consolidated_names"},
	{FieldVerifiedClients, "verified_clients"},
	{FieldEmailSent, "email_sent"},
	{FieldOutcomes, "outcomes"},
}

// Has reports whether every bit of o is set in f.
func (f Field) Has(o Field) bool { return f&o == o }

// Each calls fn for every single field set in f, in declaration order.
func (f Field) Each(fn func(Field)) {
	for _, e := range fieldNames {
		if f&e.f != 0 {
			fn(e.f)
		}
	}
}

func (f Field) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, e := range fieldNames {
		if f&e.f != 0 {
			parts = append(parts, e.name)
		}
	}
	return strings.Join(parts, "|")
}

// State is one immutable snapshot of a pipeline run. Nodes never mutate a
// State they receive; the scheduler builds the next snapshot with Apply.
type State struct {
	DocumentBytes     []byte
	DocumentName      string
	SenderAlias       string
	DocumentText      string
	EmbeddedImages    [][]byte
	TextDerivedNames  []string
	ImageDerivedNames []string
	ConsolidatedNames []string
	VerifiedClients   []string
	EmailSent         bool
	Outcomes          []Outcome
}

// Patch is the partial output of a node. Only the fields named in Fields are
// merged; everything else in State is ignored.
type Patch struct {
	Fields Field
	State  State
	Usage  TokenUsage
}

// NoOp is the patch a degraded node contributes.
var NoOp = Patch{}

// Apply returns a new snapshot with the patch fields copied over s.
// EmailSent is merged with OR so it can never flip back to false.
func (s State) Apply(p Patch) State {
	next := s
	p.Fields.Each(func(f Field) {
		switch f {
		case FieldDocumentBytes:
			next.DocumentBytes = slices.Clone(p.State.DocumentBytes)
		case FieldDocumentName:
			next.DocumentName = p.State.DocumentName
		case FieldSenderAlias:
			next.SenderAlias = p.State.SenderAlias
		case FieldDocumentText:
			next.DocumentText = p.State.DocumentText
		case FieldEmbeddedImages:
			next.EmbeddedImages = slices.Clone(p.State.EmbeddedImages)
		case FieldTextDerivedNames:
			next.TextDerivedNames = slices.Clone(p.State.TextDerivedNames)
		case FieldImageDerivedNames:
			next.ImageDerivedNames = slices.Clone(p.State.ImageDerivedNames)
		case FieldConsolidatedNames:
			next.ConsolidatedNames = slices.Clone(p.State.ConsolidatedNames)
		case FieldVerifiedClients:
			next.VerifiedClients = slices.Clone(p.State.VerifiedClients)
		case FieldEmailSent:
			next.EmailSent = s.EmailSent || p.State.EmailSent
		case FieldOutcomes:
			next.Outcomes = append(slices.Clone(s.Outcomes), p.State.Outcomes...)
		}
	})
	return next
}
