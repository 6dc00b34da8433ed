package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/sells-group/doc-intake/internal/document"
	"github.com/sells-group/doc-intake/internal/model"
	"github.com/sells-group/doc-intake/internal/names"
	"github.com/sells-group/doc-intake/internal/notify"
	"github.com/sells-group/doc-intake/internal/registry"
)

// Node names of the intake graph.
const (
	NodeProcessDocument      = "process_document"
	NodeExtractTextEntities  = "extract_text_entities"
	NodeExtractImages        = "extract_images"
	NodeExtractImageEntities = "extract_image_entities"
	NodeConsolidate          = "consolidate"
	NodeVerify               = "verify"
	NodeNotify               = "notify"
)

// EntityExtractor finds candidate client names in text and images.
type EntityExtractor interface {
	FromText(ctx context.Context, text string) ([]string, model.TokenUsage, error)
	FromImages(ctx context.Context, images [][]byte) ([]string, model.TokenUsage, error)
}

// Directory is the client registry as seen by the verify and notify nodes.
type Directory interface {
	registry.Lookup
	notify.ContactSource
}

// Notifier delivers the document to the contacts of each verified client.
type Notifier interface {
	Notify(ctx context.Context, contacts notify.ContactSource, tmpl registry.Template, clients []string, doc notify.Document, alias string) []model.Outcome
}

// Deps are the collaborators the intake nodes call.
type Deps struct {
	Extractor EntityExtractor
	Directory Directory
	Notifier  Notifier
	Template  registry.Template
	Images    document.ImageOptions
}

// NewIntakeGraph wires deps into the fixed intake DAG:
//
//	process_document -> extract_text_entities ------------------------> consolidate -> verify -> notify
//	process_document -> extract_images -> extract_image_entities ----/
func NewIntakeGraph(d Deps) (*Graph, error) {
	n := &intakeNodes{deps: d}
	return NewGraph(
		Node{
			Name:   NodeProcessDocument,
			Reads:  model.FieldDocumentBytes | model.FieldDocumentName,
			Writes: model.FieldDocumentText,
			Run:    n.processDocument,
		},
		Node{
			Name:   NodeExtractTextEntities,
			Needs:  []string{NodeProcessDocument},
			Reads:  model.FieldDocumentText,
			Writes: model.FieldTextDerivedNames,
			Run:    n.extractTextEntities,
		},
		Node{
			Name:   NodeExtractImages,
			Needs:  []string{NodeProcessDocument},
			Reads:  model.FieldDocumentBytes | model.FieldDocumentName,
			Writes: model.FieldEmbeddedImages,
			Run:    n.extractImages,
		},
		Node{
			Name:   NodeExtractImageEntities,
			Needs:  []string{NodeExtractImages},
			Reads:  model.FieldEmbeddedImages,
			Writes: model.FieldImageDerivedNames,
			Run:    n.extractImageEntities,
		},
		Node{
			Name:   NodeConsolidate,
			Needs:  []string{NodeExtractTextEntities, NodeExtractImageEntities},
			Reads:  model.FieldTextDerivedNames | model.FieldImageDerivedNames,
			Writes: model.FieldConsolidatedNames,
			Run:    n.consolidate,
		},
		Node{
			Name:   NodeVerify,
			Needs:  []string{NodeConsolidate},
			Reads:  model.FieldConsolidatedNames,
			Writes: model.FieldVerifiedClients,
			Run:    n.verify,
		},
		Node{
			Name:   NodeNotify,
			Needs:  []string{NodeVerify},
			Reads:  model.FieldVerifiedClients | model.FieldDocumentBytes | model.FieldDocumentName | model.FieldSenderAlias,
			Writes: model.FieldEmailSent | model.FieldOutcomes,
			Run:    n.notify,
		},
	)
}

// Mermaid renders the intake graph as a Mermaid flowchart.
func Mermaid() string {
	g, err := NewIntakeGraph(Deps{})
	if err != nil {
		// The intake graph is static; a failure here is a programming error.
		panic(err)
	}
	return g.Mermaid()
}

// Mermaid renders g as a top-down Mermaid flowchart with START and END
// terminals.
func (g *Graph) Mermaid() string {
	hasDependents := make(map[string]bool, len(g.nodes))
	for _, n := range g.nodes {
		for _, need := range n.Needs {
			hasDependents[need] = true
		}
	}

	var b strings.Builder
	b.WriteString("flowchart TD\n")
	b.WriteString("    START([START])\n")
	b.WriteString("    END([END])\n")
	for _, n := range g.nodes {
		if len(n.Needs) == 0 {
			fmt.Fprintf(&b, "    START --> %s\n", n.Name)
		}
		for _, need := range n.Needs {
			fmt.Fprintf(&b, "    %s --> %s\n", need, n.Name)
		}
	}
	for _, n := range g.nodes {
		if !hasDependents[n.Name] {
			fmt.Fprintf(&b, "    %s --> END\n", n.Name)
		}
	}
	return b.String()
}

type intakeNodes struct {
	deps Deps
}

func (n *intakeNodes) processDocument(_ context.Context, s model.State) (model.Patch, error) {
	text := document.ExtractText(s.DocumentName, s.DocumentBytes)
	return model.Patch{
		Fields: model.FieldDocumentText,
		State:  model.State{DocumentText: text},
	}, nil
}

func (n *intakeNodes) extractTextEntities(ctx context.Context, s model.State) (model.Patch, error) {
	found, usage, err := n.deps.Extractor.FromText(ctx, s.DocumentText)
	if err != nil {
		return model.Patch{Usage: usage}, err
	}
	return model.Patch{
		Fields: model.FieldTextDerivedNames,
		State:  model.State{TextDerivedNames: found},
		Usage:  usage,
	}, nil
}

func (n *intakeNodes) extractImages(_ context.Context, s model.State) (model.Patch, error) {
	images, err := document.ExtractImages(s.DocumentName, s.DocumentBytes, n.deps.Images)
	if err != nil {
		return model.NoOp, err
	}
	return model.Patch{
		Fields: model.FieldEmbeddedImages,
		State:  model.State{EmbeddedImages: images},
	}, nil
}

func (n *intakeNodes) extractImageEntities(ctx context.Context, s model.State) (model.Patch, error) {
	found, usage, err := n.deps.Extractor.FromImages(ctx, s.EmbeddedImages)
	if err != nil {
		return model.Patch{Usage: usage}, err
	}
	return model.Patch{
		Fields: model.FieldImageDerivedNames,
		State:  model.State{ImageDerivedNames: found},
		Usage:  usage,
	}, nil
}

func (n *intakeNodes) consolidate(_ context.Context, s model.State) (model.Patch, error) {
	return model.Patch{
		Fields: model.FieldConsolidatedNames,
		State:  model.State{ConsolidatedNames: names.Consolidate(s.TextDerivedNames, s.ImageDerivedNames)},
	}, nil
}

func (n *intakeNodes) verify(_ context.Context, s model.State) (model.Patch, error) {
	return model.Patch{
		Fields: model.FieldVerifiedClients,
		State:  model.State{VerifiedClients: registry.Verify(n.deps.Directory, s.ConsolidatedNames)},
	}, nil
}

func (n *intakeNodes) notify(ctx context.Context, s model.State) (model.Patch, error) {
	outcomes := n.deps.Notifier.Notify(ctx, n.deps.Directory, n.deps.Template, s.VerifiedClients,
		notify.Document{Name: s.DocumentName, Data: s.DocumentBytes}, s.SenderAlias)
	return model.Patch{
		Fields: model.FieldEmailSent | model.FieldOutcomes,
		State: model.State{
			EmailSent: notify.AnySuccess(outcomes),
			Outcomes:  outcomes,
		},
	}, nil
}
