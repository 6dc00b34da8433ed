package entity

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/doc-intake/internal/model"
	"github.com/sells-group/doc-intake/internal/names"
	"github.com/sells-group/doc-intake/pkg/anthropic"
)

const textSystemPrompt = `You identify clients mentioned in business documents.

Read the document and list every client it refers to: company names, business entities and organizations the document treats as a client. Ignore vendors, tools, authors and other incidental mentions. Keep the name as written in the document; when the same client appears under variants (for example "ABC Corp." and "ABC Corporation"), list it once using the most complete form.

Respond with JSON only, in exactly this shape:
{"clients":[{"name":"Example Corp"}]}
Return {"clients":[]} when the document names no clients.`

type clientList struct {
	Clients []struct {
		Name string `json:"name"`
	} `json:"clients"`
}

// FromText returns the sorted unique client names the model finds in text.
// Blank text makes no call. Extraction failure markers are sent like any
// other text.
func (e *Extractor) FromText(ctx context.Context, text string) ([]string, model.TokenUsage, error) {
	if strings.TrimSpace(text) == "" {
		return []string{}, model.TokenUsage{}, nil
	}

	resp, usage, err := e.call(ctx, "text entities", anthropic.MessageRequest{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
		System:    []anthropic.SystemBlock{{Text: textSystemPrompt}},
		Messages: []anthropic.Message{{
			Role:    anthropic.RoleUser,
			Content: "<document>\n" + text + "\n</document>",
		}},
	})
	if err != nil {
		return nil, usage, err
	}

	found, err := parseClients(resp.Text())
	if err != nil {
		return nil, usage, err
	}

	zap.L().Debug("entity: text names", zap.Int("count", len(found)))
	return found, usage, nil
}

func parseClients(text string) ([]string, error) {
	var list clientList
	if err := json.Unmarshal([]byte(cleanJSON(text)), &list); err != nil {
		return nil, eris.Wrap(err, "entity: parse clients json")
	}
	raw := make([]string, 0, len(list.Clients))
	for _, c := range list.Clients {
		raw = append(raw, c.Name)
	}
	return names.Union(raw), nil
}

// cleanJSON strips markdown fences and anything outside the outermost
// braces.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
