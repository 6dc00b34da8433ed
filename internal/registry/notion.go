package registry

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/doc-intake/internal/model"
	"github.com/sells-group/doc-intake/pkg/notion"
)

// LoadNotion reads client records from a Notion database. Each page is one
// contact: Client (title), Contact (rich_text) and Email (email). Pages
// without a client name are skipped.
func LoadNotion(ctx context.Context, client notion.Client, dbID string) ([]model.ClientRecord, error) {
	var records []model.ClientRecord
	index := make(map[string]int)

	err := notion.EachPage(ctx, client, dbID, func(p notionapi.Page) error {
		name, contact, err := parseClientPage(p)
		if err != nil {
			zap.L().Warn("registry: skipping malformed client page",
				zap.String("page_id", string(p.ID)),
				zap.Error(err),
			)
			return nil
		}
		pos, ok := index[name]
		if !ok {
			pos = len(records)
			index[name] = pos
			records = append(records, model.ClientRecord{Name: name})
		}
		if contact.Email != "" {
			records[pos].Contacts = append(records[pos].Contacts, contact)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "registry: load notion clients")
	}
	return records, nil
}

func parseClientPage(p notionapi.Page) (string, model.Contact, error) {
	var name string
	var c model.Contact

	if prop, ok := p.Properties["Client"]; ok {
		if tp, ok := prop.(*notionapi.TitleProperty); ok {
			name = strings.TrimSpace(plainText(tp.Title))
		}
	}

	if prop, ok := p.Properties["Contact"]; ok {
		if rtp, ok := prop.(*notionapi.RichTextProperty); ok {
			c.Name = strings.TrimSpace(plainText(rtp.RichText))
		}
	}

	if prop, ok := p.Properties["Email"]; ok {
		if ep, ok := prop.(*notionapi.EmailProperty); ok {
			c.Email = strings.TrimSpace(ep.Email)
		}
	}

	if name == "" {
		return "", c, eris.New("missing Client property")
	}
	return name, c, nil
}

func plainText(rts []notionapi.RichText) string {
	var sb strings.Builder
	for _, rt := range rts {
		sb.WriteString(rt.PlainText)
	}
	return sb.String()
}
