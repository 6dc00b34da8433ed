package registry

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/doc-intake/pkg/notion/mocks"
)

func clientPage(id, client, contact, email string) notionapi.Page {
	props := notionapi.Properties{}
	if client != "" {
		props["Client"] = &notionapi.TitleProperty{
			Title: []notionapi.RichText{{PlainText: client}},
		}
	}
	if contact != "" {
		props["Contact"] = &notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{PlainText: contact}},
		}
	}
	if email != "" {
		props["Email"] = &notionapi.EmailProperty{Email: email}
	}
	return notionapi.Page{ID: notionapi.ObjectID(id), Properties: props}
}

func TestLoadNotion(t *testing.T) {
	mc := mocks.NewMockClient(t)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-clients", mock.AnythingOfType("*notionapi.DatabaseQueryRequest")).
		Return(&notionapi.DatabaseQueryResponse{
			Results: []notionapi.Page{
				clientPage("p1", "IBM", "Alice", "alice@ibm.example"),
				clientPage("p2", "IBM", "Bob", "bob@ibm.example"),
				clientPage("p3", "", "Orphan", "orphan@example.com"),
				clientPage("p4", "IKEA", "", ""),
			},
		}, nil).Once()

	records, err := LoadNotion(ctx, mc, "db-clients")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "IBM", records[0].Name)
	require.Len(t, records[0].Contacts, 2)
	assert.Equal(t, "Alice", records[0].Contacts[0].Name)
	assert.Equal(t, "bob@ibm.example", records[0].Contacts[1].Email)

	assert.Equal(t, "IKEA", records[1].Name)
	assert.Empty(t, records[1].Contacts)
}

func TestLoadNotion_Error(t *testing.T) {
	mc := mocks.NewMockClient(t)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-err", mock.Anything).Return(nil, assert.AnError).Once()

	records, err := LoadNotion(ctx, mc, "db-err")
	assert.Error(t, err)
	assert.Nil(t, records)
	assert.Contains(t, err.Error(), "registry: load notion clients")
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "Acme Labs", plainText([]notionapi.RichText{{PlainText: "Acme "}, {PlainText: "Labs"}}))
	assert.Equal(t, "", plainText(nil))
}
