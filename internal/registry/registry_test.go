package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/sells-group/doc-intake/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func sampleRecords() []model.ClientRecord {
	return []model.ClientRecord{
		{Name: "IBM", Contacts: []model.Contact{
			{Name: "Alice", Email: "alice@ibm.example"},
			{Name: "Bob", Email: "bob@ibm.example"},
		}},
		{Name: "IKEA"},
	}
}

func TestRegistry_IsKnownClient(t *testing.T) {
	r := New(sampleRecords())

	assert.True(t, r.IsKnownClient("IBM"))
	assert.True(t, r.IsKnownClient("IKEA"))
	assert.False(t, r.IsKnownClient("ibm"))
	assert.False(t, r.IsKnownClient("IBM "))
	assert.False(t, r.IsKnownClient(""))
}

func TestRegistry_CanonicalEquivalence(t *testing.T) {
	const (
		composed   = "Nestl\u00e9"  // é as one code point
		decomposed = "Nestle\u0301" // e + combining acute
	)
	r := New([]model.ClientRecord{
		{Name: decomposed, Contacts: []model.Contact{{Name: "Eve", Email: "eve@nestle.example"}}},
	})

	assert.True(t, r.IsKnownClient(composed))
	assert.True(t, r.IsKnownClient(decomposed))
	assert.Equal(t, []string{composed}, r.Names())
	assert.Len(t, r.ContactsFor(composed), 1)
	assert.Equal(t, []string{composed}, Verify(r, []string{composed, "IBM"}))
}

func TestRegistry_ContactsFor(t *testing.T) {
	r := New(sampleRecords())

	contacts := r.ContactsFor("IBM")
	assert.Len(t, contacts, 2)
	assert.Equal(t, "alice@ibm.example", contacts[0].Email)

	assert.NotNil(t, r.ContactsFor("IKEA"))
	assert.Empty(t, r.ContactsFor("IKEA"))
	assert.NotNil(t, r.ContactsFor("Unknown"))
	assert.Empty(t, r.ContactsFor("Unknown"))
}

func TestRegistry_ContactsForReturnsCopy(t *testing.T) {
	r := New(sampleRecords())

	contacts := r.ContactsFor("IBM")
	contacts[0].Email = "changed"

	assert.Equal(t, "alice@ibm.example", r.ContactsFor("IBM")[0].Email)
}

func TestRegistry_MergesDuplicatesAndDropsBlankEmail(t *testing.T) {
	r := New([]model.ClientRecord{
		{Name: "IBM", Contacts: []model.Contact{{Name: "Alice", Email: "alice@ibm.example"}}},
		{Name: " IBM", Contacts: []model.Contact{{Name: "Carol", Email: " "}, {Name: "Dan", Email: "dan@ibm.example"}}},
		{Name: ""},
	})

	assert.Equal(t, 1, r.Len())
	contacts := r.ContactsFor("IBM")
	assert.Len(t, contacts, 2)
	assert.Equal(t, "Dan", contacts[1].Name)
}

func TestRegistry_Names(t *testing.T) {
	r := New(DefaultClients())
	assert.Equal(t, []string{"IBM", "IKEA", "Microsoft", "Neste", "Unilever"}, r.Names())
}
