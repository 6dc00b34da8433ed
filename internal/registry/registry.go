// Package registry holds the known-client reference data: which client names
// are recognised and who to notify for each of them.
package registry

import (
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/doc-intake/internal/model"
)

// Lookup is the membership check used by Verify.
type Lookup interface {
	IsKnownClient(name string) bool
}

// Registry is an immutable index of client records. Names are keyed in
// Unicode NFC, the same form candidate names are normalized to.
type Registry struct {
	clients map[string][]model.Contact
}

// New indexes records by name. Records sharing a name have their contacts
// merged in order; contacts without an email address are dropped.
func New(records []model.ClientRecord) *Registry {
	r := &Registry{clients: make(map[string][]model.Contact, len(records))}
	for _, rec := range records {
		name := key(strings.TrimSpace(rec.Name))
		if name == "" {
			continue
		}
		contacts := r.clients[name]
		for _, c := range rec.Contacts {
			if strings.TrimSpace(c.Email) == "" {
				zap.L().Warn("registry: dropping contact without email",
					zap.String("client", name),
					zap.String("contact", c.Name),
				)
				continue
			}
			contacts = append(contacts, model.Contact{
				Name:  strings.TrimSpace(c.Name),
				Email: strings.TrimSpace(c.Email),
			})
		}
		r.clients[name] = contacts
	}
	return r
}

// IsKnownClient reports whether name is registered. Matching is
// case-sensitive and exact up to NFC canonical equivalence.
func (r *Registry) IsKnownClient(name string) bool {
	_, ok := r.clients[key(name)]
	return ok
}

// ContactsFor returns a copy of the contacts registered for name, or an
// empty slice when the client is unknown or has none.
func (r *Registry) ContactsFor(name string) []model.Contact {
	contacts := r.clients[key(name)]
	out := make([]model.Contact, len(contacts))
	copy(out, contacts)
	return out
}

func key(name string) string { return norm.NFC.String(name) }

// Names returns every registered client name in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.clients))
	for name := range r.clients {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered clients.
func (r *Registry) Len() int { return len(r.clients) }

// DefaultClients is the built-in client list used when no registry source
// is configured. None of these clients have contacts.
func DefaultClients() []model.ClientRecord {
	return []model.ClientRecord{
		{Name: "Neste"},
		{Name: "IBM"},
		{Name: "IKEA"},
		{Name: "Microsoft"},
		{Name: "Unilever"},
	}
}
