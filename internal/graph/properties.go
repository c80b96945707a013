package graph

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/microsoftgraph/msgraph-sdk-go/models"
)

// publicStringsNamespace is the PS_PUBLIC_STRINGS property set GUID.
const publicStringsNamespace = "{00020329-0000-0000-C000-000000000046}"

// PropertyID returns the extended property id for a named string property.
func PropertyID(name string) string {
	return fmt.Sprintf("String %s Name %s", publicStringsNamespace, name)
}

// PropertyFilter returns the $filter expression matching the named properties.
func PropertyFilter(names []string) string {
	clauses := make([]string, 0, len(names))
	for _, name := range names {
		id := strings.ReplaceAll(PropertyID(name), "'", "''")
		clauses = append(clauses, fmt.Sprintf("id eq '%s'", id))
	}
	return strings.Join(clauses, " or ")
}

// decodeProperties maps extended properties back to their names. Properties
// outside the public strings namespace are ignored.
func decodeProperties(props []models.SingleValueLegacyExtendedPropertyable) map[string]string {
	prefix := PropertyID("")
	values := make(map[string]string, len(props))
	for _, p := range props {
		if p == nil || p.GetId() == nil {
			continue
		}
		// Graph may change the casing of the namespace GUID.
		id := *p.GetId()
		if len(id) < len(prefix) || !strings.EqualFold(id[:len(prefix)], prefix) {
			continue
		}
		values[id[len(prefix):]] = deref(p.GetValue())
	}
	return values
}

// properties is a loaded copy of the event's custom properties.
type properties struct {
	host    *Host
	eventID string

	mu     sync.Mutex
	values map[string]string
	staged map[string]string
}

func (p *properties) Get(name string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.values[name]
	return v, ok
}

func (p *properties) Set(name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[name] = value
	p.staged[name] = value
}

// Save patches the staged properties onto the event.
func (p *properties) Save(ctx context.Context) error {
	p.mu.Lock()
	staged := maps.Clone(p.staged)
	p.mu.Unlock()
	if len(staged) == 0 {
		return nil
	}

	ext := make([]models.SingleValueLegacyExtendedPropertyable, 0, len(staged))
	for _, name := range slices.Sorted(maps.Keys(staged)) {
		prop := models.NewSingleValueLegacyExtendedProperty()
		id, value := PropertyID(name), staged[name]
		prop.SetId(&id)
		prop.SetValue(&value)
		ext = append(ext, prop)
	}

	event := models.NewEvent()
	event.SetSingleValueExtendedProperties(ext)
	if err := p.host.patchEvent(ctx, p.eventID, "saveCustomProperties", event); err != nil {
		return fmt.Errorf("failed to save custom properties: %w", err)
	}

	p.mu.Lock()
	for name, v := range staged {
		if p.staged[name] == v {
			delete(p.staged, name)
		}
	}
	p.mu.Unlock()
	return nil
}
