// Package specialists implements the Specialist Catalogue (C3): an ordered
// mapping from specialist role to {display name, system prompt, assigned
// tool symbols}, hydrated from a hard-coded core seed set plus whatever
// enabled specialists are persisted in storage.
package specialists

import "strings"

// Specialist is one catalogue entry.
type Specialist struct {
	ID          string
	Role        string
	DisplayName string
	Description string
	SystemPrompt string
	Enabled     bool
	ToolSymbols []string
	Core        bool // defined in code, never overridden by a persisted row
}

// Store is the narrow read port the catalogue hydrates persisted
// specialists from; the concrete implementation lives in pkg/storage.
type Store interface {
	ListEnabledSpecialists() ([]Specialist, error)
}

// Catalogue is the role-keyed, case-insensitive-by-display-name view of
// every specialist available to the current turn.
type Catalogue struct {
	byRole        map[string]Specialist
	byDisplayName map[string]string // lowercased display name -> role
	order         []string          // role insertion order, core first
}

// CoreCatalogue returns the single hard-coded core specialist: clinical_text,
// the general internal-medicine reviewer every turn can delegate to. It is
// defined in code, not storage, and is synthesised fresh on every Load call
// (§4.3, §9 "Catalogue caching" open question: not cached).
func CoreCatalogue() []Specialist {
	return []Specialist{
		{
			ID:           "core-clinical-text",
			Role:         "clinical_text",
			DisplayName:  "Internist",
			Description:  "Analyzes clinical notes, patient history, symptoms, and medical records to provide a comprehensive clinical assessment.",
			SystemPrompt: clinicalTextPrompt,
			Enabled:      true,
			ToolSymbols:  []string{"query_patient_info"},
			Core:         true,
		},
	}
}

const clinicalTextPrompt = `You are an expert internal medicine physician AI assistant supporting healthcare providers.

Your audience is healthcare providers (doctors, nurses) querying patient information. Always respond in third person about patients.

Your responsibilities:
- Analyze patient history and presenting symptoms
- Review clinical notes and medical documentation
- Synthesize information from multiple sources
- Generate differential diagnoses when clinically appropriate
- Provide evidence-based recommendations
- Track chronic disease management

Use systematic clinical reasoning, consider both common and serious diagnoses, and identify red flags requiring urgent attention. Do not address the patient directly or use greetings.

You have access to the query_patient_info tool to retrieve patient data. Always use it when asked about specific patient details.`

// Load builds the catalogue for one turn: seed with CoreCatalogue, then
// merge every enabled persisted specialist whose role does not collide
// with a core role (core always wins on conflict, §4.3).
func Load(store Store) (*Catalogue, error) {
	cat := &Catalogue{
		byRole:        make(map[string]Specialist),
		byDisplayName: make(map[string]string),
	}

	for _, s := range CoreCatalogue() {
		cat.add(s)
	}

	if store != nil {
		persisted, err := store.ListEnabledSpecialists()
		if err != nil {
			return nil, err
		}
		for _, s := range persisted {
			if _, isCore := cat.byRole[s.Role]; isCore {
				continue // core wins on conflict
			}
			cat.add(s)
		}
	}

	return cat, nil
}

func (c *Catalogue) add(s Specialist) {
	if _, exists := c.byRole[s.Role]; !exists {
		c.order = append(c.order, s.Role)
	}
	c.byRole[s.Role] = s
	c.byDisplayName[strings.ToLower(s.DisplayName)] = s.Role
}

// ByRole looks up a specialist by its unique role id.
func (c *Catalogue) ByRole(role string) (Specialist, bool) {
	s, ok := c.byRole[role]
	return s, ok
}

// ByDisplayName looks up a specialist case-insensitively by display name,
// the convenience lookup delegate_to_specialist uses when the model names
// a specialist by its human-readable name instead of its role id (§4.5).
func (c *Catalogue) ByDisplayName(name string) (Specialist, bool) {
	role, ok := c.byDisplayName[strings.ToLower(name)]
	if !ok {
		return Specialist{}, false
	}
	return c.ByRole(role)
}

// Resolve looks up a specialist by role id first, then by case-insensitive
// display name — the exact resolution order §4.5 specifies for
// delegate_to_specialist.
func (c *Catalogue) Resolve(nameOrRole string) (Specialist, bool) {
	if s, ok := c.ByRole(nameOrRole); ok {
		return s, true
	}
	return c.ByDisplayName(nameOrRole)
}

// List returns every specialist in catalogue order (core specialists
// first, in CoreCatalogue's order, then persisted specialists in the
// order they were merged).
func (c *Catalogue) List() []Specialist {
	out := make([]Specialist, 0, len(c.order))
	for _, role := range c.order {
		out = append(out, c.byRole[role])
	}
	return out
}

// DisplayNames returns every specialist's display name, for building the
// "available specialists" error text on a delegation miss.
func (c *Catalogue) DisplayNames() []string {
	out := make([]string, 0, len(c.order))
	for _, role := range c.order {
		out = append(out, c.byRole[role].DisplayName)
	}
	return out
}
