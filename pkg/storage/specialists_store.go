package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klarahealth/agentcore/pkg/specialists"
)

// UpsertSpecialist inserts or replaces a persisted specialist row. Core
// specialists are never written here; they are synthesised in code by
// specialists.CoreCatalogue and always win on role conflict.
func (s *Store) UpsertSpecialist(ctx context.Context, sp specialists.Specialist) error {
	toolsJSON, err := json.Marshal(sp.ToolSymbols)
	if err != nil {
		return fmt.Errorf("storage: marshal tool symbols: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO specialists (id, role, display_name, description, system_prompt, enabled, tool_symbols_json)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	role = excluded.role, display_name = excluded.display_name, description = excluded.description,
	system_prompt = excluded.system_prompt, enabled = excluded.enabled, tool_symbols_json = excluded.tool_symbols_json`,
		sp.ID, sp.Role, sp.DisplayName, sp.Description, sp.SystemPrompt, sp.Enabled, string(toolsJSON))
	if err != nil {
		return fmt.Errorf("storage: upsert specialist: %w", err)
	}
	return nil
}

// ListEnabledSpecialistsContext is the context-aware form; ListEnabledSpecialists
// (no ctx) adapts it to satisfy specialists.Store, which is invoked fresh at
// the start of every turn and has no ambient context to thread through.
func (s *Store) ListEnabledSpecialistsContext(ctx context.Context) ([]specialists.Specialist, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, role, display_name, description, system_prompt, enabled, tool_symbols_json
FROM specialists WHERE enabled = 1`)
	if err != nil {
		return nil, fmt.Errorf("storage: list enabled specialists: %w", err)
	}
	defer rows.Close()

	var out []specialists.Specialist
	for rows.Next() {
		var sp specialists.Specialist
		var toolsJSON string
		if err := rows.Scan(&sp.ID, &sp.Role, &sp.DisplayName, &sp.Description, &sp.SystemPrompt, &sp.Enabled, &toolsJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(toolsJSON), &sp.ToolSymbols); err != nil {
			return nil, fmt.Errorf("storage: unmarshal tool symbols: %w", err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// SpecialistStore adapts Store to specialists.Store by binding a context,
// since specialists.Load is called fresh per turn from inside a context
// the caller already holds.
type SpecialistStore struct {
	Store *Store
	Ctx   context.Context
}

func (a SpecialistStore) ListEnabledSpecialists() ([]specialists.Specialist, error) {
	return a.Store.ListEnabledSpecialistsContext(a.Ctx)
}

var _ specialists.Store = SpecialistStore{}
