package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/klarahealth/agentcore/pkg/tools"
)

// UpsertToolRecord persists a dynamic tool record so it can be reconciled
// into the registry at the start of every turn (§4.1 "Dynamic loading").
func (s *Store) UpsertToolRecord(ctx context.Context, rec tools.DynamicToolRecord) error {
	schemaJSON, err := json.Marshal(rec.Schema)
	if err != nil {
		return fmt.Errorf("storage: marshal schema: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO tool_records (symbol, display_name, description, kind, scope, assigned_specialist_id, enabled, endpoint, args_schema_json)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(symbol) DO UPDATE SET
	description = excluded.description, kind = excluded.kind, scope = excluded.scope,
	assigned_specialist_id = excluded.assigned_specialist_id, enabled = excluded.enabled,
	endpoint = excluded.endpoint, args_schema_json = excluded.args_schema_json`,
		rec.Symbol, rec.Symbol, rec.Description, rec.Kind, string(rec.Scope),
		nullableString(rec.AssignedSpecialistID), rec.Enabled, nullableString(rec.Endpoint), string(schemaJSON))
	if err != nil {
		return fmt.Errorf("storage: upsert tool record: %w", err)
	}
	return nil
}

// ListToolRecords returns every persisted dynamic tool record, enabled or
// not; ReconcileDynamic filters for Enabled itself.
func (s *Store) ListToolRecords(ctx context.Context) ([]tools.DynamicToolRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT symbol, description, kind, scope, assigned_specialist_id, enabled, endpoint, args_schema_json
FROM tool_records`)
	if err != nil {
		return nil, fmt.Errorf("storage: list tool records: %w", err)
	}
	defer rows.Close()

	var out []tools.DynamicToolRecord
	for rows.Next() {
		var rec tools.DynamicToolRecord
		var scope, schemaJSON string
		var assignedID, endpoint sql.NullString
		if err := rows.Scan(&rec.Symbol, &rec.Description, &rec.Kind, &scope, &assignedID, &rec.Enabled, &endpoint, &schemaJSON); err != nil {
			return nil, err
		}
		rec.Scope = tools.Scope(scope)
		rec.AssignedSpecialistID = assignedID.String
		rec.Endpoint = endpoint.String
		if schemaJSON != "" {
			if err := json.Unmarshal([]byte(schemaJSON), &rec.Schema); err != nil {
				return nil, fmt.Errorf("storage: unmarshal schema for %s: %w", rec.Symbol, err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
