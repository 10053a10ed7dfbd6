package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/klarahealth/agentcore/pkg/entities"
	"github.com/klarahealth/agentcore/pkg/tools"
)

// Patient is a persisted patient demographic + chart summary row.
type Patient struct {
	ID      string
	Name    string
	DOB     string
	Gender  string
	Records []tools.PatientRecordSummary
	Imaging []tools.PatientImagingSummary
}

// UpsertPatient inserts or replaces a patient row.
func (s *Store) UpsertPatient(ctx context.Context, p Patient) error {
	recordsJSON, err := json.Marshal(p.Records)
	if err != nil {
		return fmt.Errorf("storage: marshal records: %w", err)
	}
	imagingJSON, err := json.Marshal(p.Imaging)
	if err != nil {
		return fmt.Errorf("storage: marshal imaging: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO patients (id, name, dob, gender, records_json, imaging_json)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name, dob = excluded.dob, gender = excluded.gender,
	records_json = excluded.records_json, imaging_json = excluded.imaging_json`,
		p.ID, p.Name, p.DOB, p.Gender, string(recordsJSON), string(imagingJSON))
	if err != nil {
		return fmt.Errorf("storage: upsert patient: %w", err)
	}
	return nil
}

// FindPatient implements tools.PatientStore: a case-insensitive match on id
// or name substring, returning the first hit.
func (s *Store) FindPatient(ctx context.Context, query string) (tools.PatientSummary, bool, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return tools.PatientSummary{}, false, nil
	}

	row := s.db.QueryRowContext(ctx, `
SELECT id, name, dob, gender, records_json, imaging_json FROM patients
WHERE id = ? OR LOWER(name) LIKE '%' || LOWER(?) || '%'
LIMIT 1`, query, query)

	var p Patient
	var recordsJSON, imagingJSON string
	err := row.Scan(&p.ID, &p.Name, &p.DOB, &p.Gender, &recordsJSON, &imagingJSON)
	if err == sql.ErrNoRows {
		return tools.PatientSummary{}, false, nil
	}
	if err != nil {
		return tools.PatientSummary{}, false, fmt.Errorf("storage: find patient: %w", err)
	}

	if err := json.Unmarshal([]byte(recordsJSON), &p.Records); err != nil {
		return tools.PatientSummary{}, false, fmt.Errorf("storage: unmarshal records: %w", err)
	}
	if err := json.Unmarshal([]byte(imagingJSON), &p.Imaging); err != nil {
		return tools.PatientSummary{}, false, fmt.Errorf("storage: unmarshal imaging: %w", err)
	}

	return tools.PatientSummary{
		ID: p.ID, Name: p.Name, DOB: p.DOB, Gender: p.Gender,
		Records: p.Records, Imaging: p.Imaging,
	}, true, nil
}

// ListEntityCandidates returns every known patient as an entities.Entity,
// the candidate catalogue C6's detector scans streamed text against.
func (s *Store) ListEntityCandidates(ctx context.Context) ([]entities.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM patients`)
	if err != nil {
		return nil, fmt.Errorf("storage: list entity candidates: %w", err)
	}
	defer rows.Close()

	var out []entities.Entity
	for rows.Next() {
		var e entities.Entity
		if err := rows.Scan(&e.ID, &e.Name); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
