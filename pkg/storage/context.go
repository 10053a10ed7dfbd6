package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Record is an arbitrary referenceable context object (lab result, imaging
// report, clinical document) a turn request can pin via record_id.
type Record struct {
	ID           string
	Content      string
	MetadataJSON string
}

func (s *Store) UpsertRecord(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO records (id, content, metadata_json) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET content = excluded.content, metadata_json = excluded.metadata_json`,
		r.ID, r.Content, r.MetadataJSON)
	if err != nil {
		return fmt.Errorf("storage: upsert record: %w", err)
	}
	return nil
}

// ResolvePatientContext implements turn.ContextResolver: it renders the
// §4.7 synthetic context line for a patient_id.
func (s *Store) ResolvePatientContext(ctx context.Context, patientID string) (string, error) {
	var name, dob, gender string
	err := s.db.QueryRowContext(ctx, `SELECT name, dob, gender FROM patients WHERE id = ?`, patientID).
		Scan(&name, &dob, &gender)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("storage: resolve patient context: %w", err)
	}
	return fmt.Sprintf("Context: Patient %s (DOB: %s, Gender: %s).", name, dob, gender), nil
}

// ResolveRecordContext implements turn.ContextResolver: it returns the
// record's textual content, falling back to its metadata when content is
// empty (§4.7 "append its textual content or its metadata").
func (s *Store) ResolveRecordContext(ctx context.Context, recordID string) (string, error) {
	var content, metadataJSON string
	err := s.db.QueryRowContext(ctx, `SELECT content, metadata_json FROM records WHERE id = ?`, recordID).
		Scan(&content, &metadataJSON)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("storage: resolve record context: %w", err)
	}
	if content != "" {
		return content, nil
	}
	return metadataJSON, nil
}

// GetPatientProfile returns the minimal {id, name} pair the graph's
// TurnState.PatientProfile carries, or false if patientID is unknown.
func (s *Store) GetPatientProfile(ctx context.Context, patientID string) (id, name string, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT id, name FROM patients WHERE id = ?`, patientID).Scan(&id, &name)
	if err == sql.ErrNoRows {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("storage: get patient profile: %w", err)
	}
	return id, name, true, nil
}
