package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePatientContext(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertPatient(ctx, Patient{ID: "23", Name: "Jane Roe", DOB: "1985-03-02", Gender: "female"}))

	line, err := s.ResolvePatientContext(ctx, "23")
	require.NoError(t, err)
	assert.Equal(t, "Context: Patient Jane Roe (DOB: 1985-03-02, Gender: female).", line)
}

func TestResolvePatientContextUnknownIDReturnsEmpty(t *testing.T) {
	s := newTestStore(t)
	line, err := s.ResolvePatientContext(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, line)
}

func TestResolveRecordContextPrefersContentOverMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertRecord(ctx, Record{ID: "rec-1", Content: "CBC: WBC 7.2, Hgb 13.1", MetadataJSON: `{"type":"lab"}`}))

	text, err := s.ResolveRecordContext(ctx, "rec-1")
	require.NoError(t, err)
	assert.Equal(t, "CBC: WBC 7.2, Hgb 13.1", text)
}

func TestResolveRecordContextFallsBackToMetadata(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertRecord(ctx, Record{ID: "rec-2", MetadataJSON: `{"type":"imaging","title":"Chest X-ray"}`}))

	text, err := s.ResolveRecordContext(ctx, "rec-2")
	require.NoError(t, err)
	assert.Equal(t, `{"type":"imaging","title":"Chest X-ray"}`, text)
}

func TestGetPatientProfile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertPatient(ctx, Patient{ID: "23", Name: "Jane Roe"}))

	id, name, found, err := s.GetPatientProfile(ctx, "23")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "23", id)
	assert.Equal(t, "Jane Roe", name)

	_, _, found, err = s.GetPatientProfile(ctx, "999")
	require.NoError(t, err)
	assert.False(t, found)
}
