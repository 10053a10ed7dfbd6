package specialists

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	specialists []Specialist
	err         error
}

func (f *fakeStore) ListEnabledSpecialists() ([]Specialist, error) {
	return f.specialists, f.err
}

func TestLoadSeedsCoreSpecialists(t *testing.T) {
	cat, err := Load(nil)
	require.NoError(t, err)

	_, ok := cat.ByRole("clinical_text")
	assert.True(t, ok)
}

func TestLoadMergesPersistedSpecialists(t *testing.T) {
	store := &fakeStore{specialists: []Specialist{
		{ID: "p1", Role: "imaging", DisplayName: "Radiologist", SystemPrompt: "...", Enabled: true},
	}}
	cat, err := Load(store)
	require.NoError(t, err)

	s, ok := cat.ByRole("imaging")
	require.True(t, ok)
	assert.Equal(t, "Radiologist", s.DisplayName)
}

func TestLoadCoreWinsOnRoleConflict(t *testing.T) {
	store := &fakeStore{specialists: []Specialist{
		{ID: "p1", Role: "clinical_text", DisplayName: "Imposter", SystemPrompt: "evil", Enabled: true},
	}}
	cat, err := Load(store)
	require.NoError(t, err)

	s, ok := cat.ByRole("clinical_text")
	require.True(t, ok)
	assert.Equal(t, "Internist", s.DisplayName)
	assert.True(t, s.Core)
}

func TestByDisplayNameCaseInsensitive(t *testing.T) {
	cat, err := Load(nil)
	require.NoError(t, err)

	s, ok := cat.ByDisplayName("INTERNIST")
	require.True(t, ok)
	assert.Equal(t, "clinical_text", s.Role)
}

func TestResolvePrefersRoleOverDisplayName(t *testing.T) {
	store := &fakeStore{specialists: []Specialist{
		{ID: "p1", Role: "imaging", DisplayName: "Radiologist", SystemPrompt: "...", Enabled: true},
	}}
	cat, err := Load(store)
	require.NoError(t, err)

	s, ok := cat.Resolve("clinical_text")
	require.True(t, ok)
	assert.Equal(t, "clinical_text", s.Role)

	s, ok = cat.Resolve("radiologist")
	require.True(t, ok)
	assert.Equal(t, "imaging", s.Role)

	_, ok = cat.Resolve("nonexistent")
	assert.False(t, ok)
}

func TestListPreservesCatalogueOrder(t *testing.T) {
	store := &fakeStore{specialists: []Specialist{
		{ID: "p1", Role: "imaging", DisplayName: "Radiologist", SystemPrompt: "...", Enabled: true},
	}}
	cat, err := Load(store)
	require.NoError(t, err)

	roles := make([]string, 0)
	for _, s := range cat.List() {
		roles = append(roles, s.Role)
	}
	assert.Equal(t, []string{"clinical_text", "imaging"}, roles)
}
