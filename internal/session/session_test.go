package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_AssignsOpaqueID(t *testing.T) {
	s, err := New("anonymous", nil, "", false)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
}

func TestNew_RejectsInvalidFilterSyntax(t *testing.T) {
	_, err := New("anonymous", nil, "(web", false)
	assert.Error(t, err)
}

func TestAdmits_NoFilterNoAuthAdmitsEverything(t *testing.T) {
	s, err := New("anonymous", nil, "", false)
	require.NoError(t, err)
	assert.True(t, s.Admits("web", map[string]struct{}{"web": {}, "prod": {}}))
}

func TestAdmits_FilterExcludesNonMatchingUpstream(t *testing.T) {
	s, err := New("anonymous", nil, "web+prod", false)
	require.NoError(t, err)
	assert.True(t, s.Admits("a", map[string]struct{}{"web": {}, "prod": {}}))
	assert.False(t, s.Admits("b", map[string]struct{}{"db": {}}))
}

func TestAdmits_ScopeRestrictsEvenWhenFilterAdmits(t *testing.T) {
	s, err := New("user1", map[string]struct{}{"web": {}}, "web,db", false)
	require.NoError(t, err)
	assert.True(t, s.Admits("a", map[string]struct{}{"web": {}}))
	assert.False(t, s.Admits("b", map[string]struct{}{"db": {}})) // filter admits db, but scope doesn't grant it
}

func TestAdmits_CachesUntilInvalidated(t *testing.T) {
	s, err := New("anonymous", map[string]struct{}{"web": {}}, "", false)
	require.NoError(t, err)

	assert.True(t, s.Admits("a", map[string]struct{}{"web": {}}))
	// Change the tag set for the same upstream name without invalidating:
	// the cached verdict should still be returned.
	assert.True(t, s.Admits("a", map[string]struct{}{"other": {}}))

	s.InvalidateAdmission()
	assert.False(t, s.Admits("a", map[string]struct{}{"other": {}}))
}

func TestValidateSessionID(t *testing.T) {
	assert.NoError(t, ValidateSessionID("abc"))
	assert.Error(t, ValidateSessionID(""))
}
