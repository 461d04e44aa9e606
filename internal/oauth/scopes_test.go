package oauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateScopesAcceptsKnownTags(t *testing.T) {
	known := map[string]struct{}{"prod": {}}
	err := validateScopes([]string{"tag:prod"}, known)
	assert.NoError(t, err)
}

func TestValidateScopesRejectsUnknownTag(t *testing.T) {
	known := map[string]struct{}{"prod": {}}
	err := validateScopes([]string{"tag:staging"}, known)
	assert.Error(t, err)
}

func TestValidateScopesRejectsNonTagScope(t *testing.T) {
	known := map[string]struct{}{"prod": {}}
	err := validateScopes([]string{"openid"}, known)
	assert.Error(t, err)
}

func TestValidateScopesRejectsEmpty(t *testing.T) {
	err := validateScopes(nil, map[string]struct{}{"prod": {}})
	assert.Error(t, err)
}

func TestParseAndJoinScopeString(t *testing.T) {
	scopes := parseScopeString("tag:prod tag:staging")
	assert.Equal(t, []string{"tag:prod", "tag:staging"}, scopes)
	assert.Equal(t, "tag:prod tag:staging", joinScopes(scopes))
}

func TestTagScopeName(t *testing.T) {
	name, ok := tagScopeName("tag:prod")
	assert.True(t, ok)
	assert.Equal(t, "prod", name)

	_, ok = tagScopeName("tag:")
	assert.False(t, ok)

	_, ok = tagScopeName("openid")
	assert.False(t, ok)
}
