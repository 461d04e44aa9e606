package oauth

import "strings"

// tagScopePrefix is the only scope shape this server recognizes; every
// other scope string is rejected at /authorize.
const tagScopePrefix = "tag:"

func tagScopeName(scope string) (string, bool) {
	if !strings.HasPrefix(scope, tagScopePrefix) {
		return "", false
	}
	name := strings.TrimPrefix(scope, tagScopePrefix)
	if name == "" {
		return "", false
	}
	return name, true
}

// validateScopes rejects any requested scope that isn't of form "tag:<name>"
// naming a tag at least one configured upstream carries. knownTags is the
// live union of every upstream's tags, supplied by the router.
func validateScopes(requested []string, knownTags map[string]struct{}) error {
	if len(requested) == 0 {
		return errInvalidScope
	}
	for _, scope := range requested {
		name, ok := tagScopeName(scope)
		if !ok {
			return errInvalidScope
		}
		if _, known := knownTags[name]; !known {
			return errInvalidScope
		}
	}
	return nil
}

func parseScopeString(scope string) []string {
	return strings.Fields(scope)
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
