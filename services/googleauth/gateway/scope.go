package gateway

import "sort"

// Scopes requested from the provider. The identity scopes are the baseline
// that every authorization carries so a profile can always be resolved.
const (
	ScopeOpenID   = "openid"
	ScopeEmail    = "https://www.googleapis.com/auth/userinfo.email"
	ScopeProfile  = "https://www.googleapis.com/auth/userinfo.profile"
	ScopeCalendar = "https://www.googleapis.com/auth/calendar.events"
)

func BaselineScopes() []string {
	return []string{ScopeOpenID, ScopeEmail, ScopeProfile}
}

// UnionScopes merges the requested scopes with the baseline identity scopes,
// deduplicated and sorted.
func UnionScopes(requested []string) []string {
	seen := map[string]bool{}
	union := []string{}
	for _, scope := range append(BaselineScopes(), requested...) {
		if scope == "" || seen[scope] {
			continue
		}
		seen[scope] = true
		union = append(union, scope)
	}
	sort.Strings(union)

	return union
}

func ContainsScope(scopes []string, wanted string) bool {
	for _, scope := range scopes {
		if scope == wanted {
			return true
		}
	}
	return false
}
