package credentials

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// NormalizeScopes dedupes and sorts so that storage and digests never depend
// on the order the provider happened to return scopes in. Unlike the auth-URL
// composition it adds nothing: stored scopes reflect exactly what was granted.
func NormalizeScopes(scopes []string) []string {
	seen := map[string]bool{}
	normalized := []string{}
	for _, scope := range scopes {
		if scope == "" || seen[scope] {
			continue
		}
		seen[scope] = true
		normalized = append(normalized, scope)
	}
	sort.Strings(normalized)

	return normalized
}

// ComputeScopeVersion digests a normalized scope set. Equal sets yield equal
// digests regardless of input order or duplication, which is what lets a
// stored version be compared against the product's current requirement.
func ComputeScopeVersion(scopes []string) string {
	normalized := NormalizeScopes(scopes)
	sum := sha256.Sum256([]byte(strings.Join(normalized, " ")))
	return hex.EncodeToString(sum[:])
}
