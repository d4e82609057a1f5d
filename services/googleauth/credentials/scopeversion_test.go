package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeScopeVersionIsOrderInsensitive(t *testing.T) {
	assert.Equal(t,
		ComputeScopeVersion([]string{"b", "a", "a"}),
		ComputeScopeVersion([]string{"a", "b"}))
}

func TestComputeScopeVersionDistinguishesSets(t *testing.T) {
	assert.NotEqual(t,
		ComputeScopeVersion([]string{"a"}),
		ComputeScopeVersion([]string{"a", "b"}))
}

func TestNormalizeScopesDropsEmpties(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, NormalizeScopes([]string{"b", "", "a", "b"}))
}
