package myrandom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRandomString(t *testing.T) {
	first, err := RealStringer{}.Create()
	assert.NoError(t, err)
	assert.Len(t, first, 32)

	second, err := RealStringer{}.Create()
	assert.NoError(t, err)
	assert.NotEqual(t, first, second)
}
