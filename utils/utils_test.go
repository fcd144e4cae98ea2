package utils

import (
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenUuidFromStrings(t *testing.T) {
	a := GenUuidFromStrings("manager", "asset")
	b := GenUuidFromStrings("asset", "manager")
	assert.Equal(t, a, b, "derived uuid must not depend on argument order")

	c := GenUuidFromStrings("manager", "other")
	assert.NotEqual(t, a, c)

	parsed, err := uuid.FromString(a)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, parsed)
}

func TestGenUuidFromStringsEmpty(t *testing.T) {
	a := GenUuidFromStrings()
	b := GenUuidFromStrings()
	assert.Equal(t, a, b)

	parsed, err := uuid.FromString(a)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, parsed)
}

func TestGenUuidFromStringsStable(t *testing.T) {
	first := GenUuidFromStrings("one", "two", "three")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, GenUuidFromStrings("three", "one", "two"))
	}
}
