package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	encoded, err := Hash("pastel-de-queijo")
	require.NoError(t, err)
	assert.Contains(t, encoded, "$argon2id$v=19$")

	assert.True(t, Verify("pastel-de-queijo", encoded))
	assert.False(t, Verify("pastel-de-carne", encoded))

	other, err := Hash("pastel-de-queijo")
	require.NoError(t, err)
	assert.NotEqual(t, encoded, other)
}

func TestVerifyRejectsMalformed(t *testing.T) {
	for _, encoded := range []string{"", "plain", "$argon2i$v=19$m=1,t=1,p=1$YQ$YQ", "$argon2id$v=19$m=x$YQ$YQ"} {
		assert.False(t, Verify("x", encoded), encoded)
	}
}
