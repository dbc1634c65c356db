package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSignature(t *testing.T) {
	body := []byte(`{"jobId":"j-1","pages":2}`)
	signed := Sign(body, "whsec")

	ok, err := ValidateSignature(body, signed, "whsec")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ValidateSignature(body, signed[len("sha256="):], "whsec")
	require.NoError(t, err)
	assert.True(t, ok, "bare hex is accepted")

	ok, err = ValidateSignature(body, signed, "other")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ValidateSignature(body, "sha256=zz-not-hex", "whsec")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ValidateSignature([]byte(`{"jobId":"j-2","pages":2}`), signed, "whsec")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidateSignatureStructuralErrors(t *testing.T) {
	_, err := ValidateSignature([]byte("x"), "sha256=00", "")
	assert.Error(t, err)

	_, err = ValidateSignature([]byte("x"), "  ", "whsec")
	assert.Error(t, err)
}
