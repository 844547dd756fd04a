package crypto

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestNewSealerKeyLength(t *testing.T) {
	_, err := NewSealer("short")
	assert.Error(t, err)

	_, err = NewSealer(testKey)
	assert.NoError(t, err)
}

func TestSealOpen(t *testing.T) {
	s, err := NewSealer(testKey)
	require.NoError(t, err)

	sealed, err := s.Seal("byk_secret", "sub-1")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "byk_secret")

	again, err := s.Seal("byk_secret", "sub-1")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per seal")

	got, err := s.Open(sealed, "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "byk_secret", got)
}

func TestOpenRejectsWrongBinding(t *testing.T) {
	s, err := NewSealer(testKey)
	require.NoError(t, err)

	sealed, err := s.Seal("byk_secret", "sub-1")
	require.NoError(t, err)

	_, err = s.Open(sealed, "sub-2")
	assert.True(t, errors.Is(err, ErrTampered))

	other, err := NewSealer(strings.Repeat("z", 32))
	require.NoError(t, err)
	_, err = other.Open(sealed, "sub-1")
	assert.True(t, errors.Is(err, ErrTampered))

	_, err = s.Open("AAAA", "sub-1")
	assert.True(t, errors.Is(err, ErrTampered))

	_, err = s.Open("not base64!", "sub-1")
	assert.Error(t, err)
}
