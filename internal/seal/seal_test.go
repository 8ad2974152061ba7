package seal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealRoundTrip(t *testing.T) {
	s, err := New([]byte("correct horse battery staple"))
	require.NoError(t, err)

	sealed, err := s.Seal("eyJhbGciOi.payload.sig")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, sealed, "payload")

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "eyJhbGciOi.payload.sig", plain)
}

func TestOpenPassesPlaintextThrough(t *testing.T) {
	s, err := New([]byte("k"))
	require.NoError(t, err)
	got, err := s.Open("plain-token")
	require.NoError(t, err)
	assert.Equal(t, "plain-token", got)
}

func TestWrongSecretFails(t *testing.T) {
	a, err := New([]byte("one"))
	require.NoError(t, err)
	b, err := New([]byte("two"))
	require.NoError(t, err)

	sealed, err := a.Seal("tok")
	require.NoError(t, err)
	_, err = b.Open(sealed)
	assert.Error(t, err)
}

func TestNilSealer(t *testing.T) {
	var s *Sealer
	v, err := s.Seal("tok")
	require.NoError(t, err)
	assert.Equal(t, "tok", v)

	_, err = s.Open(prefix + "abc")
	assert.Error(t, err)
}

func TestEmptySecret(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNoSecret)
	assert.Len(t, GenerateSecret(), 32)
}
