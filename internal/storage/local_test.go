package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Store("users/42.json", []byte(`{"a":1}`)))
	require.NoError(t, s.Store("users/7.json", []byte(`{}`)))
	require.NoError(t, s.Store("posts/42/p1.json", []byte(`{}`)))

	data, err := s.Retrieve("users/42.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	names, err := s.List("users/")
	require.NoError(t, err)
	assert.Equal(t, []string{"users/42.json", "users/7.json"}, names)

	require.NoError(t, s.Delete("users/42.json"))
	require.NoError(t, s.Delete("users/42.json"))

	_, err = s.Retrieve("users/42.json")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalStorage_RejectsEscapingNames(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"../outside", "/etc/passwd", "."} {
		assert.Error(t, s.Store(name, []byte("x")), name)
	}
}

func TestNewLocalStorage_RequiresRoot(t *testing.T) {
	_, err := NewLocalStorage("")
	assert.Error(t, err)
}
