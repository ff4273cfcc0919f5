package storage

import (
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStoreRoundTrip(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	key, err := s.Put("biometric/abc.template", strings.NewReader("tpl"))
	require.NoError(t, err)
	assert.Equal(t, "biometric/abc.template", key)

	rc, err := s.Get(key)
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "tpl", string(b))

	_, ok := rc.(io.ReadSeeker)
	assert.True(t, ok)

	require.NoError(t, s.Delete(key))
	_, err = s.Get(key)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(s.Delete(key), ErrNotFound))
}

func TestFSStoreKeysStayInsideBase(t *testing.T) {
	base := t.TempDir()
	s, err := NewFSStore(base)
	require.NoError(t, err)

	key, err := s.Put("../../escape.txt", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "escape.txt", key)

	_, err = s.Put("", strings.NewReader("x"))
	assert.Error(t, err)
}
