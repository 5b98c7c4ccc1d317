package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetGetDelete(t *testing.T) {
	t.Parallel()
	s, err := Open(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Set("OpenAI", " sk-test "))
	got, err := s.Get("openai")
	require.NoError(t, err)
	require.Equal(t, "sk-test", got)

	require.NoError(t, s.Set("twilio", "tw"))
	names, err := s.Names()
	require.NoError(t, err)
	require.Equal(t, []string{"openai", "twilio"}, names)

	require.NoError(t, s.Delete("openai"))
	_, err = s.Get("openai")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Delete("openai"))
}

func TestFileHoldsNoPlaintext(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set("resend", "re_supersecret"))

	path := filepath.Join(dir, fileName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.False(t, strings.Contains(string(data), "re_supersecret"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRejectsEmpty(t *testing.T) {
	t.Parallel()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	require.Error(t, s.Set("", "x"))
	require.Error(t, s.Set("openai", "  "))
	_, err = s.Get(" ")
	require.Error(t, err)
}

func TestTamperedCiphertext(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte(`{"keys":{"openai":"AAAA"}}`), 0o600))

	_, err = s.Get("openai")
	require.Error(t, err)
}
