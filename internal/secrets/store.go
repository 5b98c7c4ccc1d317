// Package secrets keeps provider API keys in a per-user file (0600), sealed
// with AES-GCM so they do not sit in the config as plain text. It is not a
// replacement for an OS keychain.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

const fileName = "keys.json"

var ErrNotFound = errors.New("secrets: key not found")

// Providers whose keys the store will hold.
var Providers = []string{"openai", "gemini", "resend", "twilio", "google_maps"}

type secretFile struct {
	Keys map[string]string `json:"keys"` // provider -> base64(nonce|ciphertext)
}

type Store struct {
	path string
	key  []byte
}

// Default opens the store under the user config dir.
func Default() (*Store, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	return Open(filepath.Join(dir, "aquaflow"))
}

// Open uses dir for the key file, creating it 0700.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("secrets: mkdir: %w", err)
	}
	return &Store{path: filepath.Join(dir, fileName), key: masterKey()}, nil
}

func (s *Store) Set(provider, key string) error {
	if provider = norm(provider); provider == "" {
		return fmt.Errorf("secrets: provider required")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("secrets: empty key for %s", provider)
	}
	sf, err := s.load()
	if err != nil {
		return err
	}
	ct, err := s.seal([]byte(strings.TrimSpace(key)))
	if err != nil {
		return err
	}
	sf.Keys[provider] = base64.StdEncoding.EncodeToString(ct)
	return s.save(sf)
}

func (s *Store) Get(provider string) (string, error) {
	if provider = norm(provider); provider == "" {
		return "", fmt.Errorf("secrets: provider required")
	}
	sf, err := s.load()
	if err != nil {
		return "", err
	}
	enc, ok := sf.Keys[provider]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, provider)
	}
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", fmt.Errorf("secrets: decode %s: %w", provider, err)
	}
	pt, err := s.open(raw)
	if err != nil {
		return "", fmt.Errorf("secrets: open %s: %w", provider, err)
	}
	return string(pt), nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *Store) Delete(provider string) error {
	if provider = norm(provider); provider == "" {
		return fmt.Errorf("secrets: provider required")
	}
	sf, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := sf.Keys[provider]; !ok {
		return nil
	}
	delete(sf.Keys, provider)
	return s.save(sf)
}

// Names lists the providers with a stored key, sorted.
func (s *Store) Names() ([]string, error) {
	sf, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(sf.Keys))
	for name := range sf.Keys {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) load() (secretFile, error) {
	sf := secretFile{Keys: map[string]string{}}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return sf, nil
	}
	if err != nil {
		return sf, err
	}
	if err := json.Unmarshal(data, &sf); err != nil {
		return sf, fmt.Errorf("secrets: parse %s: %w", s.path, err)
	}
	if sf.Keys == nil {
		sf.Keys = map[string]string{}
	}
	return sf, nil
}

func (s *Store) save(sf secretFile) error {
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func norm(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

// masterKey is derived from the OS user so the file is useless when copied
// to another account.
func masterKey() []byte {
	key := make([]byte, 32)
	blake3.DeriveKey("aquaflow secrets v1", []byte(runtime.GOOS+"-"+os.Getenv("USER")), key)
	return key
}

func (s *Store) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (s *Store) seal(plain []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func (s *Store) open(ciphertext []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}
