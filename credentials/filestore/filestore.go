// Package filestore persists credentials to a file so a session survives
// process restarts. Tokens are sealed with XChaCha20-Poly1305 under a
// per-install random key so they are not readable at rest.
package filestore

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/leadline/go-crm-client/credentials"
	apperrors "github.com/leadline/go-crm-client/internal/errors"
)

var _ credentials.Store = (*FileStore)(nil)

// FileStore stores the token pair in a single encrypted file. The key lives
// next to the credentials file with a ".key" suffix and is created on first
// use.
type FileStore struct {
	path    string
	keyPath string
}

// New returns a FileStore rooted at path. Parent directories are created
// lazily on the first Set.
func New(path string) *FileStore {
	return &FileStore{
		path:    path,
		keyPath: path + ".key",
	}
}

func (fs *FileStore) Get() (credentials.Credentials, error) {
	sealed, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return credentials.Credentials{}, nil
	}
	if err != nil {
		return credentials.Credentials{}, errors.Wrap(err, "[FileStore.Get] read credentials file")
	}

	aead, err := fs.aead()
	if err != nil {
		return credentials.Credentials{}, err
	}

	if len(sealed) < aead.NonceSize() {
		return credentials.Credentials{}, apperrors.ErrCorruptCredentials
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return credentials.Credentials{}, apperrors.Wrapf(apperrors.ErrCorruptCredentials, "open sealed credentials (%v)", err)
	}

	var creds credentials.Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return credentials.Credentials{}, apperrors.Wrapf(apperrors.ErrCorruptCredentials, "unmarshal credentials (%v)", err)
	}
	return creds, nil
}

func (fs *FileStore) Set(creds credentials.Credentials) error {
	if err := os.MkdirAll(filepath.Dir(fs.path), 0o700); err != nil {
		return errors.Wrap(err, "[FileStore.Set] create credentials dir")
	}

	aead, err := fs.aead()
	if err != nil {
		return err
	}

	plaintext, err := json.Marshal(creds)
	if err != nil {
		return errors.Wrap(err, "[FileStore.Set] marshal credentials")
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return errors.Wrap(err, "[FileStore.Set] nonce generation")
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)

	// Write-then-rename so a crash mid-write never leaves a torn file.
	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return errors.Wrap(err, "[FileStore.Set] write credentials file")
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return errors.Wrap(err, "[FileStore.Set] rename credentials file")
	}
	return nil
}

func (fs *FileStore) Clear() error {
	if err := os.Remove(fs.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "[FileStore.Clear] remove credentials file")
	}
	return nil
}

// aead loads the per-install key, creating it on first use.
func (fs *FileStore) aead() (cipher.AEAD, error) {
	key, err := os.ReadFile(fs.keyPath)
	if os.IsNotExist(err) {
		key = make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, errors.Wrap(err, "[FileStore] key generation")
		}
		if err := os.MkdirAll(filepath.Dir(fs.keyPath), 0o700); err != nil {
			return nil, errors.Wrap(err, "[FileStore] create key dir")
		}
		if err := os.WriteFile(fs.keyPath, key, 0o600); err != nil {
			return nil, errors.Wrap(err, "[FileStore] write key file")
		}
	} else if err != nil {
		return nil, errors.Wrap(err, "[FileStore] read key file")
	}

	if len(key) != chacha20poly1305.KeySize {
		return nil, apperrors.Wrapf(apperrors.ErrCorruptCredentials, "key file has wrong size %d", len(key))
	}
	return chacha20poly1305.NewX(key)
}
