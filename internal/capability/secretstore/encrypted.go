// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Greentic Messaging Contributors

package secretstore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"

	"github.com/greentic/messaging-providers/internal/capability"
)

const (
	saltLen      = 16
	nonceLen     = 12
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// Error codes for the encrypted file store.
const (
	CodeSecretsFile = "SECRETS_FILE"
	CodeDecrypt     = "SECRETS_DECRYPT"
)

// EncryptedFile stores secrets in an AES-256-GCM encrypted JSON object with
// an Argon2id derived key.
//
// File layout: salt(16) || nonce(12) || ciphertext.
type EncryptedFile struct {
	path       string
	passphrase func() (string, error)

	mu     sync.Mutex
	cache  map[string]string
	loaded bool
}

// NewEncryptedFile creates a store for path. passphrase is called lazily on
// first access.
func NewEncryptedFile(path string, passphrase func() (string, error)) *EncryptedFile {
	return &EncryptedFile{path: path, passphrase: passphrase}
}

// Get implements capability.SecretStore.
func (p *EncryptedFile) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureLoaded(); err != nil {
		return nil, err
	}
	v, ok := p.cache[key]
	if !ok {
		return nil, capability.ErrNotFound
	}
	return []byte(v), nil
}

// Keys lists the stored secret names, sorted.
func (p *EncryptedFile) Keys() ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureLoaded(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(p.cache))
	for k := range p.cache {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Put stores secrets and re-encrypts the file once.
func (p *EncryptedFile) Put(pairs map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureLoaded(); err != nil {
		return err
	}
	maps.Copy(p.cache, pairs)
	return p.flush()
}

// Delete removes key and re-encrypts the file.
func (p *EncryptedFile) Delete(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureLoaded(); err != nil {
		return err
	}
	if _, ok := p.cache[key]; !ok {
		return capability.ErrNotFound
	}
	delete(p.cache, key)
	return p.flush()
}

// ensureLoaded decrypts the file into the cache. Caller holds p.mu.
func (p *EncryptedFile) ensureLoaded() error {
	if p.loaded {
		return nil
	}

	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		p.cache = make(map[string]string)
		p.loaded = true
		return nil
	}
	if err != nil {
		return oops.Code(CodeSecretsFile).With("path", p.path).Wrapf(err, "reading secrets file")
	}

	pass, err := p.passphrase()
	if err != nil {
		return oops.Code(CodeSecretsFile).Wrapf(err, "obtaining passphrase")
	}
	plaintext, err := decrypt(data, pass)
	if err != nil {
		return err
	}

	m := make(map[string]string)
	if err := json.Unmarshal(plaintext, &m); err != nil {
		return oops.Code(CodeSecretsFile).With("path", p.path).Wrapf(err, "parsing secrets")
	}
	p.cache = m
	p.loaded = true
	return nil
}

// flush encrypts the cache and atomically replaces the file. Caller holds
// p.mu.
func (p *EncryptedFile) flush() error {
	pass, err := p.passphrase()
	if err != nil {
		return oops.Code(CodeSecretsFile).Wrapf(err, "obtaining passphrase")
	}
	plaintext, err := json.Marshal(p.cache)
	if err != nil {
		return oops.Code(CodeSecretsFile).Wrapf(err, "marshalling secrets")
	}
	ciphertext, err := encrypt(plaintext, pass)
	if err != nil {
		return err
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return oops.Code(CodeSecretsFile).With("dir", dir).Wrapf(err, "creating secrets directory")
	}
	tmp, err := os.CreateTemp(dir, ".secrets-*.tmp")
	if err != nil {
		return oops.Code(CodeSecretsFile).Wrapf(err, "creating temp file")
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(ciphertext); err != nil {
		_ = tmp.Close()
		cleanup()
		return oops.Code(CodeSecretsFile).Wrapf(err, "writing temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return oops.Code(CodeSecretsFile).Wrapf(err, "syncing temp file")
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return oops.Code(CodeSecretsFile).Wrapf(err, "closing temp file")
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		cleanup()
		return oops.Code(CodeSecretsFile).Wrapf(err, "setting permissions")
	}
	if err := os.Rename(tmpPath, p.path); err != nil {
		cleanup()
		return oops.Code(CodeSecretsFile).Wrapf(err, "renaming temp file")
	}
	return nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, oops.Code(CodeDecrypt).Wrapf(err, "creating cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, oops.Code(CodeDecrypt).Wrapf(err, "creating GCM")
	}
	return gcm, nil
}

func encrypt(plaintext []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, oops.Code(CodeDecrypt).Wrapf(err, "generating salt")
	}
	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, oops.Code(CodeDecrypt).Wrapf(err, "generating nonce")
	}

	out := make([]byte, 0, saltLen+nonceLen+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

func decrypt(data []byte, passphrase string) ([]byte, error) {
	if len(data) < saltLen+nonceLen+1 {
		return nil, oops.Code(CodeDecrypt).Errorf("encrypted data too short: %d bytes", len(data))
	}
	salt := data[:saltLen]
	nonce := data[saltLen : saltLen+nonceLen]
	ciphertext := data[saltLen+nonceLen:]

	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, oops.Code(CodeDecrypt).Wrapf(err, "decryption failed (wrong passphrase?)")
	}
	return plaintext, nil
}
