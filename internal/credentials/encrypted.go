package credentials

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/sirosfoundation/go-etims/pkg/device"
)

// hkdfInfo binds derived keys to this use so the same passphrase cannot
// unseal blobs produced by an unrelated tool.
const hkdfInfo = "etims-credential-sealing-v1"

// EncryptedProvider implements Provider over sealed credential blobs.
//
// Each credential is stored as a JSON blob at {dir}/{deviceID}.enc,
// encrypted with AES-256-GCM under a key derived from the operator
// passphrase via HKDF-SHA256 with a per-blob random salt. Unsealed
// credentials are cached in memory for the life of the provider.
type EncryptedProvider struct {
	dir        string
	passphrase []byte

	mu    sync.RWMutex
	cache map[string]*device.Credential
}

// NewEncryptedProvider creates a provider over the given directory.
func NewEncryptedProvider(dir, passphrase string) (*EncryptedProvider, error) {
	if passphrase == "" {
		return nil, ErrPassphraseRequired
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("checking credential directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("credential path is not a directory: %s", dir)
	}

	return &EncryptedProvider{
		dir:        dir,
		passphrase: []byte(passphrase),
		cache:      make(map[string]*device.Credential),
	}, nil
}

// sealedBlob is the on-disk layout. The GCM tag stays appended to the
// ciphertext; there is no reason to split it.
type sealedBlob struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Lookup unseals and returns the credential for the given control unit ID.
func (p *EncryptedProvider) Lookup(ctx context.Context, deviceID string) (*device.Credential, error) {
	p.mu.RLock()
	if cred, ok := p.cache[deviceID]; ok {
		p.mu.RUnlock()
		return cred, nil
	}
	p.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(p.dir, deviceID+".enc"))
	if os.IsNotExist(err) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading sealed credential: %w", err)
	}

	var blob sealedBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("parsing sealed credential: %w", err)
	}

	plaintext, err := p.open(&blob)
	if err != nil {
		return nil, fmt.Errorf("unsealing credential %s: %w", deviceID, err)
	}

	cred, err := decodeCredential(plaintext)
	if err != nil {
		return nil, fmt.Errorf("credential %s: %w", deviceID, err)
	}

	p.mu.Lock()
	p.cache[deviceID] = cred
	p.mu.Unlock()

	return cred, nil
}

// List returns the control unit IDs present in the directory.
func (p *EncryptedProvider) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("reading credential directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".enc") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".enc"))
	}
	return ids, nil
}

// Close drops all unsealed credentials from memory.
func (p *EncryptedProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]*device.Credential)
	return nil
}

// Seal encrypts the given YAML credential document and writes it to
// {dir}/{deviceID}.enc, replacing any existing blob. The plaintext must
// decode to a valid credential.
func (p *EncryptedProvider) Seal(deviceID string, plaintext []byte) error {
	if _, err := decodeCredential(plaintext); err != nil {
		return err
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}

	gcm, err := p.cipherFor(salt)
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}

	blob := sealedBlob{
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, nil),
	}
	data, err := json.Marshal(&blob)
	if err != nil {
		return fmt.Errorf("encoding sealed credential: %w", err)
	}

	path := filepath.Join(p.dir, deviceID+".enc")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing sealed credential: %w", err)
	}

	p.mu.Lock()
	delete(p.cache, deviceID)
	p.mu.Unlock()

	return nil
}

func (p *EncryptedProvider) open(blob *sealedBlob) ([]byte, error) {
	gcm, err := p.cipherFor(blob.Salt)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, blob.Nonce, blob.Ciphertext, nil)
}

func (p *EncryptedProvider) cipherFor(salt []byte) (cipher.AEAD, error) {
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, p.passphrase, salt, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}
