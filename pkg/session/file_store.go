package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/crypto/pbkdf2"

	"igengage/pkg/instagram"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000

	fileExt        = ".session"
	fileVersion    = 1
	passphraseFile = ".passphrase"

	// PassphraseEnv overrides the generated passphrase file
	PassphraseEnv = "IGENGAGE_PASSPHRASE"
)

// FileStore keeps one encrypted file per account under dir
type FileStore struct {
	fs         afero.Fs
	dir        string
	passphrase string
	mu         sync.Mutex
}

// sealedFile is the on-disk envelope
type sealedFile struct {
	Version   int       `json:"version"`
	Salt      string    `json:"salt"`
	Encrypted string    `json:"encrypted"`
	Modified  time.Time `json:"modified"`
}

// NewFileStore creates a store rooted at dir
func NewFileStore(fs afero.Fs, dir, passphrase string) *FileStore {
	return &FileStore{fs: fs, dir: dir, passphrase: passphrase}
}

// Name implements Store
func (f *FileStore) Name() string { return "file" }

// Path returns the file that holds the session for account
func (f *FileStore) Path(account string) (string, error) {
	key, err := accountKey(account)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.dir, key+fileExt), nil
}

// Load decrypts the stored session for account
func (f *FileStore) Load(account string) (*instagram.Session, error) {
	path, err := f.Path(account)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	content, err := afero.ReadFile(f.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var sealed sealedFile
	if err := json.Unmarshal(content, &sealed); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(sealed.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(sealed.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	plaintext, err := decrypt(ciphertext, f.key(salt))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session: %w", err)
	}

	return instagram.UnmarshalSession(plaintext)
}

// Save encrypts s and atomically replaces the account's file
func (f *FileStore) Save(s *instagram.Session) error {
	if s == nil {
		return fmt.Errorf("%w: nil session", ErrInvalidAccount)
	}
	path, err := f.Path(s.Account)
	if err != nil {
		return err
	}

	plaintext, err := s.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	ciphertext, err := encrypt(plaintext, f.key(salt))
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}

	content, err := json.MarshalIndent(sealedFile{
		Version:   fileVersion,
		Salt:      base64.StdEncoding.EncodeToString(salt),
		Encrypted: base64.StdEncoding.EncodeToString(ciphertext),
		Modified:  time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session file: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fs.MkdirAll(f.dir, 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	return writeFileAtomic(f.fs, path, content, 0600)
}

// Delete removes the account's file
func (f *FileStore) Delete(account string) error {
	path, err := f.Path(account)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fs.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	return nil
}

func (f *FileStore) key(salt []byte) []byte {
	return pbkdf2.Key([]byte(f.passphrase), salt, iterations, keySize, sha256.New)
}

// writeFileAtomic writes to a temp file, syncs it and renames it over path
func writeFileAtomic(fs afero.Fs, path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	file, err := fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		_ = fs.Remove(tmp)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		_ = fs.Remove(tmp)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// ResolvePassphrase returns IGENGAGE_PASSPHRASE when set, otherwise the
// passphrase kept in dir/.passphrase, generating it on first use.
func ResolvePassphrase(fs afero.Fs, dir string) (string, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return pass, nil
	}

	path := filepath.Join(dir, passphraseFile)
	if content, err := afero.ReadFile(fs, path); err == nil {
		if pass := strings.TrimSpace(string(content)); pass != "" {
			return pass, nil
		}
	}

	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	passphrase := base64.URLEncoding.EncodeToString(b)

	if err := fs.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := writeFileAtomic(fs, path, []byte(passphrase), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return passphrase, nil
}

// encrypt seals plaintext with AES-GCM, prefixing the nonce
func encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
