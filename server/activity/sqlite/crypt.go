package sqlite

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
)

const keyFileName = "store.key"

// FieldEncrypt encrypts single column values with AES-GCM
type FieldEncrypt struct {
	gcm cipher.AEAD
}

// GenerateKey generates a new encryption key and persists it in the data dir
func GenerateKey(dataDir string) (string, error) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}

	readableKey := base64.StdEncoding.EncodeToString(key)
	keyPath := filepath.Join(dataDir, keyFileName)
	err = os.WriteFile(keyPath, []byte(readableKey), 0600)
	if err != nil {
		return "", fmt.Errorf("persist key: %w", err)
	}

	return readableKey, nil
}

// RestoreKey reads a previously generated key from the data dir
func RestoreKey(dataDir string) (string, error) {
	keyPath := filepath.Join(dataDir, keyFileName)
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return "", fmt.Errorf("restore key: %w", err)
	}

	return string(key), nil
}

// NewFieldEncrypt creates a FieldEncrypt from a base64 encoded 32 byte key
func NewFieldEncrypt(key string) (*FieldEncrypt, error) {
	binKey, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(binKey)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &FieldEncrypt{gcm: gcm}, nil
}

// Encrypt seals the payload with a random nonce prepended to the box
func (ec *FieldEncrypt) Encrypt(payload string) string {
	nonce := make([]byte, ec.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return ""
	}

	cipherText := ec.gcm.Seal(nonce, nonce, []byte(payload), nil)
	return base64.StdEncoding.EncodeToString(cipherText)
}

// Decrypt opens data produced by Encrypt
func (ec *FieldEncrypt) Decrypt(data string) (string, error) {
	cipherText, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", err
	}

	nonceSize := ec.gcm.NonceSize()
	if len(cipherText) < nonceSize {
		return "", fmt.Errorf("invalid data size")
	}

	nonce, sealed := cipherText[:nonceSize], cipherText[nonceSize:]
	plainText, err := ec.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}

	return string(plainText), nil
}
