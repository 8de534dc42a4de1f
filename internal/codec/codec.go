package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// Codec cifra y descifra cuerpos de mensajes con una clave por conversacion.
type Codec interface {
	Encrypt(plaintext, conversationID string) (string, error)
	Decrypt(ciphertext, conversationID string) (string, error)
}

var (
	ErrMissingSecret       = errors.New("codec secret is required")
	ErrMissingConversation = errors.New("codec conversation id is required")
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	ErrDecryptFailed       = errors.New("decrypt failed")
)

const (
	envelopePrefix = "v1."
	keySize        = 32
	hkdfSalt       = "referral-chat/conversation-key"
)

// AESCodec implementa Codec con AES-256-GCM. La clave de cada conversacion
// se deriva con HKDF-SHA256 del secreto del servidor y el id de conversacion,
// de modo que cualquier proceso con el secreto puede descifrar sin intercambio
// de claves.
type AESCodec struct {
	secret []byte

	mu    sync.RWMutex
	aeads map[string]cipher.AEAD
}

func NewAESCodec(secret string) (*AESCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	return &AESCodec{
		secret: []byte(secret),
		aeads:  make(map[string]cipher.AEAD),
	}, nil
}

func (c *AESCodec) Encrypt(plaintext, conversationID string) (string, error) {
	aead, err := c.aeadFor(conversationID)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), []byte(conversationID))
	return envelopePrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt nunca entra en panico: cualquier entrada invalida devuelve
// ErrMalformedCiphertext o ErrDecryptFailed.
func (c *AESCodec) Decrypt(ciphertext, conversationID string) (string, error) {
	aead, err := c.aeadFor(conversationID)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(ciphertext, envelopePrefix) {
		return "", ErrMalformedCiphertext
	}
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext[len(envelopePrefix):])
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", ErrMalformedCiphertext
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, []byte(conversationID))
	if err != nil {
		return "", ErrDecryptFailed
	}
	return string(plain), nil
}

func (c *AESCodec) aeadFor(conversationID string) (cipher.AEAD, error) {
	if c == nil || len(c.secret) == 0 {
		return nil, ErrMissingSecret
	}
	if strings.TrimSpace(conversationID) == "" {
		return nil, ErrMissingConversation
	}

	c.mu.RLock()
	aead, ok := c.aeads[conversationID]
	c.mu.RUnlock()
	if ok {
		return aead, nil
	}

	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, c.secret, []byte(hkdfSalt), []byte("conversation:"+conversationID))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err = cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	c.mu.Lock()
	c.aeads[conversationID] = aead
	c.mu.Unlock()
	return aead, nil
}
