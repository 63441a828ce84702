package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

const (
	eciesInfo = "richest-revealer-ecies-v1"

	// P-256 uncompressed pubkey is 65 bytes, nonce is 12 bytes.
	ephemeralKeyLen = 65
	nonceLen        = 12
	gcmTagLen       = 16

	// ValueLength is the byte width of an encoded plaintext value.
	ValueLength = 8
)

// EncryptedMessage contains ECIES-encrypted data.
// Format: ephemeral pubkey (65 bytes) || nonce (12 bytes) || ciphertext+tag
type EncryptedMessage struct {
	EphemeralPubKey []byte // P-256 uncompressed public key
	Nonce           []byte // AES-GCM nonce
	Ciphertext      []byte // Encrypted data with auth tag
}

// Encrypt encrypts plaintext to a recipient's ECDH public key, bound to ectx.
// Uses ephemeral ECDH key agreement, HKDF-SHA3-256 salted with the context,
// and AES-256-GCM authenticating the ephemeral key and the context.
func Encrypt(recipientPubKey *ecdh.PublicKey, plaintext []byte, ectx EncryptionContext) (*EncryptedMessage, error) {
	ephemeralPriv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}

	sharedSecret, err := ephemeralPriv.ECDH(recipientPubKey)
	if err != nil {
		return nil, fmt.Errorf("ECDH: %w", err)
	}

	gcm, err := newGCM(sharedSecret, ectx)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ephemeralPub := ephemeralPriv.PublicKey().Bytes()
	ciphertext := gcm.Seal(nil, nonce, plaintext, additionalData(ephemeralPub, ectx))

	return &EncryptedMessage{
		EphemeralPubKey: ephemeralPub,
		Nonce:           nonce,
		Ciphertext:      ciphertext,
	}, nil
}

// Decrypt decrypts an ECIES-encrypted message using the recipient's private key.
// Fails if the message was encrypted under a different context.
func Decrypt(recipientPrivKey *ecdh.PrivateKey, msg *EncryptedMessage, ectx EncryptionContext) ([]byte, error) {
	ephemeralPub, err := ecdh.P256().NewPublicKey(msg.EphemeralPubKey)
	if err != nil {
		return nil, fmt.Errorf("parse ephemeral key: %w", err)
	}

	sharedSecret, err := recipientPrivKey.ECDH(ephemeralPub)
	if err != nil {
		return nil, fmt.Errorf("ECDH: %w", err)
	}

	gcm, err := newGCM(sharedSecret, ectx)
	if err != nil {
		return nil, err
	}

	if len(msg.Nonce) != gcm.NonceSize() {
		return nil, errors.New("invalid nonce size")
	}

	plaintext, err := gcm.Open(nil, msg.Nonce, msg.Ciphertext, additionalData(msg.EphemeralPubKey, ectx))
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	return plaintext, nil
}

// Bytes serializes an encrypted message.
func (m *EncryptedMessage) Bytes() []byte {
	result := make([]byte, 0, len(m.EphemeralPubKey)+len(m.Nonce)+len(m.Ciphertext))
	result = append(result, m.EphemeralPubKey...)
	result = append(result, m.Nonce...)
	result = append(result, m.Ciphertext...)
	return result
}

// ParseEncryptedMessage deserializes an encrypted message.
func ParseEncryptedMessage(data []byte) (*EncryptedMessage, error) {
	if len(data) < ephemeralKeyLen+nonceLen+gcmTagLen {
		return nil, errors.New("encrypted message too short")
	}

	return &EncryptedMessage{
		EphemeralPubKey: data[:ephemeralKeyLen],
		Nonce:           data[ephemeralKeyLen : ephemeralKeyLen+nonceLen],
		Ciphertext:      data[ephemeralKeyLen+nonceLen:],
	}, nil
}

// EncryptValue encrypts a numeric value for the given recipient and context.
func EncryptValue(recipientPubKey *ecdh.PublicKey, value uint64, ectx EncryptionContext) (*EncryptedMessage, error) {
	return Encrypt(recipientPubKey, EncodeValue(value), ectx)
}

// EncodeValue encodes a value as 8 big-endian bytes.
func EncodeValue(value uint64) []byte {
	var buf [ValueLength]byte
	binary.BigEndian.PutUint64(buf[:], value)
	return buf[:]
}

// DecodeValue decodes a value produced by EncodeValue.
func DecodeValue(data []byte) (uint64, error) {
	if len(data) != ValueLength {
		return 0, fmt.Errorf("invalid value length %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

func newGCM(sharedSecret []byte, ectx EncryptionContext) (cipher.AEAD, error) {
	aesKey, err := deriveAESKey(sharedSecret, ectx)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

func deriveAESKey(sharedSecret []byte, ectx EncryptionContext) ([]byte, error) {
	key := make([]byte, 32)
	kdf := hkdf.New(sha3.New256, sharedSecret, ectx.Bytes(), []byte(eciesInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func additionalData(ephemeralPub []byte, ectx EncryptionContext) []byte {
	ad := make([]byte, 0, len(ephemeralPub)+2*AddressLength)
	ad = append(ad, ephemeralPub...)
	return append(ad, ectx.Bytes()...)
}
