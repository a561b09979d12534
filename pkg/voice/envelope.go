package voice

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// ErrEnvelopeTooShort is returned by Open when data is shorter than one
// AES block (the IV).
var ErrEnvelopeTooShort = errors.New("voice: edge envelope shorter than one cipher block")

// Envelope seals Edge<->Edge voice datagrams in transit with
// AES-128-CBC, keyed by a cluster-wide pre-shared key (§4.10, §6;
// DESIGN.md Open Question: plaintext transit is an explicit opt-in,
// AES-CBC is the default).
type Envelope struct {
	block cipher.Block
}

// NewEnvelope builds an Envelope from a 16-byte AES-128 key.
func NewEnvelope(key []byte) (*Envelope, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("voice: building edge envelope cipher: %w", err)
	}
	return &Envelope{block: block}, nil
}

// Seal encrypts plain, prefixing a random IV to the ciphertext. plain
// is padded with PKCS#7 to the cipher's block size.
func (e *Envelope) Seal(plain []byte) ([]byte, error) {
	padded := pkcs7Pad(plain, e.block.BlockSize())

	out := make([]byte, e.block.BlockSize()+len(padded))
	iv := out[:e.block.BlockSize()]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("voice: generating edge envelope iv: %w", err)
	}

	cipher.NewCBCEncrypter(e.block, iv).CryptBlocks(out[e.block.BlockSize():], padded)
	return out, nil
}

// Open reverses Seal.
func (e *Envelope) Open(sealed []byte) ([]byte, error) {
	bs := e.block.BlockSize()
	if len(sealed) < bs || (len(sealed)-bs)%bs != 0 {
		return nil, ErrEnvelopeTooShort
	}
	iv := sealed[:bs]
	ciphertext := sealed[bs:]

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(e.block, iv).CryptBlocks(plain, ciphertext)
	return pkcs7Unpad(plain)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("voice: edge envelope plaintext is empty")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, errors.New("voice: edge envelope has invalid padding")
	}
	return data[:len(data)-padLen], nil
}
