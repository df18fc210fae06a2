// Package wire protects state blobs that leave the server and come back,
// typically a resume token carrying a composition root's persistent cells
// through a client. Tokens are msgpack-packed and come in two forms:
// signed (readable, tamper-evident) and sealed (opaque).
//
// The hydration context itself is plain JSON (see the recomp package);
// wire covers only state a client must not be able to forge.
package wire

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Sentinel errors for token decoding.
var (
	ErrInvalidFormat    = errors.New("wire: invalid token format")
	ErrSignatureInvalid = errors.New("wire: signature verification failed")
	ErrDecryptFailed    = errors.New("wire: token decryption failed")
)

// Signed tokens are base64url(payload) "." base64url(mac), with the
// HMAC-SHA256 tag truncated to macLen bytes. Sealed tokens are
// base64url(nonce || AES-256-GCM ciphertext).
const macLen = 16

// Encoder packs and protects state tokens with a single key used for both
// signing and sealing.
type Encoder struct {
	key  []byte
	aead cipher.AEAD
}

// NewEncoder derives an encoder from key. AES-256 needs exactly 32 bytes,
// so any other key length is normalized through SHA-256 first.
func NewEncoder(key []byte) (*Encoder, error) {
	if len(key) != 32 {
		sum := sha256.Sum256(key)
		key = sum[:]
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Encoder{key: key, aead: aead}, nil
}

// Encode packs v with msgpack into a URL-safe token: signed by default,
// sealed when sensitive is set.
func (e *Encoder) Encode(v any, sensitive bool) (string, error) {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("wire: pack: %w", err)
	}
	if sensitive {
		return e.seal(payload)
	}
	return e.sign(payload), nil
}

// Decode reverses Encode into v. Tampered or malformed tokens fail with
// ErrSignatureInvalid, ErrDecryptFailed or ErrInvalidFormat.
func (e *Encoder) Decode(token string, sensitive bool, v any) error {
	var payload []byte
	var err error
	if sensitive {
		payload, err = e.open(token)
	} else {
		payload, err = e.verify(token)
	}
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return nil
}

func (e *Encoder) mac(payload []byte) []byte {
	h := hmac.New(sha256.New, e.key)
	h.Write(payload)
	return h.Sum(nil)[:macLen]
}

func (e *Encoder) sign(payload []byte) string {
	return base64.RawURLEncoding.EncodeToString(payload) +
		"." + base64.RawURLEncoding.EncodeToString(e.mac(payload))
}

func (e *Encoder) verify(token string) ([]byte, error) {
	body, tag, ok := strings.Cut(token, ".")
	if !ok {
		return nil, fmt.Errorf("%w: missing signature", ErrInvalidFormat)
	}
	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(tag)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if !hmac.Equal(sig, e.mac(payload)) {
		return nil, ErrSignatureInvalid
	}
	return payload, nil
}

func (e *Encoder) seal(payload []byte) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(e.aead.Seal(nonce, nonce, payload, nil)), nil
}

func (e *Encoder) open(token string) ([]byte, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	ns := e.aead.NonceSize()
	if len(sealed) < ns {
		return nil, fmt.Errorf("%w: sealed token too short", ErrInvalidFormat)
	}
	payload, err := e.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return payload, nil
}
