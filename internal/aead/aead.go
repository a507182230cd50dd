// Package aead implements the Crypto Provider (C1): a narrow interface
// over authenticated encryption, dispatched by the two-cipher-suite
// descriptor bytes (ecs, acs) carried on every Security Association.
// Two concrete suites are wired, matching the two AEAD stacks present
// across the example pack: stdlib crypto/aes + crypto/cipher (GCM) and
// golang.org/x/crypto/chacha20poly1305.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Sentinel failure modes. The facade maps these to sdls.Code values
// (CodeCryptoBackendError, CodeBadMAC) without this package needing to
// know about the root error taxonomy.
var (
	ErrUnknownSuite  = errors.New("aead: unknown cipher suite")
	ErrCryptoBackend = errors.New("aead: crypto backend error")
	ErrBadMAC        = errors.New("aead: authentication failed")
)

// Suite identifies a concrete AEAD cipher, carried as the first byte
// of an SA's ecs (encryption) or acs (authentication) descriptor. The
// remaining descriptor bytes are reserved and currently unused, as in
// the original SA schema.
type Suite uint8

const (
	// SuiteNone marks a null cipher: no encryption or authentication
	// is requested for that half of the descriptor.
	SuiteNone             Suite = 0x00
	SuiteAESGCM256        Suite = 0x01
	SuiteChacha20Poly1305 Suite = 0x02
)

func (s Suite) String() string {
	switch s {
	case SuiteNone:
		return "None"
	case SuiteAESGCM256:
		return "AES-256-GCM"
	case SuiteChacha20Poly1305:
		return "ChaCha20-Poly1305"
	default:
		return fmt.Sprintf("Suite(0x%02x)", uint8(s))
	}
}

// Provider is the Crypto Provider interface (spec section 4.5).
// Implementations MUST reject an unrecognized suite descriptor with
// sdls.CodeCryptoBackendError rather than silently falling back to a
// default cipher.
type Provider interface {
	AEADEncrypt(suite Suite, key, iv, aad, plaintext []byte) (ciphertext, tag []byte, err error)
	AEADDecrypt(suite Suite, key, iv, aad, ciphertext, tag []byte) (plaintext []byte, err error)
	AEADAuthenticate(suite Suite, key, iv, aad []byte) (tag []byte, err error)
	AEADVerify(suite Suite, key, iv, aad, tag []byte) error
	// SupportsCipherSuite reports whether a cipher is registered for
	// the suite (SuiteNone is always supported). It does not run a
	// known-answer test.
	SupportsCipherSuite(suite Suite) bool
}

// dispatcher routes every call to one of the registered ciphers by
// Suite byte. It is the single Provider wired into the facade.
type dispatcher struct {
	ciphers map[Suite]cipherImpl
}

type cipherImpl interface {
	seal(key, iv, aad, plaintext []byte) (ciphertext, tag []byte, err error)
	open(key, iv, aad, ciphertext, tag []byte) (plaintext []byte, err error)
	tagSize() int
}

// NewDispatcher returns the standard Provider: AES-256-GCM backed by
// crypto/aes+crypto/cipher, and ChaCha20-Poly1305 backed by
// golang.org/x/crypto/chacha20poly1305.
func NewDispatcher() Provider {
	return &dispatcher{
		ciphers: map[Suite]cipherImpl{
			SuiteAESGCM256:        aesGCM{},
			SuiteChacha20Poly1305: chacha{},
		},
	}
}

func (d *dispatcher) lookup(suite Suite) (cipherImpl, error) {
	impl, ok := d.ciphers[suite]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSuite, suite)
	}
	return impl, nil
}

func (d *dispatcher) AEADEncrypt(suite Suite, key, iv, aad, plaintext []byte) ([]byte, []byte, error) {
	impl, err := d.lookup(suite)
	if err != nil {
		return nil, nil, err
	}
	return impl.seal(key, iv, aad, plaintext)
}

func (d *dispatcher) AEADDecrypt(suite Suite, key, iv, aad, ciphertext, tag []byte) ([]byte, error) {
	impl, err := d.lookup(suite)
	if err != nil {
		return nil, err
	}
	return impl.open(key, iv, aad, ciphertext, tag)
}

// AEADAuthenticate computes a MAC-only tag over aad (the ast-without-
// est case from spec section 4.2 step 6): seal an empty plaintext and
// keep only the tag.
func (d *dispatcher) AEADAuthenticate(suite Suite, key, iv, aad []byte) ([]byte, error) {
	impl, err := d.lookup(suite)
	if err != nil {
		return nil, err
	}
	_, tag, err := impl.seal(key, iv, aad, nil)
	return tag, err
}

func (d *dispatcher) AEADVerify(suite Suite, key, iv, aad, tag []byte) error {
	impl, err := d.lookup(suite)
	if err != nil {
		return err
	}
	_, err = impl.open(key, iv, aad, nil, tag)
	return err
}

func (d *dispatcher) SupportsCipherSuite(suite Suite) bool {
	if suite == SuiteNone {
		return true
	}
	_, ok := d.ciphers[suite]
	return ok
}

// aesGCM wraps stdlib AES-256 in GCM mode.
type aesGCM struct{}

func (aesGCM) newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (c aesGCM) seal(key, iv, aad, plaintext []byte) ([]byte, []byte, error) {
	gcm, err := c.newAEAD(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCryptoBackend, err)
	}
	sealed := gcm.Seal(nil, iv, plaintext, aad)
	ct := sealed[:len(sealed)-gcm.Overhead()]
	tag := sealed[len(sealed)-gcm.Overhead():]
	return ct, tag, nil
}

func (c aesGCM) open(key, iv, aad, ciphertext, tag []byte) ([]byte, error) {
	if len(tag) != c.tagSize() {
		return nil, ErrBadMAC
	}
	gcm, err := c.newAEAD(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoBackend, err)
	}
	sealed := append(append([]byte(nil), ciphertext...), tag...)
	pt, err := gcm.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, ErrBadMAC
	}
	return pt, nil
}

func (aesGCM) tagSize() int { return 16 }

// chacha wraps golang.org/x/crypto/chacha20poly1305.
type chacha struct{}

func (chacha) newAEAD(key []byte) (cipher.AEAD, error) {
	return chacha20poly1305.New(key)
}

func (c chacha) seal(key, iv, aad, plaintext []byte) ([]byte, []byte, error) {
	aeadCipher, err := c.newAEAD(key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrCryptoBackend, err)
	}
	sealed := aeadCipher.Seal(nil, iv, plaintext, aad)
	overhead := aeadCipher.Overhead()
	ct := sealed[:len(sealed)-overhead]
	tag := sealed[len(sealed)-overhead:]
	return ct, tag, nil
}

func (c chacha) open(key, iv, aad, ciphertext, tag []byte) ([]byte, error) {
	if len(tag) != c.tagSize() {
		return nil, ErrBadMAC
	}
	aeadCipher, err := c.newAEAD(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoBackend, err)
	}
	sealed := append(append([]byte(nil), ciphertext...), tag...)
	pt, err := aeadCipher.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, ErrBadMAC
	}
	return pt, nil
}

func (chacha) tagSize() int { return chacha20poly1305.Overhead }
