// Package stealth implements the stealth address protocol.
//
// A sender combines a fresh X25519 ephemeral key with the recipient's scan
// key to obtain a shared secret, hashes it to a scalar s and publishes funds
// to the address of the one-time key P = s·G + SpendPublic. The recipient
// recomputes s from the published ephemeral key and spends with the
// private key s + SpendPrivate.
package stealth

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"stealthpay/internal/keys"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/curve25519"
)

// AddressContext is the domain separation string for HashToScalar.
const AddressContext = "stealth-address-v1"

var (
	// ErrInvalidKey is returned for keys of the wrong length or keys that
	// do not decode to a valid curve point. It matches keys.ErrInvalidInput.
	ErrInvalidKey = fmt.Errorf("%w: invalid key", keys.ErrInvalidInput)

	// ErrCrypto is returned for internal derivation failures.
	ErrCrypto = errors.New("crypto failure")
)

// EphemeralKeyPair is generated by the sender for a single payment.
type EphemeralKeyPair struct {
	Public  [keys.KeySize]byte
	Private [keys.KeySize]byte
}

// StealthAddress is the sender-side result of a derivation.
type StealthAddress struct {
	Address         string
	EphemeralPublic [keys.KeySize]byte
	OneTimePublic   [keys.KeySize]byte
}

// Option configures a Deriver.
type Option func(*Deriver)

// WithAddressFunc overrides the ledger address rule.
func WithAddressFunc(fn AddressFunc) Option {
	return func(d *Deriver) {
		d.addressOf = fn
	}
}

// WithRand overrides the randomness source for ephemeral keys.
func WithRand(r io.Reader) Option {
	return func(d *Deriver) {
		d.rand = r
	}
}

// Deriver runs the sender and ownership sides of the protocol against a
// particular address rule. It holds no mutable state and is safe for
// concurrent use.
type Deriver struct {
	addressOf AddressFunc
	rand      io.Reader
}

// NewDeriver creates a Deriver that defaults to Stellar account addresses.
func NewDeriver(opts ...Option) *Deriver {
	d := &Deriver{
		addressOf: StellarAddress,
		rand:      rand.Reader,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// GenerateEphemeralKeyPair draws a fresh X25519 key pair.
func (d *Deriver) GenerateEphemeralKeyPair() (*EphemeralKeyPair, error) {
	var kp EphemeralKeyPair
	if _, err := io.ReadFull(d.rand, kp.Private[:]); err != nil {
		return nil, fmt.Errorf("%w: failed to read randomness: %v", ErrCrypto, err)
	}
	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to derive ephemeral public key: %v", ErrCrypto, err)
	}
	copy(kp.Public[:], pub)
	return &kp, nil
}

// DeriveStealthAddress derives a one-time address for the recipient. It
// performs no I/O.
func (d *Deriver) DeriveStealthAddress(scanPublic, spendPublic []byte) (*StealthAddress, error) {
	if len(scanPublic) != keys.KeySize {
		return nil, fmt.Errorf("%w: scan public key is %d bytes", ErrInvalidKey, len(scanPublic))
	}
	spend, err := decodePoint(spendPublic)
	if err != nil {
		return nil, err
	}

	eph, err := d.GenerateEphemeralKeyPair()
	if err != nil {
		return nil, err
	}
	defer wipe(eph.Private[:])

	shared, err := SharedSecret(eph.Private[:], scanPublic)
	if err != nil {
		return nil, err
	}
	s := HashToScalar(shared, AddressContext)
	wipe(shared)

	onetime := oneTimePoint(s, spend)
	addr, err := d.addressOf(onetime.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode address: %v", ErrCrypto, err)
	}

	sa := &StealthAddress{
		Address:         addr,
		EphemeralPublic: eph.Public,
	}
	copy(sa.OneTimePublic[:], onetime.Bytes())
	return sa, nil
}

// OneTimePublicKey recomputes P = s·G + SpendPublic from the receiver's
// side of the exchange.
func OneTimePublicKey(mk *keys.MetaKeyPair, ephemeralPublic []byte) ([keys.KeySize]byte, error) {
	var out [keys.KeySize]byte

	spend, err := decodePoint(mk.SpendPublic[:])
	if err != nil {
		return out, err
	}
	s, err := receiverScalar(mk, ephemeralPublic)
	if err != nil {
		return out, err
	}
	copy(out[:], oneTimePoint(s, spend).Bytes())
	return out, nil
}

// IsOwner reports whether the payment observed at address with the given
// ephemeral key belongs to the holder of mk.
func (d *Deriver) IsOwner(mk *keys.MetaKeyPair, ephemeralPublic []byte, address string) (bool, error) {
	onetime, err := OneTimePublicKey(mk, ephemeralPublic)
	if err != nil {
		return false, err
	}
	candidate, err := d.addressOf(onetime[:])
	if err != nil {
		return false, fmt.Errorf("%w: failed to encode address: %v", ErrCrypto, err)
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(address)) == 1, nil
}

// Address applies the Deriver's address rule to a one-time public key.
func (d *Deriver) Address(onetimePublic []byte) (string, error) {
	return d.addressOf(onetimePublic)
}

// RecoverStealthPrivateKey returns s + SpendPrivate mod ℓ.
func RecoverStealthPrivateKey(mk *keys.MetaKeyPair, ephemeralPublic []byte) ([keys.KeySize]byte, error) {
	var out [keys.KeySize]byte

	spendPriv, err := edwards25519.NewScalar().SetCanonicalBytes(mk.SpendPrivate[:])
	if err != nil {
		return out, fmt.Errorf("%w: spend private key is not a canonical scalar", ErrInvalidKey)
	}
	s, err := receiverScalar(mk, ephemeralPublic)
	if err != nil {
		return out, err
	}

	copy(out[:], edwards25519.NewScalar().Add(s, spendPriv).Bytes())
	return out, nil
}

// PublicKeyOf returns priv·G for a canonical scalar.
func PublicKeyOf(priv []byte) ([keys.KeySize]byte, error) {
	var out [keys.KeySize]byte

	if len(priv) != keys.KeySize {
		return out, fmt.Errorf("%w: private key is %d bytes", ErrInvalidKey, len(priv))
	}
	x, err := edwards25519.NewScalar().SetCanonicalBytes(priv)
	if err != nil {
		return out, fmt.Errorf("%w: private key is not a canonical scalar", ErrInvalidKey)
	}
	copy(out[:], new(edwards25519.Point).ScalarBaseMult(x).Bytes())
	return out, nil
}

// SharedSecret computes X25519(priv, pub). The result is symmetric:
// SharedSecret(a, B) == SharedSecret(b, A).
func SharedSecret(priv, pub []byte) ([]byte, error) {
	if len(priv) != keys.KeySize {
		return nil, fmt.Errorf("%w: private key is %d bytes", ErrInvalidKey, len(priv))
	}
	if len(pub) != keys.KeySize {
		return nil, fmt.Errorf("%w: public key is %d bytes", ErrInvalidKey, len(pub))
	}
	shared, err := curve25519.X25519(priv, pub)
	if err != nil {
		// Low-order points produce an all-zero secret.
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return shared, nil
}

// HashToScalar maps a shared secret to a scalar mod ℓ using a wide
// SHA-512 reduction.
func HashToScalar(shared []byte, context string) *edwards25519.Scalar {
	h := sha512.New()
	h.Write([]byte(context))
	h.Write(shared)
	digest := h.Sum(nil)

	// SetUniformBytes only fails on a length other than 64.
	s, _ := edwards25519.NewScalar().SetUniformBytes(digest)
	wipe(digest)
	return s
}

func receiverScalar(mk *keys.MetaKeyPair, ephemeralPublic []byte) (*edwards25519.Scalar, error) {
	shared, err := SharedSecret(mk.ScanPrivate[:], ephemeralPublic)
	if err != nil {
		return nil, err
	}
	defer wipe(shared)
	return HashToScalar(shared, AddressContext), nil
}

func oneTimePoint(s *edwards25519.Scalar, spend *edwards25519.Point) *edwards25519.Point {
	sG := new(edwards25519.Point).ScalarBaseMult(s)
	return new(edwards25519.Point).Add(sG, spend)
}

func decodePoint(b []byte) (*edwards25519.Point, error) {
	if len(b) != keys.KeySize {
		return nil, fmt.Errorf("%w: spend public key is %d bytes", ErrInvalidKey, len(b))
	}
	p, err := new(edwards25519.Point).SetBytes(b)
	if err != nil {
		return nil, fmt.Errorf("%w: spend public key is not a curve point", ErrInvalidKey)
	}
	return p, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
