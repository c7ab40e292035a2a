// Package keys derives a user's long-lived stealth meta keys from a PIN and
// a wallet signature.
//
// The scan pair lives on X25519 and is only ever used for Diffie-Hellman.
// The spend pair lives on the Ed25519 group so that one-time keys can be
// formed by scalar and point addition.
package keys

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the length in bytes of every public and private key.
	KeySize = 32

	// Iterations is the PBKDF2 work factor applied to pin||signature.
	Iterations = 100_000

	spendDomain = "spend"
)

// salt is fixed so that the same pin and signature always regenerate the
// same keys on any device.
var salt = []byte("stealthpay/meta-keys/v1")

// ErrInvalidInput is returned for malformed caller input such as an empty
// PIN, an empty signature or a key of the wrong length. It is never retried.
var ErrInvalidInput = errors.New("invalid input")

// MetaKeyPair holds a user's scan and spend key pairs.
type MetaKeyPair struct {
	ScanPublic   [KeySize]byte
	ScanPrivate  [KeySize]byte
	SpendPublic  [KeySize]byte
	SpendPrivate [KeySize]byte
}

// PublicMetaKeys is the half of a MetaKeyPair that is published in the
// on-chain registry.
type PublicMetaKeys struct {
	ScanPublic  [KeySize]byte
	SpendPublic [KeySize]byte
}

// Derive deterministically turns (pin, signature) into a MetaKeyPair.
func Derive(pin, signature string) (*MetaKeyPair, error) {
	if pin == "" {
		return nil, fmt.Errorf("%w: pin is empty", ErrInvalidInput)
	}
	if signature == "" {
		return nil, fmt.Errorf("%w: signature is empty", ErrInvalidInput)
	}

	scanSeed := seed(pin + signature)
	spendSeed := seed(pin + signature + spendDomain)
	defer wipe(scanSeed)
	defer wipe(spendSeed)

	var mk MetaKeyPair

	// Scan pair: X25519 clamps the private key itself.
	copy(mk.ScanPrivate[:], scanSeed)
	scanPub, err := curve25519.X25519(mk.ScanPrivate[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive scan public key: %w", err)
	}
	copy(mk.ScanPublic[:], scanPub)

	// Spend pair: a uniformly reduced scalar on the Ed25519 group.
	wide := sha512.Sum512(spendSeed)
	spend, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	wipe(wide[:])
	if err != nil {
		return nil, fmt.Errorf("failed to derive spend scalar: %w", err)
	}
	copy(mk.SpendPrivate[:], spend.Bytes())
	copy(mk.SpendPublic[:], new(edwards25519.Point).ScalarBaseMult(spend).Bytes())

	return &mk, nil
}

// Public returns the publishable half of the key pair.
func (mk *MetaKeyPair) Public() PublicMetaKeys {
	return PublicMetaKeys{
		ScanPublic:  mk.ScanPublic,
		SpendPublic: mk.SpendPublic,
	}
}

// Equal reports whether two key pairs are byte-identical, in constant time.
func (mk *MetaKeyPair) Equal(other *MetaKeyPair) bool {
	if mk == nil || other == nil {
		return mk == other
	}
	eq := subtle.ConstantTimeCompare(mk.ScanPublic[:], other.ScanPublic[:]) &
		subtle.ConstantTimeCompare(mk.ScanPrivate[:], other.ScanPrivate[:]) &
		subtle.ConstantTimeCompare(mk.SpendPublic[:], other.SpendPublic[:]) &
		subtle.ConstantTimeCompare(mk.SpendPrivate[:], other.SpendPrivate[:])
	return eq == 1
}

// Zero wipes the private halves.
func (mk *MetaKeyPair) Zero() {
	wipe(mk.ScanPrivate[:])
	wipe(mk.SpendPrivate[:])
}

func seed(material string) []byte {
	return pbkdf2.Key([]byte(material), salt, Iterations, KeySize, sha256.New)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
