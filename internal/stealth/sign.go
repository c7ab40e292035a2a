package stealth

import (
	"crypto/ed25519"
	"crypto/sha512"
	"fmt"

	"stealthpay/internal/keys"

	"filippo.io/edwards25519"
)

const noncePrefixDomain = "stealthpay/sign-nonce/v1"

// wipeSecret clears key-derived buffers. Tests swap it to observe them.
var wipeSecret = wipe

// Sign produces an Ed25519 signature over msg using a raw scalar private
// key, as returned by RecoverStealthPrivateKey. The signature verifies
// with crypto/ed25519 against PublicKeyOf(priv).
//
// Stealth keys are sums of scalars and have no RFC 8032 seed, so the
// deterministic nonce prefix is derived from the scalar itself.
func Sign(priv []byte, msg []byte) ([]byte, error) {
	if len(priv) != keys.KeySize {
		return nil, fmt.Errorf("%w: private key is %d bytes", ErrInvalidKey, len(priv))
	}
	a, err := edwards25519.NewScalar().SetCanonicalBytes(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: private key is not a canonical scalar", ErrInvalidKey)
	}
	A := new(edwards25519.Point).ScalarBaseMult(a).Bytes()

	prefixHash := sha512.New()
	prefixHash.Write([]byte(noncePrefixDomain))
	prefixHash.Write(priv)
	prefixDigest := prefixHash.Sum(nil)
	defer wipeSecret(prefixDigest)

	nonceHash := sha512.New()
	nonceHash.Write(prefixDigest[:32])
	nonceHash.Write(msg)
	nonceDigest := nonceHash.Sum(nil)
	defer wipeSecret(nonceDigest)

	r, err := edwards25519.NewScalar().SetUniformBytes(nonceDigest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	R := new(edwards25519.Point).ScalarBaseMult(r).Bytes()

	challengeHash := sha512.New()
	challengeHash.Write(R)
	challengeHash.Write(A)
	challengeHash.Write(msg)
	k, err := edwards25519.NewScalar().SetUniformBytes(challengeHash.Sum(nil))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	S := edwards25519.NewScalar().MultiplyAdd(k, a, r)

	sig := make([]byte, 0, ed25519.SignatureSize)
	sig = append(sig, R...)
	sig = append(sig, S.Bytes()...)
	return sig, nil
}

// Verify checks an Ed25519 signature against a 32-byte public key.
func Verify(pub, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}
