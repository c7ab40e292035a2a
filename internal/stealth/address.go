package stealth

import (
	"fmt"

	"stealthpay/internal/keys"

	"github.com/stellar/go/strkey"
)

// AddressFunc is the ledger's address-from-public-key rule.
type AddressFunc func(onetimePublic []byte) (string, error)

// StellarAddress encodes an Ed25519 public key as a Stellar account ID
// (G...). The one-time key is a plain Ed25519 point, so the address is a
// regular account that the recovered private key controls.
func StellarAddress(onetimePublic []byte) (string, error) {
	if len(onetimePublic) != keys.KeySize {
		return "", fmt.Errorf("%w: public key is %d bytes", ErrInvalidKey, len(onetimePublic))
	}
	return strkey.Encode(strkey.VersionByteAccountID, onetimePublic)
}

// PublicKeyFromStellarAddress is the inverse of StellarAddress.
func PublicKeyFromStellarAddress(address string) ([]byte, error) {
	raw, err := strkey.Decode(strkey.VersionByteAccountID, address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return raw, nil
}
