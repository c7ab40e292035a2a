package keys

import (
	"crypto/ed25519"
	"testing"

	"filippo.io/edwards25519"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"
)

func TestDeriveDeterministic(t *testing.T) {
	a, err := Derive("1234", "sigA")
	require.NoError(t, err)

	b, err := Derive("1234", "sigA")
	require.NoError(t, err)

	require.True(t, a.Equal(b))
	require.Equal(t, *a, *b)
}

func TestDeriveDiffersPerInput(t *testing.T) {
	base, err := Derive("1234", "sigA")
	require.NoError(t, err)

	otherPin, err := Derive("1235", "sigA")
	require.NoError(t, err)
	require.False(t, base.Equal(otherPin))
	require.NotEqual(t, base.ScanPublic, otherPin.ScanPublic)
	require.NotEqual(t, base.SpendPublic, otherPin.SpendPublic)

	otherSig, err := Derive("1234", "sigB")
	require.NoError(t, err)
	require.False(t, base.Equal(otherSig))
}

// The spend pair must not be derivable from the scan pair.
func TestDeriveDomainSeparation(t *testing.T) {
	mk, err := Derive("1234", "sigA")
	require.NoError(t, err)

	require.NotEqual(t, mk.ScanPrivate, mk.SpendPrivate)
	require.NotEqual(t, mk.ScanPublic, mk.SpendPublic)
}

func TestDeriveKeyConsistency(t *testing.T) {
	mk, err := Derive("0000", "wallet-signature")
	require.NoError(t, err)

	scanPub, err := curve25519.X25519(mk.ScanPrivate[:], curve25519.Basepoint)
	require.NoError(t, err)
	require.Equal(t, mk.ScanPublic[:], scanPub)

	spend, err := edwards25519.NewScalar().SetCanonicalBytes(mk.SpendPrivate[:])
	require.NoError(t, err, "spend private key must be a canonical scalar")
	require.Equal(t, mk.SpendPublic[:], new(edwards25519.Point).ScalarBaseMult(spend).Bytes())

	_, err = new(edwards25519.Point).SetBytes(mk.SpendPublic[:])
	require.NoError(t, err)
	require.Len(t, mk.SpendPublic[:], ed25519.PublicKeySize)
}

func TestDeriveRejectsEmptyInput(t *testing.T) {
	tests := []struct {
		name      string
		pin       string
		signature string
	}{
		{"empty pin", "", "sig"},
		{"empty signature", "1234", ""},
		{"both empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mk, err := Derive(tt.pin, tt.signature)
			require.ErrorIs(t, err, ErrInvalidInput)
			require.Nil(t, mk)
		})
	}
}

func TestPublicAndZero(t *testing.T) {
	mk, err := Derive("1234", "sigA")
	require.NoError(t, err)

	pub := mk.Public()
	require.Equal(t, mk.ScanPublic, pub.ScanPublic)
	require.Equal(t, mk.SpendPublic, pub.SpendPublic)

	mk.Zero()
	require.Equal(t, [KeySize]byte{}, mk.ScanPrivate)
	require.Equal(t, [KeySize]byte{}, mk.SpendPrivate)
	require.Equal(t, pub.ScanPublic, mk.ScanPublic)
}
