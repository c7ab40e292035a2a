package stealth

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"stealthpay/internal/keys"

	"filippo.io/edwards25519"
	"github.com/stellar/go/keypair"
	"github.com/stretchr/testify/require"
)

func mustDerive(t *testing.T, pin, sig string) *keys.MetaKeyPair {
	t.Helper()

	mk, err := keys.Derive(pin, sig)
	require.NoError(t, err)
	return mk
}

func TestSharedSecretSymmetry(t *testing.T) {
	d := NewDeriver()

	a, err := d.GenerateEphemeralKeyPair()
	require.NoError(t, err)
	b, err := d.GenerateEphemeralKeyPair()
	require.NoError(t, err)

	ab, err := SharedSecret(a.Private[:], b.Public[:])
	require.NoError(t, err)
	ba, err := SharedSecret(b.Private[:], a.Public[:])
	require.NoError(t, err)

	require.Equal(t, ab, ba)
}

func TestRoundTrip(t *testing.T) {
	d := NewDeriver()
	recipient := mustDerive(t, "1234", "sigA")

	for i := 0; i < 20; i++ {
		sa, err := d.DeriveStealthAddress(recipient.ScanPublic[:], recipient.SpendPublic[:])
		require.NoError(t, err)

		priv, err := RecoverStealthPrivateKey(recipient, sa.EphemeralPublic[:])
		require.NoError(t, err)

		pub, err := PublicKeyOf(priv[:])
		require.NoError(t, err)
		require.Equal(t, sa.OneTimePublic, pub)

		recomputed, err := OneTimePublicKey(recipient, sa.EphemeralPublic[:])
		require.NoError(t, err)
		require.Equal(t, sa.OneTimePublic, recomputed)

		addr, err := StellarAddress(pub[:])
		require.NoError(t, err)
		require.Equal(t, sa.Address, addr)
	}
}

// The one-time key must be s·G + SpendPublic computed with real group
// operations, not any hash of its inputs.
func TestOneTimeKeyIsPointSum(t *testing.T) {
	d := NewDeriver()
	recipient := mustDerive(t, "4321", "sig")

	sa, err := d.DeriveStealthAddress(recipient.ScanPublic[:], recipient.SpendPublic[:])
	require.NoError(t, err)

	shared, err := SharedSecret(recipient.ScanPrivate[:], sa.EphemeralPublic[:])
	require.NoError(t, err)
	s := HashToScalar(shared, AddressContext)

	spend, err := new(edwards25519.Point).SetBytes(recipient.SpendPublic[:])
	require.NoError(t, err)
	sG := new(edwards25519.Point).ScalarBaseMult(s)
	expected := new(edwards25519.Point).Add(sG, spend)

	require.Equal(t, expected.Bytes(), sa.OneTimePublic[:])

	// P - SpendPublic must equal s·G.
	diff := new(edwards25519.Point).Subtract(expected, spend)
	require.Equal(t, 1, diff.Equal(sG))
}

func TestDeriveStealthAddressUnlinkable(t *testing.T) {
	d := NewDeriver()
	recipient := mustDerive(t, "1234", "sigA")

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		sa, err := d.DeriveStealthAddress(recipient.ScanPublic[:], recipient.SpendPublic[:])
		require.NoError(t, err)
		require.False(t, seen[sa.Address], "address reused")
		seen[sa.Address] = true
		require.True(t, strings.HasPrefix(sa.Address, "G"))
	}
}

func TestDeriveStealthAddressInvalidKeys(t *testing.T) {
	d := NewDeriver()
	recipient := mustDerive(t, "1234", "sigA")

	tests := []struct {
		name  string
		scan  []byte
		spend []byte
	}{
		{"short scan", recipient.ScanPublic[:31], recipient.SpendPublic[:]},
		{"long spend", recipient.ScanPublic[:], append(recipient.SpendPublic[:], 0)},
		{"nil keys", nil, nil},
		{"low order scan", make([]byte, 32), recipient.SpendPublic[:]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.DeriveStealthAddress(tt.scan, tt.spend)
			require.ErrorIs(t, err, ErrInvalidKey)
			require.ErrorIs(t, err, keys.ErrInvalidInput)
		})
	}
}

func TestIsOwner(t *testing.T) {
	d := NewDeriver()
	alice := mustDerive(t, "1234", "sigA")
	bob := mustDerive(t, "9999", "sigB")

	sa, err := d.DeriveStealthAddress(alice.ScanPublic[:], alice.SpendPublic[:])
	require.NoError(t, err)

	ok, err := d.IsOwner(alice, sa.EphemeralPublic[:], sa.Address)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = d.IsOwner(bob, sa.EphemeralPublic[:], sa.Address)
	require.NoError(t, err)
	require.False(t, ok)

	// Right keys, wrong ephemeral key.
	other, err := d.DeriveStealthAddress(alice.ScanPublic[:], alice.SpendPublic[:])
	require.NoError(t, err)
	ok, err = d.IsOwner(alice, other.EphemeralPublic[:], sa.Address)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = d.IsOwner(alice, []byte{1, 2, 3}, sa.Address)
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestWithAddressFunc(t *testing.T) {
	hexAddr := func(pub []byte) (string, error) {
		return "0x" + hex.EncodeToString(pub), nil
	}
	d := NewDeriver(WithAddressFunc(hexAddr))
	recipient := mustDerive(t, "1234", "sigA")

	sa, err := d.DeriveStealthAddress(recipient.ScanPublic[:], recipient.SpendPublic[:])
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(sa.Address, "0x"))

	ok, err := d.IsOwner(recipient, sa.EphemeralPublic[:], sa.Address)
	require.NoError(t, err)
	require.True(t, ok)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

func TestDeriveStealthAddressRandFailure(t *testing.T) {
	d := NewDeriver(WithRand(failingReader{}))
	recipient := mustDerive(t, "1234", "sigA")

	_, err := d.DeriveStealthAddress(recipient.ScanPublic[:], recipient.SpendPublic[:])
	require.ErrorIs(t, err, ErrCrypto)
}

func TestDeterministicWithFixedRand(t *testing.T) {
	recipient := mustDerive(t, "1234", "sigA")
	seed := bytes.Repeat([]byte{7}, 32)

	a, err := NewDeriver(WithRand(bytes.NewReader(seed))).
		DeriveStealthAddress(recipient.ScanPublic[:], recipient.SpendPublic[:])
	require.NoError(t, err)
	b, err := NewDeriver(WithRand(bytes.NewReader(seed))).
		DeriveStealthAddress(recipient.ScanPublic[:], recipient.SpendPublic[:])
	require.NoError(t, err)

	require.Equal(t, a, b)
}

func TestSignVerifiesWithStandardEd25519(t *testing.T) {
	d := NewDeriver()
	recipient := mustDerive(t, "1234", "sigA")

	sa, err := d.DeriveStealthAddress(recipient.ScanPublic[:], recipient.SpendPublic[:])
	require.NoError(t, err)
	priv, err := RecoverStealthPrivateKey(recipient, sa.EphemeralPublic[:])
	require.NoError(t, err)

	msg := []byte("claim payment 42")
	sig, err := Sign(priv[:], msg)
	require.NoError(t, err)

	require.True(t, Verify(sa.OneTimePublic[:], msg, sig))
	require.False(t, Verify(sa.OneTimePublic[:], []byte("claim payment 43"), sig))

	// Stellar's own verifier accepts the signature for the stealth account.
	kp, err := keypair.ParseAddress(sa.Address)
	require.NoError(t, err)
	require.NoError(t, kp.Verify(msg, sig))

	// Signing is deterministic.
	again, err := Sign(priv[:], msg)
	require.NoError(t, err)
	require.Equal(t, sig, again)
}

func TestSignWipesFullDigests(t *testing.T) {
	recipient := mustDerive(t, "1234", "sigA")
	sa, err := NewDeriver().DeriveStealthAddress(recipient.ScanPublic[:], recipient.SpendPublic[:])
	require.NoError(t, err)
	priv, err := RecoverStealthPrivateKey(recipient, sa.EphemeralPublic[:])
	require.NoError(t, err)

	var wiped [][]byte
	wipeSecret = func(b []byte) {
		wipe(b)
		wiped = append(wiped, b)
	}
	t.Cleanup(func() { wipeSecret = wipe })

	_, err = Sign(priv[:], []byte("claim payment 42"))
	require.NoError(t, err)

	require.Len(t, wiped, 2)
	for _, b := range wiped {
		require.Len(t, b, 64)
		require.Equal(t, make([]byte, 64), b)
	}
}

func TestPublicKeyOfRejectsNonCanonical(t *testing.T) {
	max := bytes.Repeat([]byte{0xff}, 32)
	_, err := PublicKeyOf(max)
	require.ErrorIs(t, err, ErrInvalidKey)

	_, err = PublicKeyOf(make([]byte, 31))
	require.ErrorIs(t, err, ErrInvalidKey)
}

func TestStellarAddressRoundTrip(t *testing.T) {
	pub := make([]byte, 32)
	_, err := rand.Read(pub)
	require.NoError(t, err)

	addr, err := StellarAddress(pub)
	require.NoError(t, err)

	back, err := PublicKeyFromStellarAddress(addr)
	require.NoError(t, err)
	require.Equal(t, pub, back)

	_, err = PublicKeyFromStellarAddress("not-an-address")
	require.ErrorIs(t, err, ErrInvalidKey)
}
