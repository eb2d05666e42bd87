package ledger

import (
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
)

var testProgramID = MustPubkey("53DfF883gyixYNXnM7s5xhdeyV8mVk9T4i2hGV9vG9io")

func TestPubkeyTextRoundTrip(t *testing.T) {
	text, err := testProgramID.MarshalText()
	require.NoError(t, err)

	var pk Pubkey
	require.NoError(t, pk.UnmarshalText(text))
	require.Equal(t, testProgramID, pk)
	require.Equal(t, string(text), pk.String())
}

func TestPubkeyFromStringRejectsBadInput(t *testing.T) {
	_, err := PubkeyFromString("0OIl")
	require.ErrorIs(t, err, ErrInvalidPubkey)

	_, err = PubkeyFromString(base58.Encode([]byte{1, 2, 3}))
	require.ErrorIs(t, err, ErrInvalidPubkey)
}

func TestIsOnCurve(t *testing.T) {
	priv := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))
	pub := priv.Public().(ed25519.PublicKey)
	if !IsOnCurve(pub) {
		t.Fatalf("ed25519 public key must lie on the curve")
	}
	if IsOnCurve(pub[:31]) {
		t.Fatalf("short input must not be reported on curve")
	}
}

func TestFindProgramAddress(t *testing.T) {
	seed := []byte{0xde, 0xad, 0xbe, 0xef}

	pk, bump, err := FindProgramAddress([][]byte{seed}, testProgramID)
	require.NoError(t, err)
	require.False(t, IsOnCurve(pk[:]), "program-derived key must be off curve")

	again, bumpAgain, err := FindProgramAddress([][]byte{seed}, testProgramID)
	require.NoError(t, err)
	require.Equal(t, pk, again)
	require.Equal(t, bump, bumpAgain)

	direct, err := CreateProgramAddress([][]byte{seed, {bump}}, testProgramID)
	require.NoError(t, err)
	require.Equal(t, pk, direct)

	other, _, err := FindProgramAddress([][]byte{{0x01}}, testProgramID)
	require.NoError(t, err)
	require.NotEqual(t, pk, other)
}

func TestCreateProgramAddressSeedLimits(t *testing.T) {
	_, err := CreateProgramAddress([][]byte{make([]byte, MaxSeedLength+1)}, testProgramID)
	require.ErrorIs(t, err, ErrMaxSeedLength)

	seeds := make([][]byte, MaxSeeds+1)
	_, err = CreateProgramAddress(seeds, testProgramID)
	require.ErrorIs(t, err, ErrMaxSeedLength)
}

func TestCreateWithSeed(t *testing.T) {
	base := MustPubkey("4sW3SZDJB7qXUyCYKA7pFL8eCTfm3REr8oSiKkww7MaT")

	a, err := CreateWithSeed(base, "seed", testProgramID)
	require.NoError(t, err)
	b, err := CreateWithSeed(base, "seed", testProgramID)
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := CreateWithSeed(base, "other", testProgramID)
	require.NoError(t, err)
	require.NotEqual(t, a, c)

	_, err = CreateWithSeed(base, strings.Repeat("x", MaxSeedLength+1), testProgramID)
	require.ErrorIs(t, err, ErrMaxSeedLength)

	var owner Pubkey
	copy(owner[PubkeyLength-len(pdaMarker):], pdaMarker)
	_, err = CreateWithSeed(base, "seed", owner)
	require.ErrorIs(t, err, ErrIllegalOwner)
}
