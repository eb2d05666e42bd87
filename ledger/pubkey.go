package ledger

import (
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/minio/sha256-simd"
	"github.com/mr-tron/base58"
)

// PubkeyLength is the size in bytes of a ledger account key.
const PubkeyLength = 32

const (
	// MaxSeedLength is the maximum length of a single derivation seed.
	MaxSeedLength = 32
	// MaxSeeds is the maximum number of seeds for a program-derived key.
	MaxSeeds = 16
)

// pdaMarker is appended to the hash input of program-derived keys and is
// forbidden as the suffix of an owner in seed-derived keys.
var pdaMarker = []byte("ProgramDerivedAddress")

var (
	ErrMaxSeedLength = errors.New("seed length exceeds maximum")
	ErrInvalidSeeds  = errors.New("derived key lies on the ed25519 curve")
	ErrNoViableBump  = errors.New("unable to find a viable program address bump seed")
	ErrIllegalOwner  = errors.New("provided owner is not allowed")
	ErrInvalidPubkey = errors.New("invalid pubkey")
)

// Pubkey is the native key of a ledger account record.
type Pubkey [PubkeyLength]byte

// PubkeyFromString decodes the base58 text form of a key.
func PubkeyFromString(s string) (Pubkey, error) {
	var pk Pubkey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("%w: %v", ErrInvalidPubkey, err)
	}
	if len(raw) != PubkeyLength {
		return pk, fmt.Errorf("%w: decoded length %d", ErrInvalidPubkey, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustPubkey is like PubkeyFromString but panics on malformed input.
// Intended for constants and tests.
func MustPubkey(s string) Pubkey {
	pk, err := PubkeyFromString(s)
	if err != nil {
		panic(err)
	}
	return pk
}

func (p Pubkey) String() string { return base58.Encode(p[:]) }

func (p Pubkey) Bytes() []byte { return p[:] }

func (p Pubkey) IsZero() bool { return p == Pubkey{} }

// MarshalText implements encoding.TextMarshaler.
func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pubkey) UnmarshalText(text []byte) error {
	pk, err := PubkeyFromString(string(text))
	if err != nil {
		return err
	}
	*p = pk
	return nil
}

// IsOnCurve reports whether b is the compressed encoding of a point on the
// ed25519 curve. Program-derived keys must not be, so that no private key
// can ever sign for them.
func IsOnCurve(b []byte) bool {
	if len(b) != PubkeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// CreateProgramAddress derives a key from seeds under programID. It fails
// with ErrInvalidSeeds if the result happens to be a valid curve point.
func CreateProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, error) {
	var pk Pubkey
	if len(seeds) > MaxSeeds {
		return pk, fmt.Errorf("%w: %d seeds", ErrMaxSeedLength, len(seeds))
	}
	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return pk, ErrMaxSeedLength
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write(pdaMarker)
	copy(pk[:], h.Sum(nil))

	if IsOnCurve(pk[:]) {
		return Pubkey{}, ErrInvalidSeeds
	}
	return pk, nil
}

// FindProgramAddress searches bump seeds from 255 down to 0 and returns the
// first off-curve program-derived key together with its bump.
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8, error) {
	bumped := make([][]byte, len(seeds)+1)
	copy(bumped, seeds)
	for bump := 255; bump >= 0; bump-- {
		bumped[len(seeds)] = []byte{byte(bump)}
		pk, err := CreateProgramAddress(bumped, programID)
		switch {
		case err == nil:
			return pk, uint8(bump), nil
		case errors.Is(err, ErrInvalidSeeds):
			continue
		default:
			return Pubkey{}, 0, err
		}
	}
	return Pubkey{}, 0, ErrNoViableBump
}

// CreateWithSeed derives sha256(base ‖ seed ‖ owner).
func CreateWithSeed(base Pubkey, seed string, owner Pubkey) (Pubkey, error) {
	var pk Pubkey
	if len(seed) > MaxSeedLength {
		return pk, fmt.Errorf("%w: %q", ErrMaxSeedLength, seed)
	}
	if len(owner) >= len(pdaMarker) && string(owner[len(owner)-len(pdaMarker):]) == string(pdaMarker) {
		return pk, ErrIllegalOwner
	}
	h := sha256.New()
	h.Write(base[:])
	h.Write([]byte(seed))
	h.Write(owner[:])
	copy(pk[:], h.Sum(nil))
	return pk, nil
}
