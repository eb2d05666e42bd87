package account

import (
	"encoding/binary"
	"fmt"

	"github.com/evm-loader/emulator/hamt"
	"github.com/evm-loader/emulator/ledger"
)

// ContractDataSize is the packed size of ContractData.
const ContractDataSize = ledger.PubkeyLength + 4

// ContractData is the fixed metadata record of a contract account.
type ContractData struct {
	// Owner is the ledger account of the ethereum account this code belongs to.
	Owner ledger.Pubkey
	// CodeSize is the length of the contract bytecode.
	CodeSize uint32
}

// UnpackContractData decodes the first ContractDataSize bytes of input. It
// panics if input is shorter; callers are expected to check the length.
func UnpackContractData(input []byte) ContractData {
	data := input[:ContractDataSize:ContractDataSize]
	var d ContractData
	copy(d.Owner[:], data[:ledger.PubkeyLength])
	d.CodeSize = binary.LittleEndian.Uint32(data[ledger.PubkeyLength:])
	return d
}

// Pack writes the record into the first ContractDataSize bytes of dst. It
// panics if dst is shorter.
func (d ContractData) Pack(dst []byte) {
	data := dst[:ContractDataSize:ContractDataSize]
	copy(data[:ledger.PubkeyLength], d.Owner[:])
	binary.LittleEndian.PutUint32(data[ledger.PubkeyLength:], d.CodeSize)
}

// ValidsSize returns the length of the jump-validity bitmap for code of the
// given size. The extra byte keeps bit lookups at the last code byte in range
// when the size is not a multiple of eight.
func ValidsSize(codeSize uint32) int {
	return int(codeSize)/8 + 1
}

// LayoutSize returns the minimal number of post-metadata bytes needed by a
// contract with the given code size and storage region.
func LayoutSize(codeSize uint32, storage int) int {
	return int(codeSize) + ValidsSize(codeSize) + storage
}

// ContractExtension holds the variable part of a contract account. The three
// regions are windows over one buffer; writes through them land in that
// buffer.
type ContractExtension struct {
	Code    []byte
	Valids  []byte
	Storage *hamt.Hamt
}

// Split partitions remaining into code, validity bitmap and storage trie
// regions as sized by data. No bytes are copied. The storage region must be
// at least hamt.MinSize bytes to hold a trie root.
func Split(data ContractData, remaining []byte) (*ContractExtension, error) {
	var (
		codeSize   = int(data.CodeSize)
		validsSize = ValidsSize(data.CodeSize)
		need       = codeSize + validsSize
	)
	if len(remaining) < need {
		return nil, fmt.Errorf("%w: contract layout needs %d bytes for code and valids, have %d", ErrDecode, need, len(remaining))
	}
	code := remaining[:codeSize:codeSize]
	valids := remaining[codeSize:need:need]

	storage, err := hamt.New(remaining[need:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return &ContractExtension{Code: code, Valids: valids, Storage: storage}, nil
}

// IsValidJump reports whether pc is marked as a legal jump target.
func (e *ContractExtension) IsValidJump(pc uint64) bool {
	if pc >= uint64(len(e.Code)) {
		return false
	}
	return e.Valids[pc/8]&(1<<(pc%8)) != 0
}
