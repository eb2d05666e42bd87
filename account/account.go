// Package account implements the binary layout of emulator-owned ledger
// accounts: a one-byte kind tag, a fixed metadata record, and for contracts
// the code, jump-validity bitmap and storage trie that follow it.
package account

import (
	"errors"
	"fmt"

	"github.com/evm-loader/emulator/ledger"
)

// Kind tags stored in byte 0 of every account.
const (
	TagEmpty    byte = 0
	TagAccount  byte = 1
	TagContract byte = 2
)

var (
	// ErrDecode is wrapped by every layout decoding failure.
	ErrDecode = errors.New("account decode failed")

	// ErrUnknownTag is returned for a kind tag this package cannot read.
	ErrUnknownTag = errors.New("unknown account tag")
)

// View is an independently owned decode of one ledger account. For contract
// accounts Data and Extension are populated, and Extension's regions alias
// Raw.
type View struct {
	Key      ledger.Pubkey
	Lamports uint64
	Owner    ledger.Pubkey // owning program
	Tag      byte

	Data      ContractData
	Extension *ContractExtension

	raw []byte
}

// IsContract reports whether the account carries a contract layout.
func (v *View) IsContract() bool { return v.Tag == TagContract }

// Raw returns the full account buffer the view was decoded from.
func (v *View) Raw() []byte { return v.raw }

// Code returns the contract bytecode, or nil for non-contract accounts.
func (v *View) Code() []byte {
	if v.Extension == nil {
		return nil
	}
	return v.Extension.Code
}

// SyncData packs Data back into the buffer after it was modified.
func (v *View) SyncData() {
	if v.IsContract() {
		v.Data.Pack(v.raw[1:])
	}
}

// Decode interprets acc's data. The view takes ownership of acc.Data; pass
// a copy if the caller keeps using it.
func Decode(key ledger.Pubkey, acc *ledger.Account) (*View, error) {
	v := &View{
		Key:      key,
		Lamports: acc.Lamports,
		Owner:    acc.Owner,
		raw:      acc.Data,
	}
	if len(acc.Data) == 0 {
		v.Tag = TagEmpty
		return v, nil
	}
	v.Tag = acc.Data[0]
	switch v.Tag {
	case TagEmpty, TagAccount:
		return v, nil
	case TagContract:
		if len(acc.Data) < 1+ContractDataSize {
			return nil, fmt.Errorf("%w: %s: %d bytes, contract metadata needs %d", ErrDecode, key, len(acc.Data), 1+ContractDataSize)
		}
		v.Data = UnpackContractData(acc.Data[1:])
		ext, err := Split(v.Data, acc.Data[1+ContractDataSize:])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		v.Extension = ext
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %w: %d", ErrDecode, ErrUnknownTag, v.Tag)
	}
}

// NewContract builds the raw data of a contract account with the given code,
// validity bitmap and a zeroed storage region of storageSize bytes. valids
// may be nil for an all-invalid bitmap.
func NewContract(owner ledger.Pubkey, code, valids []byte, storageSize int) []byte {
	d := ContractData{Owner: owner, CodeSize: uint32(len(code))}
	buf := make([]byte, 1+ContractDataSize+LayoutSize(d.CodeSize, storageSize))
	buf[0] = TagContract
	d.Pack(buf[1:])
	rest := buf[1+ContractDataSize:]
	copy(rest, code)
	copy(rest[len(code):len(code)+ValidsSize(d.CodeSize)], valids)
	return buf
}
