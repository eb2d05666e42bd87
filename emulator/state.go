package emulator

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/evm-loader/emulator/account"
)

// Code returns the bytecode deployed at addr, or nil for addresses without a
// contract account.
func (s *AccountStorage) Code(ctx context.Context, addr common.Address) ([]byte, error) {
	return WithAccount(ctx, s, addr,
		func() []byte { return nil },
		func(v *account.View) []byte { return v.Code() },
	)
}

// StorageAt reads one storage slot of the contract at addr. Unset slots and
// addresses without a contract read as the zero hash.
func (s *AccountStorage) StorageAt(ctx context.Context, addr common.Address, key common.Hash) (common.Hash, error) {
	view, found, err := s.View(ctx, addr)
	if err != nil || !found || view.Extension == nil {
		return common.Hash{}, err
	}
	value, _, err := view.Extension.Storage.Find(key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("read slot %s of %s: %w", key, addr, err)
	}
	return value, nil
}
