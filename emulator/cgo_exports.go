//go:build cgo && emucb

package emulator

/*
#include <stdint.h>
#include <string.h>

// Layouts shared with the interpreter. They must stay in sync with the
// interpreter's FFI header.

typedef struct {
    uint8_t bytes[20];
} FFIAddress;

typedef struct {
    uint8_t bytes[32];
} FFIHash;

typedef struct {
    uint64_t slot;
    int64_t timestamp;
} FFIBlockEnv;
*/
import "C"

import (
	"context"
	"unsafe"

	"github.com/ethereum/go-ethereum/common"
)

func cAddressToGo(addr C.FFIAddress) common.Address {
	var out common.Address
	C.memcpy(unsafe.Pointer(&out[0]), unsafe.Pointer(&addr.bytes[0]), 20)
	return out
}

func cHashToGo(h C.FFIHash) common.Hash {
	var out common.Hash
	C.memcpy(unsafe.Pointer(&out[0]), unsafe.Pointer(&h.bytes[0]), 32)
	return out
}

//export emu_account_exists
func emu_account_exists(handle C.uintptr_t, addr C.FFIAddress) C.int {
	st, ok := lookup(uintptr(handle))
	if !ok {
		return -1
	}
	exists, err := st.Ensure(context.Background(), cAddressToGo(addr))
	if err != nil {
		return -1
	}
	if exists {
		return 1
	}
	return 0
}

//export emu_storage_get
func emu_storage_get(handle C.uintptr_t, addr C.FFIAddress, slot C.FFIHash, out_val *C.FFIHash) C.int {
	st, ok := lookup(uintptr(handle))
	if !ok || out_val == nil {
		return -1
	}
	val, err := st.StorageAt(context.Background(), cAddressToGo(addr), cHashToGo(slot))
	if err != nil {
		return -1
	}
	C.memcpy(unsafe.Pointer(&out_val.bytes[0]), unsafe.Pointer(&val[0]), 32)
	return 0
}

// emu_account_code copies up to max bytes of code into out and returns the
// full code length, or -1 on failure.
//
//export emu_account_code
func emu_account_code(handle C.uintptr_t, addr C.FFIAddress, out *C.uint8_t, max C.size_t) C.int64_t {
	st, ok := lookup(uintptr(handle))
	if !ok {
		return -1
	}
	code, err := st.Code(context.Background(), cAddressToGo(addr))
	if err != nil {
		return -1
	}
	n := len(code)
	if n > int(max) {
		n = int(max)
	}
	if n > 0 && out != nil {
		C.memcpy(unsafe.Pointer(out), unsafe.Pointer(&code[0]), C.size_t(n))
	}
	return C.int64_t(len(code))
}

//export emu_block_env
func emu_block_env(handle C.uintptr_t, out_env *C.FFIBlockEnv) C.int {
	st, ok := lookup(uintptr(handle))
	if !ok || out_env == nil {
		return -1
	}
	env := st.Env()
	out_env.slot = C.uint64_t(env.Slot)
	out_env.timestamp = C.int64_t(env.Timestamp)
	return 0
}
