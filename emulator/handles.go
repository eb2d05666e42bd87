package emulator

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrUnknownHandle is returned for a handle that was never registered or has
// been released.
var ErrUnknownHandle = errors.New("emulator: unknown session handle")

// handleMap keeps a global registry of live sessions that an interpreter
// across an FFI boundary can refer to. The key type is uintptr because
// that's what cgo uses when passing opaque pointers around.
var handleMap sync.Map // map[uintptr]*AccountStorage

// handleSeq yields unique, non-zero handles. Zero is reserved for "null".
var handleSeq uintptr

// Register makes s reachable through the returned handle until Release.
func Register(s *AccountStorage) uintptr {
	if s == nil {
		return 0
	}
	h := atomic.AddUintptr(&handleSeq, 1)
	handleMap.Store(h, s)
	return h
}

// Release removes a previously registered handle. Callbacks using it
// afterwards fail.
func Release(h uintptr) {
	handleMap.Delete(h)
}

// FromHandle returns the session registered under h.
func FromHandle(h uintptr) (*AccountStorage, error) {
	if s, ok := lookup(h); ok {
		return s, nil
	}
	return nil, ErrUnknownHandle
}

func lookup(h uintptr) (*AccountStorage, bool) {
	if v, ok := handleMap.Load(h); ok {
		return v.(*AccountStorage), true
	}
	return nil, false
}
