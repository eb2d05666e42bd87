// Package hamt implements the persistent storage trie of a contract account:
// a hash array mapped trie over 256-bit keys that lives entirely inside a
// caller-provided byte region. Nothing is copied out; every insert writes
// straight into the region, so the region can be persisted as-is.
//
// Layout of the region (all integers little-endian):
//
//	[0:4)    used  - offset of the first unallocated byte
//	[4:8)    count - number of stored items
//	[8:136)  root node
//	[136:used) nodes and items in allocation order
//
// A node is 32 four-byte slots indexed by successive 5-bit chunks of the
// Keccak-256 hash of the key. A zero slot is empty; a slot with the high bit
// set points at a 64-byte item (key ‖ value), otherwise at a child node.
package hamt

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	headerSize = 8
	fanout     = 32
	slotSize   = 4
	nodeSize   = fanout * slotSize
	itemSize   = 2 * common.HashLength
	itemFlag   = uint32(1) << 31

	// maxDepth is the number of whole 5-bit chunks in a 256-bit path.
	maxDepth = 256 / 5

	// MinSize is the smallest region able to hold an empty trie.
	MinSize = headerSize + nodeSize
)

var (
	// ErrCorrupt is returned when the region does not hold a valid trie.
	ErrCorrupt = errors.New("hamt: malformed storage area")

	// ErrFull is returned when an insert does not fit in the region.
	ErrFull = errors.New("hamt: storage area exhausted")
)

// Hamt is a view of a trie materialized in a byte region.
type Hamt struct {
	data  []byte
	used  uint32
	count uint32
}

// New opens the trie stored in data. An all-zero region is a fresh trie and
// gets its header initialized in place.
func New(data []byte) (*Hamt, error) {
	if len(data) < MinSize {
		return nil, fmt.Errorf("%w: region of %d bytes, need at least %d", ErrCorrupt, len(data), MinSize)
	}
	if uint64(len(data)) >= uint64(itemFlag) {
		return nil, fmt.Errorf("%w: region of %d bytes is not addressable", ErrCorrupt, len(data))
	}
	h := &Hamt{
		data:  data,
		used:  binary.LittleEndian.Uint32(data[0:4]),
		count: binary.LittleEndian.Uint32(data[4:8]),
	}
	if h.used == 0 {
		if h.count != 0 {
			return nil, fmt.Errorf("%w: %d items in an unallocated trie", ErrCorrupt, h.count)
		}
		for _, b := range data[headerSize:MinSize] {
			if b != 0 {
				return nil, fmt.Errorf("%w: populated root in an unallocated trie", ErrCorrupt)
			}
		}
		h.used = MinSize
		h.writeHeader()
		return h, nil
	}
	if h.used < MinSize || int(h.used) > len(data) {
		return nil, fmt.Errorf("%w: used offset %d outside [%d, %d]", ErrCorrupt, h.used, MinSize, len(data))
	}
	return h, nil
}

// Len returns the number of stored items.
func (h *Hamt) Len() int { return int(h.count) }

// Used returns the number of bytes of the region in use.
func (h *Hamt) Used() int { return int(h.used) }

// Free returns the number of unallocated bytes left in the region.
func (h *Hamt) Free() int { return len(h.data) - int(h.used) }

// Find looks up key. The boolean is false if the key was never inserted.
func (h *Hamt) Find(key common.Hash) (common.Hash, bool, error) {
	path := crypto.Keccak256Hash(key[:])
	node := uint32(headerSize)
	for depth := 0; depth < maxDepth; depth++ {
		v := h.slot(node, chunk(path, depth))
		switch {
		case v == 0:
			return common.Hash{}, false, nil
		case v&itemFlag != 0:
			off := v &^ itemFlag
			if err := h.checkItem(off); err != nil {
				return common.Hash{}, false, err
			}
			if h.itemKey(off) != key {
				return common.Hash{}, false, nil
			}
			return h.itemValue(off), true, nil
		default:
			if err := h.checkNode(v); err != nil {
				return common.Hash{}, false, err
			}
			node = v
		}
	}
	return common.Hash{}, false, fmt.Errorf("%w: path deeper than %d levels", ErrCorrupt, maxDepth)
}

// Insert stores value under key, overwriting any previous value. On ErrFull
// the trie is left untouched.
func (h *Hamt) Insert(key, value common.Hash) error {
	path := crypto.Keccak256Hash(key[:])
	node := uint32(headerSize)
	for depth := 0; depth < maxDepth; depth++ {
		idx := chunk(path, depth)
		v := h.slot(node, idx)
		switch {
		case v == 0:
			if h.Free() < itemSize {
				return ErrFull
			}
			off := h.alloc(itemSize)
			h.writeItem(off, key, value)
			h.setSlot(node, idx, off|itemFlag)
			h.count++
			h.writeHeader()
			return nil
		case v&itemFlag != 0:
			off := v &^ itemFlag
			if err := h.checkItem(off); err != nil {
				return err
			}
			existing := h.itemKey(off)
			if existing == key {
				copy(h.data[off+common.HashLength:off+itemSize], value[:])
				return nil
			}
			return h.split(node, idx, depth+1, off, crypto.Keccak256Hash(existing[:]), path, key, value)
		default:
			if err := h.checkNode(v); err != nil {
				return err
			}
			node = v
		}
	}
	return fmt.Errorf("%w: path deeper than %d levels", ErrCorrupt, maxDepth)
}

// split replaces the item at parent[idx] with a chain of nodes deep enough
// for the existing item and the new one to land in different slots.
func (h *Hamt) split(parent uint32, idx, depth int, oldItem uint32, oldPath, newPath, key, value common.Hash) error {
	last := depth
	for last < maxDepth && chunk(oldPath, last) == chunk(newPath, last) {
		last++
	}
	if last == maxDepth {
		return fmt.Errorf("%w: key paths collide", ErrCorrupt)
	}
	if h.Free() < (last-depth+1)*nodeSize+itemSize {
		return ErrFull
	}
	cur, curIdx := parent, idx
	for level := depth; level <= last; level++ {
		n := h.alloc(nodeSize)
		h.setSlot(cur, curIdx, n)
		cur, curIdx = n, chunk(newPath, level)
	}
	item := h.alloc(itemSize)
	h.writeItem(item, key, value)
	h.setSlot(cur, chunk(oldPath, last), oldItem|itemFlag)
	h.setSlot(cur, chunk(newPath, last), item|itemFlag)
	h.count++
	h.writeHeader()
	return nil
}

// ForEach calls fn for every stored item until fn returns false.
func (h *Hamt) ForEach(fn func(key, value common.Hash) bool) error {
	_, err := h.walk(headerSize, 0, fn)
	return err
}

func (h *Hamt) walk(node uint32, depth int, fn func(key, value common.Hash) bool) (bool, error) {
	if depth >= maxDepth {
		return false, fmt.Errorf("%w: path deeper than %d levels", ErrCorrupt, maxDepth)
	}
	for i := 0; i < fanout; i++ {
		v := h.slot(node, i)
		switch {
		case v == 0:
			continue
		case v&itemFlag != 0:
			off := v &^ itemFlag
			if err := h.checkItem(off); err != nil {
				return false, err
			}
			if !fn(h.itemKey(off), h.itemValue(off)) {
				return false, nil
			}
		default:
			if err := h.checkNode(v); err != nil {
				return false, err
			}
			more, err := h.walk(v, depth+1, fn)
			if err != nil || !more {
				return false, err
			}
		}
	}
	return true, nil
}

// ---------------------------------------------------------------------------
// Raw region access
// ---------------------------------------------------------------------------

// chunk returns the 5-bit path segment used at the given depth.
func chunk(path common.Hash, depth int) int {
	bit := depth * 5
	v := uint16(path[bit/8]) << 8
	if bit/8+1 < common.HashLength {
		v |= uint16(path[bit/8+1])
	}
	return int(v>>(11-bit%8)) & (fanout - 1)
}

func (h *Hamt) slot(node uint32, i int) uint32 {
	off := node + uint32(i*slotSize)
	return binary.LittleEndian.Uint32(h.data[off : off+slotSize])
}

func (h *Hamt) setSlot(node uint32, i int, v uint32) {
	off := node + uint32(i*slotSize)
	binary.LittleEndian.PutUint32(h.data[off:off+slotSize], v)
}

func (h *Hamt) checkNode(off uint32) error {
	if off < MinSize || uint64(off)+nodeSize > uint64(h.used) {
		return fmt.Errorf("%w: node offset %d out of bounds", ErrCorrupt, off)
	}
	return nil
}

func (h *Hamt) checkItem(off uint32) error {
	if off < MinSize || uint64(off)+itemSize > uint64(h.used) {
		return fmt.Errorf("%w: item offset %d out of bounds", ErrCorrupt, off)
	}
	return nil
}

func (h *Hamt) itemKey(off uint32) common.Hash {
	return common.BytesToHash(h.data[off : off+common.HashLength])
}

func (h *Hamt) itemValue(off uint32) common.Hash {
	return common.BytesToHash(h.data[off+common.HashLength : off+itemSize])
}

func (h *Hamt) writeItem(off uint32, key, value common.Hash) {
	copy(h.data[off:off+common.HashLength], key[:])
	copy(h.data[off+common.HashLength:off+itemSize], value[:])
}

// alloc hands out n zeroed bytes. Callers check Free beforehand.
func (h *Hamt) alloc(n int) uint32 {
	off := h.used
	clear(h.data[off : int(off)+n])
	h.used += uint32(n)
	return off
}

func (h *Hamt) writeHeader() {
	binary.LittleEndian.PutUint32(h.data[0:4], h.used)
	binary.LittleEndian.PutUint32(h.data[4:8], h.count)
}
