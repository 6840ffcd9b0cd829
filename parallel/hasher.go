package parallel

import (
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"sync"
)

// Hasher fingerprints a sequence of uint16 values (predicted labels) that are
// written concurrently and out of order. Values are packed 30 per 64 byte
// block, and each block is fed to sha256 as soon as it is complete, so the
// resulting digest depends only on the values and their positions.
type Hasher struct {
	mut  sync.Mutex
	sha  hash.Hash
	ate  int
	data [][64]byte
}

// NewUint16Hasher creates a hasher expecting exactly n values.
func NewUint16Hasher(n int) *Hasher {
	return &Hasher{
		sha:  sha256.New(),
		data: make([][64]byte, (29+n)/30),
	}
}

// ready reports whether the next block has all 30 positions marked as written.
func (h *Hasher) ready() bool {
	if h.ate >= len(h.data) {
		return false
	}
	return (h.data[h.ate][0]|128 == 0xff && h.data[h.ate][1] == 0xff) &&
		(h.data[h.ate][62]|128 == 0xff && h.data[h.ate][63] == 0xff)
}

func (h *Hasher) eat() {
	h.sha.Write(h.data[h.ate][:])
	h.ate++
}

// MustPutUint16 stores value at position n. Writing a position twice panics.
func (h *Hasher) MustPutUint16(n int, value uint16) {
	block := n / 30
	position := n % 30
	offset := position * 2

	h.mut.Lock()
	defer h.mut.Unlock()

	if block < h.ate {
		panic("parallel: hasher block already consumed")
	}

	h.data[block][2+offset] = byte(value)
	h.data[block][2+offset+1] = byte(value >> 8)

	var markBytes []byte
	var pos uint
	if position < 15 {
		markBytes = h.data[block][0:2]
		pos = uint(position)
	} else {
		markBytes = h.data[block][62:64]
		pos = uint(position - 15)
	}

	mark := binary.BigEndian.Uint16(markBytes)
	mask := uint16(1) << pos
	if mark&mask != 0 {
		panic("parallel: hasher duplicate write")
	}
	binary.BigEndian.PutUint16(markBytes, mark|mask)

	for h.ready() {
		h.eat()
	}
}

// Sum flushes the remaining (possibly partial) blocks and returns the digest.
// The hasher can't be reused afterwards.
func (h *Hasher) Sum() (ret [32]byte) {
	h.mut.Lock()
	for h.ate < len(h.data) {
		h.eat()
	}
	if h.data != nil {
		copy(ret[:], h.sha.Sum(nil))
		h.data = nil
	}
	h.mut.Unlock()
	return
}
