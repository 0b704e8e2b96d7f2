package boc

import (
	"math/big"
)

// Builder assembles a cell bit by bit. Store methods panic on
// overflow: wire layouts are fixed at compile time, so exceeding 1023
// bits is a programming error, not a runtime condition.
type Builder struct {
	bits   [128]byte
	bitLen int
	refs   []*Cell
}

// NewBuilder returns an empty cell builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// BitLen returns the number of bits stored so far.
func (b *Builder) BitLen() int { return b.bitLen }

// RefsCount returns the number of references stored so far.
func (b *Builder) RefsCount() int { return len(b.refs) }

func (b *Builder) storeBit(bit bool) {
	if b.bitLen >= MaxCellBits {
		panic(ErrCellOverflow)
	}
	if bit {
		b.bits[b.bitLen/8] |= 1 << (7 - uint(b.bitLen%8))
	}
	b.bitLen++
}

// StoreBit appends a single bit.
func (b *Builder) StoreBit(bit bool) *Builder {
	b.storeBit(bit)
	return b
}

// StoreUint appends the low `bits` bits of v, most significant first.
func (b *Builder) StoreUint(v uint64, bits int) *Builder {
	for i := bits - 1; i >= 0; i-- {
		b.storeBit(v&(1<<uint(i)) != 0)
	}
	return b
}

// StoreInt appends v as a two's-complement signed integer of `bits` bits.
func (b *Builder) StoreInt(v int64, bits int) *Builder {
	return b.StoreUint(uint64(v), bits)
}

// StoreBigUint appends v as an unsigned big-endian integer of `bits` bits.
func (b *Builder) StoreBigUint(v *big.Int, bits int) *Builder {
	if v == nil {
		v = big.NewInt(0)
	}
	for i := bits - 1; i >= 0; i-- {
		b.storeBit(v.Bit(i) != 0)
	}
	return b
}

// StoreBytes appends the bytes verbatim.
func (b *Builder) StoreBytes(data []byte) *Builder {
	for _, by := range data {
		b.StoreUint(uint64(by), 8)
	}
	return b
}

// StoreCoins appends v in the VarUInteger 16 encoding used for
// nanoton amounts: a 4-bit byte length followed by that many bytes.
func (b *Builder) StoreCoins(v *big.Int) *Builder {
	if v == nil || v.Sign() == 0 {
		return b.StoreUint(0, 4)
	}
	data := v.Bytes()
	b.StoreUint(uint64(len(data)), 4)
	return b.StoreBytes(data)
}

// StoreRef appends a child cell reference.
func (b *Builder) StoreRef(c *Cell) *Builder {
	if len(b.refs) >= MaxCellRefs {
		panic(ErrCellOverflow)
	}
	b.refs = append(b.refs, c)
	return b
}

// StoreMaybeRef appends a presence bit and, when c is non-nil, the ref.
func (b *Builder) StoreMaybeRef(c *Cell) *Builder {
	if c == nil {
		return b.StoreBit(false)
	}
	b.StoreBit(true)
	return b.StoreRef(c)
}

// StoreSlice appends the remaining contents of s, bits and refs.
func (b *Builder) StoreSlice(s *Slice) *Builder {
	for s.BitsLeft() > 0 {
		b.storeBit(s.loadBit())
	}
	for s.RefsLeft() > 0 {
		b.StoreRef(s.LoadRef())
	}
	return b
}

// StoreBuilder appends the contents of another builder.
func (b *Builder) StoreBuilder(other *Builder) *Builder {
	return b.StoreSlice(other.EndCell().BeginParse())
}

// EndCell seals the builder into an immutable cell.
func (b *Builder) EndCell() *Cell {
	n := (b.bitLen + 7) / 8
	c := &Cell{
		bits:   append([]byte(nil), b.bits[:n]...),
		bitLen: b.bitLen,
		refs:   append([]*Cell(nil), b.refs...),
	}
	c.finalize()
	return c
}
