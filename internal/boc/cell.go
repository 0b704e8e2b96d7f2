// Package boc implements the TON cell model: bit-level builders and
// parsers, the standard cell representation hash, bag-of-cells
// serialization and hashmap dictionaries. Every wire structure the bot
// exchanges with the chain is built and read through this package.
package boc

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// MaxCellBits is the capacity of a single cell in bits.
	MaxCellBits = 1023
	// MaxCellRefs is the maximum number of child references per cell.
	MaxCellRefs = 4
)

var (
	// ErrCellOverflow is returned when a store would exceed cell capacity.
	ErrCellOverflow = errors.New("cell overflow")
	// ErrCellUnderflow is returned when a load runs past the cell contents.
	ErrCellUnderflow = errors.New("cell underflow")
)

// Cell is an immutable tree node of up to 1023 data bits and 4 refs.
// Construct cells with a Builder and read them through BeginParse.
type Cell struct {
	bits   []byte
	bitLen int
	refs   []*Cell

	hash  []byte
	depth uint16
}

// BitLen returns the number of data bits stored in the cell.
func (c *Cell) BitLen() int { return c.bitLen }

// Refs returns the cell's child references.
func (c *Cell) Refs() []*Cell { return c.refs }

// BeginParse returns a slice positioned at the start of the cell.
func (c *Cell) BeginParse() *Slice {
	return &Slice{cell: c}
}

// Depth returns the cell tree depth: 0 for a leaf, 1+max(children)
// otherwise.
func (c *Cell) Depth() uint16 {
	return c.depth
}

// Hash returns the standard cell representation hash.
func (c *Cell) Hash() []byte {
	out := make([]byte, 32)
	copy(out, c.hash)
	return out
}

// finalize computes and caches the representation hash and depth.
// Called once when the builder seals the cell.
func (c *Cell) finalize() {
	var depth uint16
	for _, r := range c.refs {
		if r.depth+1 > depth {
			depth = r.depth + 1
		}
	}
	c.depth = depth

	repr := make([]byte, 0, 2+len(c.dataWithTag())+len(c.refs)*34)
	repr = append(repr, c.d1(), c.d2())
	repr = append(repr, c.dataWithTag()...)
	for _, r := range c.refs {
		var d [2]byte
		binary.BigEndian.PutUint16(d[:], r.depth)
		repr = append(repr, d[:]...)
	}
	for _, r := range c.refs {
		repr = append(repr, r.hash...)
	}

	sum := sha256.Sum256(repr)
	c.hash = sum[:]
}

// d1 is the refs descriptor byte (ordinary cells only, level 0).
func (c *Cell) d1() byte {
	return byte(len(c.refs))
}

// d2 is the bits descriptor byte.
func (c *Cell) d2() byte {
	return byte(c.bitLen/8 + (c.bitLen+7)/8)
}

// dataWithTag returns the cell data padded with the completion tag
// when the bit length is not a whole number of bytes.
func (c *Cell) dataWithTag() []byte {
	n := (c.bitLen + 7) / 8
	out := make([]byte, n)
	copy(out, c.bits[:n])
	if c.bitLen%8 != 0 {
		out[n-1] |= 1 << (7 - uint(c.bitLen%8))
	}
	return out
}

// Dump renders the cell tree for debugging.
func (c *Cell) Dump() string {
	return c.dump(0)
}

func (c *Cell) dump(indent int) string {
	s := fmt.Sprintf("%*sx{%x} bits=%d\n", indent*2, "", c.dataWithTag(), c.bitLen)
	for _, r := range c.refs {
		s += r.dump(indent + 1)
	}
	return s
}
