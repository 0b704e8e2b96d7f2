package boc

import (
	"fmt"
	"math/big"
)

// Slice is a read cursor over a cell's bits and refs. Load methods
// return ErrCellUnderflow when the requested data is not present.
type Slice struct {
	cell   *Cell
	bitPos int
	refPos int
}

// BitsLeft returns the number of unread bits.
func (s *Slice) BitsLeft() int { return s.cell.bitLen - s.bitPos }

// RefsLeft returns the number of unread refs.
func (s *Slice) RefsLeft() int { return len(s.cell.refs) - s.refPos }

func (s *Slice) loadBit() bool {
	bit := s.cell.bits[s.bitPos/8]&(1<<(7-uint(s.bitPos%8))) != 0
	s.bitPos++
	return bit
}

// LoadBit reads a single bit.
func (s *Slice) LoadBit() (bool, error) {
	if s.BitsLeft() < 1 {
		return false, ErrCellUnderflow
	}
	return s.loadBit(), nil
}

// LoadUint reads an unsigned big-endian integer of `bits` bits.
func (s *Slice) LoadUint(bits int) (uint64, error) {
	if bits > 64 {
		return 0, fmt.Errorf("load uint: %d bits exceeds 64", bits)
	}
	if s.BitsLeft() < bits {
		return 0, ErrCellUnderflow
	}
	var v uint64
	for i := 0; i < bits; i++ {
		v <<= 1
		if s.loadBit() {
			v |= 1
		}
	}
	return v, nil
}

// MustLoadUint is LoadUint for layouts already validated by the caller.
func (s *Slice) MustLoadUint(bits int) uint64 {
	v, err := s.LoadUint(bits)
	if err != nil {
		panic(err)
	}
	return v
}

// LoadInt reads a two's-complement signed integer of `bits` bits.
func (s *Slice) LoadInt(bits int) (int64, error) {
	v, err := s.LoadUint(bits)
	if err != nil {
		return 0, err
	}
	if bits < 64 && v&(1<<uint(bits-1)) != 0 {
		v |= ^uint64(0) << uint(bits)
	}
	return int64(v), nil
}

// LoadBigUint reads an unsigned big-endian integer of `bits` bits.
func (s *Slice) LoadBigUint(bits int) (*big.Int, error) {
	if s.BitsLeft() < bits {
		return nil, ErrCellUnderflow
	}
	v := new(big.Int)
	for i := 0; i < bits; i++ {
		v.Lsh(v, 1)
		if s.loadBit() {
			v.SetBit(v, 0, 1)
		}
	}
	return v, nil
}

// LoadBytes reads n whole bytes.
func (s *Slice) LoadBytes(n int) ([]byte, error) {
	if s.BitsLeft() < n*8 {
		return nil, ErrCellUnderflow
	}
	out := make([]byte, n)
	for i := range out {
		v, _ := s.LoadUint(8)
		out[i] = byte(v)
	}
	return out, nil
}

// LoadCoins reads a VarUInteger 16 nanoton amount.
func (s *Slice) LoadCoins() (*big.Int, error) {
	n, err := s.LoadUint(4)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return big.NewInt(0), nil
	}
	return s.LoadBigUint(int(n) * 8)
}

// LoadRef reads the next child reference. Panics on underflow: ref
// counts are part of validated layouts.
func (s *Slice) LoadRef() *Cell {
	if s.RefsLeft() < 1 {
		panic(ErrCellUnderflow)
	}
	r := s.cell.refs[s.refPos]
	s.refPos++
	return r
}

// LoadMaybeRef reads a presence bit and, when set, the ref.
func (s *Slice) LoadMaybeRef() (*Cell, error) {
	present, err := s.LoadBit()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	if s.RefsLeft() < 1 {
		return nil, ErrCellUnderflow
	}
	return s.LoadRef(), nil
}

// Skip discards n bits.
func (s *Slice) Skip(n int) error {
	if s.BitsLeft() < n {
		return ErrCellUnderflow
	}
	s.bitPos += n
	return nil
}
