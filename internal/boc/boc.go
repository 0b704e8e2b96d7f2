package boc

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"sort"
)

// bocMagic is the serialized bag-of-cells generic magic.
const bocMagic = 0xB5EE9C72

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ToBOC serializes the cell tree rooted at c into a bag of cells with
// a CRC32c trailer.
func ToBOC(c *Cell) []byte {
	cells, index := topoOrder(c)

	refSize := bytesForCount(uint64(len(cells)))

	var payload []byte
	for _, cell := range cells {
		payload = append(payload, cell.d1(), cell.d2())
		payload = append(payload, cell.dataWithTag()...)
		for _, r := range cell.refs {
			payload = appendUint(payload, uint64(index[string(r.hash)]), refSize)
		}
	}

	offSize := bytesForCount(uint64(len(payload)))

	out := make([]byte, 0, 32+len(payload))
	out = binary.BigEndian.AppendUint32(out, bocMagic)
	// flags byte: no index, crc32 present, ref size in the low 3 bits.
	out = append(out, byte(0x40|refSize))
	out = append(out, byte(offSize))
	out = appendUint(out, uint64(len(cells)), refSize) // cells
	out = appendUint(out, 1, refSize)                  // roots
	out = appendUint(out, 0, refSize)                  // absent
	out = appendUint(out, uint64(len(payload)), offSize)
	out = appendUint(out, 0, refSize) // root index
	out = append(out, payload...)

	crc := crc32.Checksum(out, crcTable)
	out = binary.LittleEndian.AppendUint32(out, crc)
	return out
}

// ToBase64 serializes the cell tree and encodes it in standard base64.
func ToBase64(c *Cell) string {
	return base64.StdEncoding.EncodeToString(ToBOC(c))
}

// FromBase64 decodes a base64 bag of cells and returns its root cell.
func FromBase64(s string) (*Cell, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.URLEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("decode boc base64: %w", err)
		}
	}
	return FromBOC(data)
}

// FromBOC parses a serialized bag of cells and returns its first root.
func FromBOC(data []byte) (*Cell, error) {
	r := &bocReader{data: data}

	magic, err := r.readUint(4)
	if err != nil || magic != bocMagic {
		return nil, errors.New("bad boc magic")
	}

	flags, err := r.readByte()
	if err != nil {
		return nil, err
	}
	hasIdx := flags&0x80 != 0
	hasCRC := flags&0x40 != 0
	refSize := int(flags & 0x07)
	if refSize == 0 || refSize > 8 {
		return nil, fmt.Errorf("bad boc ref size %d", refSize)
	}

	offByte, err := r.readByte()
	if err != nil {
		return nil, err
	}
	offSize := int(offByte)

	cellsCount, err := r.readUint(refSize)
	if err != nil {
		return nil, err
	}
	rootsCount, err := r.readUint(refSize)
	if err != nil {
		return nil, err
	}
	if rootsCount < 1 {
		return nil, errors.New("boc has no roots")
	}
	if _, err := r.readUint(refSize); err != nil { // absent
		return nil, err
	}
	if _, err := r.readUint(offSize); err != nil { // total cells size
		return nil, err
	}

	rootIdx := make([]uint64, rootsCount)
	for i := range rootIdx {
		if rootIdx[i], err = r.readUint(refSize); err != nil {
			return nil, err
		}
	}
	if hasIdx {
		if err := r.skip(int(cellsCount) * offSize); err != nil {
			return nil, err
		}
	}

	type rawCell struct {
		bits   []byte
		bitLen int
		refs   []uint64
	}
	raw := make([]rawCell, cellsCount)
	for i := range raw {
		d1, err := r.readByte()
		if err != nil {
			return nil, err
		}
		d2, err := r.readByte()
		if err != nil {
			return nil, err
		}
		if d1&0x08 != 0 {
			return nil, errors.New("exotic cells not supported")
		}
		refsCount := int(d1 & 0x07)
		dataBytes := int(d2+1) / 2
		bitLen := int(d2/2) * 8

		bits, err := r.readBytes(dataBytes)
		if err != nil {
			return nil, err
		}
		if d2%2 != 0 {
			// Partial last byte: locate the completion tag.
			last := bits[dataBytes-1]
			extra := 8
			for bit := 0; bit < 8; bit++ {
				if last&(1<<uint(bit)) != 0 {
					extra = 7 - bit
					break
				}
			}
			if extra == 8 {
				return nil, errors.New("missing completion tag")
			}
			bits[dataBytes-1] &^= 1 << (7 - uint(extra))
			bitLen += extra
		}

		refs := make([]uint64, refsCount)
		for j := range refs {
			if refs[j], err = r.readUint(refSize); err != nil {
				return nil, err
			}
		}
		raw[i] = rawCell{bits: bits, bitLen: bitLen, refs: refs}
	}

	if hasCRC {
		if err := r.skip(4); err != nil {
			return nil, err
		}
	}

	// Cells reference only higher indices, so build back to front.
	cells := make([]*Cell, cellsCount)
	for i := int(cellsCount) - 1; i >= 0; i-- {
		rc := raw[i]
		c := &Cell{bits: rc.bits, bitLen: rc.bitLen}
		for _, ri := range rc.refs {
			if ri <= uint64(i) || ri >= cellsCount {
				return nil, errors.New("bad cell ref ordering")
			}
			c.refs = append(c.refs, cells[ri])
		}
		c.finalize()
		cells[i] = c
	}

	if rootIdx[0] >= cellsCount {
		return nil, errors.New("bad root index")
	}
	return cells[rootIdx[0]], nil
}

// topoOrder lists the tree with parents before children, deduplicating
// shared subtrees by hash, and returns the index by hash. A parent's
// depth strictly exceeds every child's, so sorting unique cells by
// decreasing depth yields a valid ordering.
func topoOrder(root *Cell) ([]*Cell, map[string]int) {
	var unique []*Cell
	seen := make(map[string]bool)

	var visit func(c *Cell)
	visit = func(c *Cell) {
		key := string(c.hash)
		if seen[key] {
			return
		}
		seen[key] = true
		unique = append(unique, c)
		for _, r := range c.refs {
			visit(r)
		}
	}
	visit(root)

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].depth > unique[j].depth
	})

	index := make(map[string]int, len(unique))
	for i, c := range unique {
		index[string(c.hash)] = i
	}
	return unique, index
}

func bytesForCount(n uint64) int {
	size := 1
	for n >= 1<<(8*uint(size)) {
		size++
	}
	return size
}

func appendUint(dst []byte, v uint64, size int) []byte {
	for i := size - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(8*uint(i))))
	}
	return dst
}

type bocReader struct {
	data []byte
	pos  int
}

func (r *bocReader) readByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, errors.New("boc truncated")
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *bocReader) readBytes(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, errors.New("boc truncated")
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

func (r *bocReader) readUint(size int) (uint64, error) {
	var v uint64
	for i := 0; i < size; i++ {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		v = v<<8 | uint64(b)
	}
	return v, nil
}

func (r *bocReader) skip(n int) error {
	if r.pos+n > len(r.data) {
		return errors.New("boc truncated")
	}
	r.pos += n
	return nil
}
