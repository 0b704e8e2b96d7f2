package boc

import (
	"errors"
	"fmt"
	"math/big"
	"math/bits"
	"sort"
)

// DictEntry is one key/value pair for dictionary serialization. The
// value is stored inline in the leaf node, bits and refs alike.
type DictEntry struct {
	Key   *big.Int
	Value *Builder
}

// DictKV is one key/value pair read back from a dictionary. Value is
// positioned after the edge label.
type DictKV struct {
	Key   *big.Int
	Value *Slice
}

// DictKeyInt widens a signed integer to a dictionary key of the given
// width, two's complement.
func DictKeyInt(v int64, keyBits int) *big.Int {
	k := big.NewInt(v)
	if v < 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(keyBits))
		k.Add(k, mod)
	}
	return k
}

// BuildDict serializes entries into a hashmap cell with keys of
// keyBits bits. Returns an error on an empty set: TL-B hashmaps have
// no empty form, callers store the maybe-bit themselves.
func BuildDict(keyBits int, entries []DictEntry) (*Cell, error) {
	if len(entries) == 0 {
		return nil, errors.New("empty dict")
	}

	nodes := make([]dictNode, len(entries))
	for i, e := range entries {
		if e.Key.BitLen() > keyBits {
			return nil, fmt.Errorf("dict key %s exceeds %d bits", e.Key, keyBits)
		}
		key := make([]bool, keyBits)
		for j := 0; j < keyBits; j++ {
			key[j] = e.Key.Bit(keyBits - 1 - j) != 0
		}
		nodes[i] = dictNode{key: key, value: e.Value}
	}
	sort.Slice(nodes, func(i, j int) bool { return lessBits(nodes[i].key, nodes[j].key) })
	for i := 1; i < len(nodes); i++ {
		if equalBits(nodes[i-1].key, nodes[i].key) {
			return nil, errors.New("duplicate dict key")
		}
	}

	return buildDictNode(nodes, keyBits), nil
}

// ParseDict reads every key/value pair from a hashmap cell with keys
// of keyBits bits.
func ParseDict(c *Cell, keyBits int) ([]DictKV, error) {
	var out []DictKV
	err := walkDict(c, keyBits, new(big.Int), 0, &out)
	return out, err
}

type dictNode struct {
	key   []bool
	value *Builder
}

func buildDictNode(nodes []dictNode, n int) *Cell {
	// Longest common prefix of all keys at the current depth.
	prefix := 0
	for prefix < len(nodes[0].key) {
		bit := nodes[0].key[prefix]
		same := true
		for _, nd := range nodes[1:] {
			if nd.key[prefix] != bit {
				same = false
				break
			}
		}
		if !same {
			break
		}
		prefix++
	}

	b := NewBuilder()
	storeLabel(b, nodes[0].key[:prefix], n)

	if len(nodes) == 1 {
		b.StoreBuilder(nodes[0].value)
		return b.EndCell()
	}

	// Fork on the bit after the prefix.
	split := 0
	for split < len(nodes) && !nodes[split].key[prefix] {
		split++
	}
	left := trimKeys(nodes[:split], prefix+1)
	right := trimKeys(nodes[split:], prefix+1)

	rest := n - prefix - 1
	b.StoreRef(buildDictNode(left, rest))
	b.StoreRef(buildDictNode(right, rest))
	return b.EndCell()
}

func trimKeys(nodes []dictNode, skip int) []dictNode {
	out := make([]dictNode, len(nodes))
	for i, nd := range nodes {
		out[i] = dictNode{key: nd.key[skip:], value: nd.value}
	}
	return out
}

// storeLabel writes the shortest of the three hml label encodings for
// the given prefix within a hashmap of n remaining key bits.
func storeLabel(b *Builder, label []bool, n int) {
	l := len(label)
	lenBits := bits.Len(uint(n))

	shortSize := 1 + l + 1 + l
	longSize := 2 + lenBits + l
	sameSize := shortSize + 1 // unreachable unless all bits equal
	allSame := true
	for _, bit := range label {
		if bit != label[0] {
			allSame = false
			break
		}
	}
	if allSame && l > 1 {
		sameSize = 2 + 1 + lenBits
	}

	switch {
	case allSame && l > 1 && sameSize <= shortSize && sameSize <= longSize:
		// hml_same$11
		b.StoreUint(3, 2)
		b.StoreBit(label[0])
		b.StoreUint(uint64(l), lenBits)
	case shortSize <= longSize:
		// hml_short$0 with unary length
		b.StoreBit(false)
		for i := 0; i < l; i++ {
			b.StoreBit(true)
		}
		b.StoreBit(false)
		for _, bit := range label {
			b.StoreBit(bit)
		}
	default:
		// hml_long$10
		b.StoreUint(2, 2)
		b.StoreUint(uint64(l), lenBits)
		for _, bit := range label {
			b.StoreBit(bit)
		}
	}
}

func loadLabel(s *Slice, n int) (int, *big.Int, error) {
	lenBits := bits.Len(uint(n))

	first, err := s.LoadBit()
	if err != nil {
		return 0, nil, err
	}
	if !first {
		// hml_short: unary length then the bits.
		l := 0
		for {
			bit, err := s.LoadBit()
			if err != nil {
				return 0, nil, err
			}
			if !bit {
				break
			}
			l++
		}
		v, err := s.LoadBigUint(l)
		if err != nil {
			return 0, nil, err
		}
		return l, v, nil
	}

	second, err := s.LoadBit()
	if err != nil {
		return 0, nil, err
	}
	if !second {
		// hml_long
		l, err := s.LoadUint(lenBits)
		if err != nil {
			return 0, nil, err
		}
		v, err := s.LoadBigUint(int(l))
		if err != nil {
			return 0, nil, err
		}
		return int(l), v, nil
	}

	// hml_same
	bit, err := s.LoadBit()
	if err != nil {
		return 0, nil, err
	}
	l, err := s.LoadUint(lenBits)
	if err != nil {
		return 0, nil, err
	}
	v := new(big.Int)
	if bit {
		v.Lsh(big.NewInt(1), uint(l))
		v.Sub(v, big.NewInt(1))
	}
	return int(l), v, nil
}

func walkDict(c *Cell, n int, acc *big.Int, accBits int, out *[]DictKV) error {
	s := c.BeginParse()
	l, label, err := loadLabel(s, n)
	if err != nil {
		return err
	}
	if l > n {
		return errors.New("dict label longer than remaining key")
	}

	key := new(big.Int).Lsh(acc, uint(l))
	key.Or(key, label)
	accBits += l

	if l == n {
		*out = append(*out, DictKV{Key: key, Value: s})
		return nil
	}

	if s.RefsLeft() < 2 {
		return errors.New("dict fork node missing branches")
	}
	left := s.LoadRef()
	right := s.LoadRef()

	zero := new(big.Int).Lsh(key, 1)
	if err := walkDict(left, n-l-1, zero, accBits+1, out); err != nil {
		return err
	}
	one := new(big.Int).Or(new(big.Int).Lsh(key, 1), big.NewInt(1))
	return walkDict(right, n-l-1, one, accBits+1, out)
}

func lessBits(a, b []bool) bool {
	for i := range a {
		if a[i] != b[i] {
			return b[i]
		}
	}
	return false
}

func equalBits(a, b []bool) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
