// Package ton holds TON chain primitives: account addresses and the
// HTTP clients for tonapi and toncenter.
package ton

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/evaafi/liquidator-bot-v2-pub/internal/boc"
)

// Address is a TON account address: workchain plus a 256-bit account id.
type Address struct {
	Workchain int8
	Hash      [32]byte
}

var errBadAddress = errors.New("malformed address")

// ParseAddress accepts both the raw "wc:hex" form and the 48-character
// user-friendly base64 form.
func ParseAddress(s string) (Address, error) {
	if strings.Contains(s, ":") {
		return parseRaw(s)
	}
	return parseFriendly(s)
}

// MustParseAddress is ParseAddress for compile-time constants.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func parseRaw(s string) (Address, error) {
	wcStr, hashStr, ok := strings.Cut(s, ":")
	if !ok {
		return Address{}, errBadAddress
	}
	wc, err := strconv.ParseInt(wcStr, 10, 8)
	if err != nil {
		return Address{}, fmt.Errorf("%w: workchain %q", errBadAddress, wcStr)
	}
	hash, err := hex.DecodeString(hashStr)
	if err != nil || len(hash) != 32 {
		return Address{}, fmt.Errorf("%w: account id %q", errBadAddress, hashStr)
	}
	a := Address{Workchain: int8(wc)}
	copy(a.Hash[:], hash)
	return a, nil
}

func parseFriendly(s string) (Address, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Address{}, fmt.Errorf("%w: %v", errBadAddress, err)
		}
	}
	if len(data) != 36 {
		return Address{}, fmt.Errorf("%w: %d bytes", errBadAddress, len(data))
	}
	if crc16(data[:34]) != uint16(data[34])<<8|uint16(data[35]) {
		return Address{}, fmt.Errorf("%w: checksum mismatch", errBadAddress)
	}
	tag := data[0]
	if tag != 0x11 && tag != 0x51 && tag != 0x91 && tag != 0xD1 {
		return Address{}, fmt.Errorf("%w: tag 0x%02x", errBadAddress, tag)
	}
	a := Address{Workchain: int8(data[1])}
	copy(a.Hash[:], data[2:34])
	return a, nil
}

// ToRaw formats the address as "wc:hex".
func (a Address) ToRaw() string {
	return fmt.Sprintf("%d:%s", a.Workchain, hex.EncodeToString(a.Hash[:]))
}

// ToFriendly formats the address in the bounceable user-friendly form.
func (a Address) ToFriendly() string {
	return a.friendly(0x11)
}

// ToFriendlyNonBounceable formats the address in the non-bounceable
// user-friendly form.
func (a Address) ToFriendlyNonBounceable() string {
	return a.friendly(0x51)
}

func (a Address) friendly(tag byte) string {
	buf := make([]byte, 36)
	buf[0] = tag
	buf[1] = byte(a.Workchain)
	copy(buf[2:34], a.Hash[:])
	crc := crc16(buf[:34])
	buf[34] = byte(crc >> 8)
	buf[35] = byte(crc)
	return base64.URLEncoding.EncodeToString(buf)
}

// String implements fmt.Stringer with the raw form.
func (a Address) String() string { return a.ToRaw() }

// Equal reports whether two addresses name the same account.
func (a Address) Equal(b Address) bool {
	return a.Workchain == b.Workchain && bytes.Equal(a.Hash[:], b.Hash[:])
}

// StoreAddr appends the addr_std encoding to b.
func StoreAddr(b *boc.Builder, a Address) {
	b.StoreUint(2, 2) // addr_std$10
	b.StoreBit(false) // no anycast
	b.StoreInt(int64(a.Workchain), 8)
	b.StoreBytes(a.Hash[:])
}

// StoreAddrNone appends the addr_none encoding to b.
func StoreAddrNone(b *boc.Builder) {
	b.StoreUint(0, 2)
}

// LoadAddr reads an addr_std or addr_none value from s. addr_none
// yields the zero Address.
func LoadAddr(s *boc.Slice) (Address, error) {
	kind, err := s.LoadUint(2)
	if err != nil {
		return Address{}, err
	}
	switch kind {
	case 0:
		return Address{}, nil
	case 2:
		anycast, err := s.LoadBit()
		if err != nil {
			return Address{}, err
		}
		if anycast {
			return Address{}, errors.New("anycast addresses not supported")
		}
		wc, err := s.LoadInt(8)
		if err != nil {
			return Address{}, err
		}
		hash, err := s.LoadBytes(32)
		if err != nil {
			return Address{}, err
		}
		a := Address{Workchain: int8(wc)}
		copy(a.Hash[:], hash)
		return a, nil
	default:
		return Address{}, fmt.Errorf("unsupported address kind %d", kind)
	}
}

// crc16 is CRC-16/XMODEM, the checksum of the friendly address form.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
