// Package models defines the bot's persistent domain types: assets,
// accounts, liquidation tasks and swap tasks.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// AssetID is the protocol's 256-bit asset identifier, the sha256 of
// the asset ticker. The fixed-size array form makes it usable as a map
// key.
type AssetID [32]byte

// AssetIDFromSymbol derives the asset id from its ticker.
func AssetIDFromSymbol(symbol string) AssetID {
	return AssetID(sha256.Sum256([]byte(symbol)))
}

// AssetIDFromBig converts a 256-bit integer into an AssetID.
func AssetIDFromBig(v *big.Int) AssetID {
	var id AssetID
	v.FillBytes(id[:])
	return id
}

// ParseAssetID decodes a 64-character hex asset id.
func ParseAssetID(s string) (AssetID, error) {
	var id AssetID
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return id, fmt.Errorf("malformed asset id %q", s)
	}
	copy(id[:], raw)
	return id, nil
}

// Big returns the asset id as a 256-bit unsigned integer.
func (id AssetID) Big() *big.Int {
	return new(big.Int).SetBytes(id[:])
}

// Hex returns the lowercase hex form used in column names and logs.
func (id AssetID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String implements fmt.Stringer.
func (id AssetID) String() string { return id.Hex() }

// IsZero reports whether the id is unset.
func (id AssetID) IsZero() bool {
	return id == AssetID{}
}
