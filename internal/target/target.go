// Package target implements VerusHash proof-of-work target/difficulty
// arithmetic: a 256-bit little-endian target compared against a hash, and
// conversions to and from the pool's difficulty and mining.set_target wire
// values.
package target

import (
	"fmt"
	"math/big"

	hex "github.com/tmthrgd/go-hex"
)

// diff1 is the difficulty-1 target numerator, 0xFFFF shifted left 208 bits,
// the same constant Dirbaio-gominer's stratum target math and
// stratum_client.cpp's calculate_target both use.
var diff1 = new(big.Int).Lsh(big.NewInt(0xFFFF), 208)

// Target is a 256-bit value stored little-endian, matching the byte order
// VerusHash outputs and the byte order mining.set_target's hex is
// byte-reversed into.
type Target [32]byte

// FromDifficulty derives a target from a pool difficulty: floor(0xFFFF *
// 2^208 / difficulty).
func FromDifficulty(difficulty float64) Target {
	if difficulty <= 0 {
		difficulty = 1
	}
	// Scale the float difficulty into a fixed-point big.Int ratio to avoid
	// losing precision converting difficulty directly to big.Float.
	const scale = 1 << 40
	scaled := new(big.Int).SetInt64(int64(difficulty * scale))
	if scaled.Sign() <= 0 {
		scaled = big.NewInt(1)
	}

	num := new(big.Int).Mul(diff1, big.NewInt(scale))
	val := new(big.Int).Quo(num, scaled)

	return fromBigBE(val)
}

// FromSetTargetHex parses a mining.set_target hex string. The pool sends
// the target big-endian on the wire; VerusHash compares little-endian, so
// the bytes are reversed on the way in.
func FromSetTargetHex(s string) (Target, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Target{}, fmt.Errorf("target: invalid hex: %w", err)
	}
	if len(raw) != 32 {
		return Target{}, fmt.Errorf("target: expected 32 bytes, got %d", len(raw))
	}
	var t Target
	for i := 0; i < 32; i++ {
		t[i] = raw[31-i]
	}
	return t, nil
}

// Hex renders the target back to the big-endian wire form FromSetTargetHex
// parses.
func (t Target) Hex() string {
	var be [32]byte
	for i := 0; i < 32; i++ {
		be[i] = t[31-i]
	}
	return hex.EncodeToString(be[:])
}

// Meets reports whether hash (little-endian, VerusHash's native output
// order) satisfies the target, i.e. hash <= target as 256-bit integers.
func (t Target) Meets(hash [32]byte) bool {
	for i := 31; i >= 0; i-- {
		if hash[i] < t[i] {
			return true
		}
		if hash[i] > t[i] {
			return false
		}
	}
	return true // exactly equal
}

// Difficulty converts the target back to an approximate pool difficulty,
// the inverse of FromDifficulty, for logging and the stats API.
func (t Target) Difficulty() float64 {
	val := toBigLE(t)
	if val.Sign() == 0 {
		return 0
	}
	ratio := new(big.Rat).SetFrac(diff1, val)
	f, _ := ratio.Float64()
	return f
}

func fromBigBE(v *big.Int) Target {
	var be [32]byte
	b := v.Bytes()
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(be[32-len(b):], b)
	var t Target
	for i := 0; i < 32; i++ {
		t[i] = be[31-i]
	}
	return t
}

func toBigLE(t Target) *big.Int {
	var be [32]byte
	for i := 0; i < 32; i++ {
		be[i] = t[31-i]
	}
	return new(big.Int).SetBytes(be[:])
}
