// Package clhash implements the VerusHash v2.2 CLHash engine: a 32-round,
// carry-less-multiplication-driven state machine that mutates a large key
// buffer as it folds in a 64-byte input block and returns a 64-bit
// intermediate hash.
package clhash

// KeySize is the size in bytes of the mutable CLHash key buffer, matching
// VERUSKEYSIZE = 1024*8 + 40*16.
const KeySize = 1024*8 + 40*16

// laneCount is KeySize expressed in 16-byte lanes.
const laneCount = KeySize / 16

// KeyMask masks a selector-derived value down to a lane index in [0, 511],
// the fixed value verus_clhash_v2.c documents ccminer passing directly
// ("keyMask should be 511, already divided by 16").
const KeyMask = 511

// Key holds the mutable CLHash key material for one mining job, plus a
// pristine snapshot restored before hashing each nonce and the restore-log
// bookkeeping the reference implementation also maintains.
//
// The restore-log fields (fixRand/fixRandEx/pRand/pRandEx) are populated by
// Hash on every call for structural parity with the C++ Hasher, but the hot
// path restores via the pristine snapshot (Restore), not FixKey, since
// verus_hash.cpp's own hash_with_nonce restores from a pristine copy and
// never calls fixKey() either.
type Key struct {
	buf      [KeySize]byte
	pristine [KeySize]byte

	fixRand   [32]uint32
	fixRandEx [32]uint32
	pRand     [32]m128
	pRandEx   [32]m128
}

// Load copies seed into the key buffer and snapshots it as the pristine
// baseline that Restore returns to before every hash_with_nonce call.
func (k *Key) Load(seed []byte) {
	copy(k.buf[:], seed)
	k.pristine = k.buf
}

// Restore resets the key buffer to the pristine snapshot taken at Load,
// undoing the mutation Hash performs.
func (k *Key) Restore() {
	k.buf = k.pristine
}

// FixKey applies the restore log in reverse order, an alternative to
// Restore kept for parity with verus_fixkey. Not used by the mining hot
// path.
func (k *Key) FixKey() {
	for i := 31; i >= 0; i-- {
		k.setLane(int(k.fixRandEx[i]), k.pRandEx[i])
		k.setLane(int(k.fixRand[i]), k.pRand[i])
	}
}

// Bytes exposes the raw key buffer so callers (the keyed Haraka512 finalize
// step) can read round-constant material directly out of it.
func (k *Key) Bytes() []byte {
	return k.buf[:]
}

func (k *Key) lane(i int) m128 {
	off := 16 * i
	return m128FromBytes(k.buf[off : off+16])
}

func (k *Key) setLane(i int, v m128) {
	off := 16 * i
	b := m128Bytes(v)
	copy(k.buf[off:off+16], b[:])
}
