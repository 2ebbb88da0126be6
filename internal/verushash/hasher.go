// Package verushash implements the VerusHash v2.2 two-stage mining hash:
// a per-job intermediate state (HashHalf/PrepareKey) and a per-nonce
// finalization (HashWithNonce), orchestrating the haraka and clhash
// packages the way verus_hash.cpp's Hasher class does.
package verushash

import (
	"github.com/verus-community/verusminer/internal/clhash"
	"github.com/verus-community/verusminer/internal/haraka"
)

// PreimageLen is the full Verus mining preimage length: a 140-byte block
// header followed by a 1347-byte solution (3-byte compact-size prefix plus
// a 1344-byte solution body).
const PreimageLen = 140 + 1347

// HeaderLen is the Verus block header length.
const HeaderLen = 140

// Hasher holds the per-job CLHash key state for the two-stage mining hash.
// It is not safe for concurrent use; mining workers each own one.
type Hasher struct {
	key      clhash.Key
	prepared bool
}

// New returns a Hasher with no job prepared yet.
func New() *Hasher {
	return &Hasher{}
}

// AssemblePreimage concatenates a 140-byte header and a solution segment
// into the buffer HashHalf digests, matching genCurBuf's HEADER_LEN=1487
// input. solution is expected to already carry job.SolutionPrefix ahead of
// its body, the same way work->extra does in stratum_client.cpp.
func AssemblePreimage(header [HeaderLen]byte, solution []byte) []byte {
	out := make([]byte, 0, PreimageLen)
	out = append(out, header[:]...)
	out = append(out, solution...)
	return out
}

// solutionBodyOffset is the width of the compact-size prefix ("fd4005")
// that precedes the solution body within the buffer MergedMiningZero and
// AssemblePreimage both operate on.
const solutionBodyOffset = 3

// MergedMiningZero clears the header's and solution's merged-mining fields
// before hashing, matching the reference behavior of never letting a
// PBaaS/merge-mined chain's cross-chain canonical fields leak stale bytes
// into the preimage. solution is the prefixed buffer (job.SolutionPrefix
// plus body); its body carries its own version marker at body byte 0 and
// merge-mining flag at body byte 5 (there is no other version-carrying
// field available at this layer), so the zeroing only fires when the
// solution says it is both a version that defines merged mining (>= 7) and
// actually merge-mining (flag byte set); otherwise header and solution are
// left untouched.
func MergedMiningZero(header *[HeaderLen]byte, solution []byte) {
	if len(solution) < solutionBodyOffset+6 {
		return
	}
	solutionVersion := int(solution[solutionBodyOffset+0])
	if solutionVersion < 7 || solution[solutionBodyOffset+5] == 0 {
		return
	}

	for i := 4; i < 100; i++ {
		header[i] = 0
	}
	for i := 104; i < 108; i++ {
		header[i] = 0
	}
	for i := 108; i < HeaderLen; i++ {
		header[i] = 0
	}

	for i := solutionBodyOffset + 8; i < solutionBodyOffset+72 && i < len(solution); i++ {
		solution[i] = 0
	}
}

// HashHalf digests data (the assembled preimage) 32 bytes at a time with
// fixed-constant Haraka512, chained the way verus_hash.cpp's hash_half
// does, and returns the 64-byte intermediate state used by PrepareKey and
// HashWithNonce for every nonce in the job.
func HashHalf(data []byte) [64]byte {
	var buf1, buf2 [64]byte
	cur, result := &buf1, &buf2
	curPos := 0

	for pos := 0; pos < len(data); {
		room := 32 - curPos
		if len(data)-pos >= room {
			copy(cur[32+curPos:64], data[pos:pos+room])
			var out [32]byte
			haraka.Haraka512(&out, cur)
			copy(result[0:32], out[:])
			cur, result = result, cur
			pos += room
			curPos = 0
		} else {
			copy(cur[32+curPos:32+curPos+(len(data)-pos)], data[pos:])
			curPos += len(data) - pos
			pos = len(data)
		}
	}

	// fillExtra: an overlapping copy, not a shuffle — memcpy(curBuf+47,
	// curBuf, 16); memcpy(curBuf+63, curBuf, 1).
	copy(cur[47:63], cur[0:16])
	cur[63] = cur[0]

	return *cur
}

// genNewCLKey chain-hashes seed (32 bytes) with fixed-constant Haraka256
// 276 times to fill the 8832-byte CLHash key, matching genNewCLKey /
// ccminer's GenNewCLKey. VERUSKEYSIZE (8832) is an exact multiple of 32,
// so there is no trailing partial block.
func genNewCLKey(seed [32]byte) [clhash.KeySize]byte {
	const blocks = clhash.KeySize / 32

	var key [clhash.KeySize]byte
	src := seed
	off := 0
	for i := 0; i < blocks; i++ {
		var out [32]byte
		haraka.Haraka256(&out, &src)
		copy(key[off:off+32], out[:])
		src = out
		off += 32
	}
	return key
}

// PrepareKey derives the job's CLHash key from the 64-byte intermediate
// state produced by HashHalf. It must be called once per job before
// HashWithNonce.
func (h *Hasher) PrepareKey(intermediate [64]byte) {
	var seed [32]byte
	copy(seed[:], intermediate[0:32])
	key := genNewCLKey(seed)
	h.key.Load(key[:])
	h.prepared = true
}

// HashWithNonce computes the final 32-byte proof-of-work hash for one
// nonce, given the job's intermediate state and a 15-byte nonce space.
// PrepareKey must have been called first; if it has not, HashWithNonce
// prepares the key itself using intermediate, mirroring verus_hash.cpp's
// defensive re-preparation.
func (h *Hasher) HashWithNonce(intermediate [64]byte, nonceSpace [15]byte) [32]byte {
	if !h.prepared {
		h.PrepareKey(intermediate)
	}
	h.key.Restore()

	var curBuf [64]byte
	copy(curBuf[:], intermediate[:])

	var fill1 [16]byte
	for i := 0; i < 16; i++ {
		fill1[i] = curBuf[(i+1)%16]
	}
	ch := curBuf[0]
	copy(curBuf[48:64], fill1[:])
	curBuf[47] = ch

	copy(curBuf[32:47], nonceSpace[:])

	clres := clhash.Hash(&h.key, &curBuf)

	var resBytes [8]byte
	for i := 0; i < 8; i++ {
		resBytes[i] = byte(clres >> (8 * uint(i)))
	}

	fill2 := [16]byte{
		resBytes[1], resBytes[2], resBytes[3], resBytes[4],
		resBytes[5], resBytes[6], resBytes[7], resBytes[0],
		resBytes[1], resBytes[2], resBytes[3], resBytes[4],
		resBytes[5], resBytes[6], resBytes[7], resBytes[0],
	}
	copy(curBuf[48:64], fill2[:])
	curBuf[47] = resBytes[0]

	keyOffset := int(clres & 511)

	var out [32]byte
	haraka.Haraka512Keyed(&out, &curBuf, h.key.Bytes(), keyOffset*16)
	return out
}

// Prepared reports whether PrepareKey has been called for the current job.
func (h *Hasher) Prepared() bool {
	return h.prepared
}
